package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/errgroup"

	"ordersync/internal/types"
)

// SQSReceiver abstracts the SQS receive/delete operations for testability.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// JobHandler executes one sync job. A nil return completes the job; an
// error leaves the message in flight so SQS redelivers it after the
// visibility timeout (the queue's retry policy, with the DLQ's
// maxReceiveCount as the attempt bound).
type JobHandler func(ctx context.Context, msg types.SyncJobMessage) error

// Consumer is the sync worker's receive loop: long-polls the job queue and
// dispatches jobs to the handler with bounded concurrency. Every job runs
// under a hard wall-clock timeout; lock lease TTLs are configured to outlive
// it so an abandoned job cannot wedge its feed.
type Consumer struct {
	client      SQSReceiver
	queueURL    string
	handler     JobHandler
	concurrency int
	jobTimeout  time.Duration
	logger      *slog.Logger
}

// ConsumerConfig holds the settings for creating a Consumer.
type ConsumerConfig struct {
	Client      SQSReceiver
	QueueURL    string
	Handler     JobHandler
	Concurrency int
	JobTimeout  time.Duration
	Logger      *slog.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = 60 * time.Second
	}
	return &Consumer{
		client:      cfg.Client,
		queueURL:    cfg.QueueURL,
		handler:     cfg.Handler,
		concurrency: concurrency,
		jobTimeout:  jobTimeout,
		logger:      logger,
	}
}

// Run long-polls until ctx is cancelled. Receive errors are logged and
// retried after a short pause; they never crash the worker.
func (c *Consumer) Run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for ctx.Err() == nil {
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.ErrorContext(ctx, "receive from job queue failed",
				"error", err,
			)
			time.Sleep(2 * time.Second)
			continue
		}

		for _, raw := range out.Messages {
			g.Go(func() error {
				c.handleMessage(gctx, aws.ToString(raw.Body), aws.ToString(raw.ReceiptHandle))
				return nil
			})
		}
	}

	// Drain in-flight jobs before returning so leases get released.
	_ = g.Wait()
}

// handleMessage decodes and executes one job. Undecodable messages are
// deleted immediately — redelivering garbage can never succeed.
func (c *Consumer) handleMessage(ctx context.Context, body, receiptHandle string) {
	var msg types.SyncJobMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		c.logger.ErrorContext(ctx, "deleting undecodable job message",
			"error", err,
		)
		c.deleteMessage(ctx, receiptHandle)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, c.jobTimeout)
	defer cancel()

	start := time.Now()
	if err := c.handler(jobCtx, msg); err != nil {
		// Leave the message in flight; SQS redelivers after the
		// visibility timeout. The cursor was not advanced, so the retry
		// replays the identical window.
		c.logger.ErrorContext(ctx, "sync job failed, leaving for redelivery",
			"job_id", msg.JobID,
			"trace_id", msg.TraceID,
			"source", string(msg.Source),
			"mode", string(msg.Mode),
			"cursor", msg.Cursor,
			"attempt", msg.Attempt,
			"duration", time.Since(start).String(),
			"error", err,
		)
		return
	}

	c.deleteMessage(ctx, receiptHandle)
}

func (c *Consumer) deleteMessage(ctx context.Context, receiptHandle string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		// The message will be redelivered and re-run; the engine's
		// idempotent sink makes that safe.
		c.logger.WarnContext(ctx, "failed to delete completed job message",
			"error", err,
		)
	}
}
