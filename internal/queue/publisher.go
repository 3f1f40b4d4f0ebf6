// Package queue provides the SQS-backed sync job queue: a publisher used by
// the scheduler, the engine (continuations), and the admin API, plus a
// consumer loop the sync worker runs. SQS gives the at-least-once,
// retryable, delayable semantics the engine relies on; the consumer bounds
// per-queue concurrency.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"ordersync/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// maxSQSDelay is the SQS DelaySeconds ceiling (15 minutes).
const maxSQSDelay = 900

// Publisher serializes SyncJobMessages and sends them to the sync job
// queue.
type Publisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewPublisher creates a Publisher targeting the given queue URL.
func NewPublisher(client SQSSender, queueURL string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Enqueue sends one job with the given delivery delay. Delays beyond the
// SQS maximum of 900 seconds are clamped.
func (p *Publisher) Enqueue(ctx context.Context, msg types.SyncJobMessage, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal sync job: %w", err)
	}

	delaySec := int32(delay.Seconds())
	if delaySec > maxSQSDelay {
		delaySec = maxSQSDelay
	}
	if delaySec < 0 {
		delaySec = 0
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySec,
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"source": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Source)),
			},
			"mode": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Mode)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send sync job to %s: %w", p.queueURL, err)
	}

	p.logger.DebugContext(ctx, "sync job enqueued",
		"job_id", msg.JobID,
		"trace_id", msg.TraceID,
		"source", string(msg.Source),
		"mode", string(msg.Mode),
		"delay_seconds", delaySec,
	)

	return nil
}
