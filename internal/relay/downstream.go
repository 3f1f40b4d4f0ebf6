package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ordersync/internal/httpx"
	"ordersync/internal/types"
)

// deliveredOrder is the wire shape one relayed order takes on the way to the
// downstream consumer.
type deliveredOrder struct {
	Hash      string        `json:"hash"`
	Source    string        `json:"source"`
	Target    string        `json:"target"`
	Maker     string        `json:"maker"`
	CreatedAt time.Time     `json:"created_at"`
	Payload   types.Payload `json:"payload"`
}

// DownstreamClient POSTs batches of relayed orders to the downstream
// consumer's ingestion endpoint.
type DownstreamClient struct {
	client *httpx.Client
	url    string
	apiKey types.SecretString
}

// NewDownstreamClient creates a client for the given consumer endpoint.
func NewDownstreamClient(client *httpx.Client, url string, apiKey types.SecretString) *DownstreamClient {
	return &DownstreamClient{client: client, url: url, apiKey: apiKey}
}

// Deliver sends the entries as one JSON batch. The consumer deduplicates on
// order hash, so redelivery after an ambiguous failure is safe.
func (d *DownstreamClient) Deliver(ctx context.Context, entries []types.RelayEntry) error {
	orders := make([]deliveredOrder, 0, len(entries))
	for _, e := range entries {
		orders = append(orders, deliveredOrder{
			Hash:      e.OrderHash,
			Source:    string(e.Source),
			Target:    e.Target,
			Maker:     e.Maker,
			CreatedAt: e.OrderCreated,
			Payload:   e.Payload,
		})
	}

	body, err := json.Marshal(map[string]any{"orders": orders})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal relay batch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build relay request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := d.apiKey.Reveal(); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeRelayDelivery, "downstream delivery failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewAppError(types.ErrCodeRelayDelivery,
			fmt.Sprintf("downstream returned %d", resp.StatusCode), nil)
	}
	return nil
}
