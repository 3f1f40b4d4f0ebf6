package connector

import (
	"encoding/json"
	"testing"
	"time"

	"ordersync/internal/types"
)

func TestParseOpenSeaOrder(t *testing.T) {
	raw := json.RawMessage(`{
		"order_hash": "0xABCDEF",
		"maker": {"Address": "0xMAKER"},
		"asset_contract_address": "0xCOLLECTION",
		"listing_time": 1717243200,
		"order_type": "basic"
	}`)

	order, err := parseOpenSeaOrder(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if order == nil {
		t.Fatal("expected an order")
	}
	if order.Hash != "0xabcdef" {
		t.Errorf("hash must be lower-cased, got %q", order.Hash)
	}
	if order.Target != "0xcollection" {
		t.Errorf("target must be lower-cased, got %q", order.Target)
	}
	if order.Source != types.SourceOpenSea {
		t.Errorf("unexpected source %s", order.Source)
	}
	if !order.CreatedAt.Equal(time.Unix(1717243200, 0).UTC()) {
		t.Errorf("unexpected created_at %s", order.CreatedAt)
	}
	if err := order.Validate(); err != nil {
		t.Errorf("parsed order failed validation: %v", err)
	}
}

func TestParseOpenSeaOrder_SkipsDutchAuctions(t *testing.T) {
	raw := json.RawMessage(`{
		"order_hash": "0xabc",
		"asset_contract_address": "0xdef",
		"listing_time": 1717243200,
		"order_type": "dutch"
	}`)

	order, err := parseOpenSeaOrder(raw)
	if err != nil {
		t.Fatalf("skips must not error: %v", err)
	}
	if order != nil {
		t.Error("dutch auctions must be skipped")
	}
}

func TestParseOpenSeaOrder_SkipsIncomplete(t *testing.T) {
	cases := []string{
		`{"asset_contract_address": "0xdef", "listing_time": 1}`,
		`{"order_hash": "0xabc", "listing_time": 1}`,
		`{"order_hash": "0xabc", "asset_contract_address": "0xdef"}`,
		`not json at all`,
	}
	for _, raw := range cases {
		order, err := parseOpenSeaOrder(json.RawMessage(raw))
		if err != nil {
			t.Errorf("bad item must skip, not error: %v", err)
		}
		if order != nil {
			t.Errorf("expected skip for %s", raw)
		}
	}
}

func TestParseLooksRareOrder_SkipsInvalidStatus(t *testing.T) {
	valid := json.RawMessage(`{
		"hash": "0xAAA", "signer": "0xBBB", "collectionAddress": "0xCCC",
		"startTime": 1717243200, "status": "VALID"
	}`)
	order, _ := parseLooksRareOrder(valid)
	if order == nil {
		t.Fatal("expected VALID order to parse")
	}

	cancelled := json.RawMessage(`{
		"hash": "0xAAA", "signer": "0xBBB", "collectionAddress": "0xCCC",
		"startTime": 1717243200, "status": "CANCELLED"
	}`)
	order, _ = parseLooksRareOrder(cancelled)
	if order != nil {
		t.Error("non-VALID orders must be skipped")
	}
}

func TestParseX2Y2Order_SkipsNonSell(t *testing.T) {
	buy := json.RawMessage(`{
		"item_hash": "0xAAA", "maker": "0xBBB",
		"token": {"contract": "0xCCC"},
		"created_at": 1717243200, "type": "buy"
	}`)
	if order, _ := parseX2Y2Order(buy); order != nil {
		t.Error("buy offers must be skipped")
	}

	sell := json.RawMessage(`{
		"item_hash": "0xAAA", "maker": "0xBBB",
		"token": {"contract": "0xCCC"},
		"created_at": 1717243200, "type": "sell"
	}`)
	order, _ := parseX2Y2Order(sell)
	if order == nil {
		t.Fatal("expected sell order to parse")
	}
	if order.Source != types.SourceX2Y2 {
		t.Errorf("unexpected source %s", order.Source)
	}
}

func TestParseRaribleOrder(t *testing.T) {
	raw := json.RawMessage(`{
		"hash": "0xAA", "maker": "0xBB",
		"make": {"assetType": {"contract": "0xCC"}},
		"createdAt": "2024-06-01T12:00:00Z"
	}`)
	order, _ := parseRaribleOrder(raw)
	if order == nil {
		t.Fatal("expected order")
	}
	if order.Target != "0xcc" {
		t.Errorf("unexpected target %q", order.Target)
	}
	if order.CreatedAt != time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) {
		t.Errorf("unexpected created_at %s", order.CreatedAt)
	}
}

func TestParseZeroExV4Order(t *testing.T) {
	raw := json.RawMessage(`{
		"metaData": {"orderHash": "0xAA", "createdAt": "2024-06-01T12:00:00Z"},
		"order": {"maker": "0xBB", "nft": "0xCC"}
	}`)
	order, _ := parseZeroExV4Order(raw)
	if order == nil {
		t.Fatal("expected order")
	}
	if order.Hash != "0xaa" || order.Target != "0xcc" || order.Maker != "0xbb" {
		t.Errorf("unexpected fields %+v", order)
	}
}

func TestParse_PayloadRoundTrips(t *testing.T) {
	raw := json.RawMessage(`{
		"hash": "0xAA", "maker": "0xBB",
		"make": {"assetType": {"contract": "0xCC"}},
		"createdAt": "2024-06-01T12:00:00Z",
		"data": {"price": "12000000000000000000"}
	}`)
	order, _ := parseRaribleOrder(raw)
	if order == nil {
		t.Fatal("expected order")
	}
	// The raw item is preserved verbatim for downstream replay.
	data, ok := order.Payload["data"].(map[string]any)
	if !ok {
		t.Fatal("expected nested payload data")
	}
	if data["price"] != "12000000000000000000" {
		t.Errorf("payload must carry the original fields, got %v", data["price"])
	}
}
