package connector

import (
	"encoding/json"
	"strings"
	"time"

	"ordersync/internal/httpx"
	"ordersync/internal/types"
)

// The concrete feeds below differ only in pagination style and the shape of
// a raw item. Parse functions are pure; anything they cannot normalize is
// skipped with (nil, nil), never an error — a single bad item must not fail
// its page.

// NewOpenSea builds the OpenSea connector: cursor-token pagination over the
// listings endpoint.
func NewOpenSea(client *httpx.Client, cfg FeedConfig) Connector {
	f := &cursorFeed{
		path:      "/api/v2/orders/listings",
		itemsKey:  "orders",
		cursorKey: "next",
	}
	f.feedBase = feedBase{
		source: types.SourceOpenSea,
		client: client,
		cfg:    cfg,
		parse:  parseOpenSeaOrder,
	}
	return f
}

func parseOpenSeaOrder(raw json.RawMessage) (*types.NormalizedOrder, error) {
	var item struct {
		OrderHash     string                   `json:"order_hash"`
		Maker         struct{ Address string } `json:"maker"`
		AssetContract string                   `json:"asset_contract_address"`
		ListingTime   int64                    `json:"listing_time"`
		OrderType     string                   `json:"order_type"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, nil
	}
	// Dutch auctions carry time-dependent pricing the downstream consumer
	// cannot replay from a snapshot; skip them.
	if item.OrderType == "dutch" {
		return nil, nil
	}
	if item.OrderHash == "" || item.AssetContract == "" || item.ListingTime == 0 {
		return nil, nil
	}

	var payload types.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil
	}

	return &types.NormalizedOrder{
		Source:    types.SourceOpenSea,
		Hash:      strings.ToLower(item.OrderHash),
		Target:    strings.ToLower(item.AssetContract),
		Maker:     strings.ToLower(item.Maker.Address),
		CreatedAt: time.Unix(item.ListingTime, 0).UTC(),
		Payload:   payload,
	}, nil
}

// NewLooksRare builds the LooksRare connector: time-window pagination over
// the orders endpoint.
func NewLooksRare(client *httpx.Client, cfg FeedConfig) Connector {
	f := &windowFeed{
		path:     "/api/v1/orders",
		itemsKey: "data",
	}
	f.feedBase = feedBase{
		source: types.SourceLooksRare,
		client: client,
		cfg:    cfg,
		parse:  parseLooksRareOrder,
	}
	return f
}

func parseLooksRareOrder(raw json.RawMessage) (*types.NormalizedOrder, error) {
	var item struct {
		Hash       string `json:"hash"`
		Signer     string `json:"signer"`
		Collection string `json:"collectionAddress"`
		StartTime  int64  `json:"startTime"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, nil
	}
	if item.Status != "" && item.Status != "VALID" {
		return nil, nil
	}
	if item.Hash == "" || item.Collection == "" || item.StartTime == 0 {
		return nil, nil
	}

	var payload types.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil
	}

	return &types.NormalizedOrder{
		Source:    types.SourceLooksRare,
		Hash:      strings.ToLower(item.Hash),
		Target:    strings.ToLower(item.Collection),
		Maker:     strings.ToLower(item.Signer),
		CreatedAt: time.Unix(item.StartTime, 0).UTC(),
		Payload:   payload,
	}, nil
}

// NewRarible builds the Rarible connector: offset pagination over the
// sell-orders endpoint.
func NewRarible(client *httpx.Client, cfg FeedConfig) Connector {
	f := &offsetFeed{
		path:     "/v0.1/order/orders/sell",
		itemsKey: "orders",
	}
	f.feedBase = feedBase{
		source: types.SourceRarible,
		client: client,
		cfg:    cfg,
		parse:  parseRaribleOrder,
	}
	return f
}

func parseRaribleOrder(raw json.RawMessage) (*types.NormalizedOrder, error) {
	var item struct {
		Hash  string `json:"hash"`
		Maker string `json:"maker"`
		Make  struct {
			AssetType struct {
				Contract string `json:"contract"`
			} `json:"assetType"`
		} `json:"make"`
		CreatedAt time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, nil
	}
	if item.Hash == "" || item.Make.AssetType.Contract == "" || item.CreatedAt.IsZero() {
		return nil, nil
	}

	var payload types.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil
	}

	return &types.NormalizedOrder{
		Source:    types.SourceRarible,
		Hash:      strings.ToLower(item.Hash),
		Target:    strings.ToLower(item.Make.AssetType.Contract),
		Maker:     strings.ToLower(item.Maker),
		CreatedAt: item.CreatedAt.UTC(),
		Payload:   payload,
	}, nil
}

// NewX2Y2 builds the X2Y2 connector: cursor-token pagination.
func NewX2Y2(client *httpx.Client, cfg FeedConfig) Connector {
	f := &cursorFeed{
		path:      "/v1/orders",
		itemsKey:  "data",
		cursorKey: "next",
	}
	f.feedBase = feedBase{
		source: types.SourceX2Y2,
		client: client,
		cfg:    cfg,
		parse:  parseX2Y2Order,
	}
	return f
}

func parseX2Y2Order(raw json.RawMessage) (*types.NormalizedOrder, error) {
	var item struct {
		ItemHash string `json:"item_hash"`
		Maker    string `json:"maker"`
		Token    struct {
			Contract string `json:"contract"`
		} `json:"token"`
		CreatedAt int64  `json:"created_at"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, nil
	}
	if item.Type != "" && item.Type != "sell" {
		return nil, nil
	}
	if item.ItemHash == "" || item.Token.Contract == "" || item.CreatedAt == 0 {
		return nil, nil
	}

	var payload types.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil
	}

	return &types.NormalizedOrder{
		Source:    types.SourceX2Y2,
		Hash:      strings.ToLower(item.ItemHash),
		Target:    strings.ToLower(item.Token.Contract),
		Maker:     strings.ToLower(item.Maker),
		CreatedAt: time.Unix(item.CreatedAt, 0).UTC(),
		Payload:   payload,
	}, nil
}

// NewZeroExV4 builds the 0x v4 connector: offset pagination over the SRA
// orders endpoint.
func NewZeroExV4(client *httpx.Client, cfg FeedConfig) Connector {
	f := &offsetFeed{
		path:     "/sra/v4/orders",
		itemsKey: "records",
	}
	f.feedBase = feedBase{
		source: types.SourceZeroExV4,
		client: client,
		cfg:    cfg,
		parse:  parseZeroExV4Order,
	}
	return f
}

func parseZeroExV4Order(raw json.RawMessage) (*types.NormalizedOrder, error) {
	var item struct {
		MetaData struct {
			OrderHash string    `json:"orderHash"`
			CreatedAt time.Time `json:"createdAt"`
		} `json:"metaData"`
		Order struct {
			Maker string `json:"maker"`
			NFT   string `json:"nft"`
		} `json:"order"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, nil
	}
	if item.MetaData.OrderHash == "" || item.Order.NFT == "" || item.MetaData.CreatedAt.IsZero() {
		return nil, nil
	}

	var payload types.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil
	}

	return &types.NormalizedOrder{
		Source:    types.SourceZeroExV4,
		Hash:      strings.ToLower(item.MetaData.OrderHash),
		Target:    strings.ToLower(item.Order.NFT),
		Maker:     strings.ToLower(item.Order.Maker),
		CreatedAt: item.MetaData.CreatedAt.UTC(),
		Payload:   payload,
	}, nil
}
