package types

// SourceKind identifies the marketplace feed an order originated from.
// The engine treats it as an opaque routing tag; only the connector for a
// given kind knows how to page through and parse that feed.
type SourceKind string

// The closed set of supported feeds. Adding a feed means adding a constant
// here plus a connector implementation; nothing in the engine changes.
const (
	SourceOpenSea    SourceKind = "opensea"
	SourceSeaport    SourceKind = "seaport"
	SourceLooksRare  SourceKind = "looksrare"
	SourceX2Y2       SourceKind = "x2y2"
	SourceRarible    SourceKind = "rarible"
	SourceZeroExV4   SourceKind = "zeroex-v4"
	SourceBlur       SourceKind = "blur"
	SourceFoundation SourceKind = "foundation"
	SourceZora       SourceKind = "zora"
	SourceSudoswap   SourceKind = "sudoswap"
	SourceElement    SourceKind = "element"
	SourceOKX        SourceKind = "okx"
	SourceMagicEden  SourceKind = "magiceden"
	SourceCoinbase   SourceKind = "coinbase"
)

// AllSourceKinds lists every supported feed in a stable order.
var AllSourceKinds = []SourceKind{
	SourceOpenSea,
	SourceSeaport,
	SourceLooksRare,
	SourceX2Y2,
	SourceRarible,
	SourceZeroExV4,
	SourceBlur,
	SourceFoundation,
	SourceZora,
	SourceSudoswap,
	SourceElement,
	SourceOKX,
	SourceMagicEden,
	SourceCoinbase,
}

// Valid reports whether k is one of the supported feeds.
func (k SourceKind) Valid() bool {
	for _, s := range AllSourceKinds {
		if k == s {
			return true
		}
	}
	return false
}

// SyncMode selects between the two polling protocols for a feed.
type SyncMode string

const (
	// ModeRealtime tails the most recent activity, one page per lock lease.
	ModeRealtime SyncMode = "realtime"

	// ModeBackfill drains a bounded historical range via continuation jobs.
	ModeBackfill SyncMode = "backfill"
)

// Valid reports whether m is a known sync mode.
func (m SyncMode) Valid() bool {
	return m == ModeRealtime || m == ModeBackfill
}
