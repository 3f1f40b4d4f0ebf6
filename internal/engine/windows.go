package engine

import (
	"time"

	"ordersync/internal/connector"
)

// WindowPadding is the slack applied to both edges of every backfill window
// so items landing exactly on a chunk boundary are never silently dropped.
// The duplicate edge items the padding produces are absorbed by the
// idempotent sink.
const WindowPadding = 1 * time.Second

// ChunkWindows splits [start, end) into fixed-size windows, each padded by
// WindowPadding on both edges. The final window is truncated to end before
// padding. An empty or inverted range yields no windows.
func ChunkWindows(start, end time.Time, size time.Duration) []connector.TimeWindow {
	if size <= 0 || !end.After(start) {
		return nil
	}

	var windows []connector.TimeWindow
	for ws := start; ws.Before(end); ws = ws.Add(size) {
		we := ws.Add(size)
		if we.After(end) {
			we = end
		}
		windows = append(windows, connector.TimeWindow{
			Start: ws.Add(-WindowPadding),
			End:   we.Add(WindowPadding),
		})
	}
	return windows
}
