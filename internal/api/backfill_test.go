package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ordersync/internal/connector"
	"ordersync/internal/types"
)

type fakeConnector struct {
	source types.SourceKind
}

func (f *fakeConnector) Source() types.SourceKind { return f.source }

func (f *fakeConnector) BuildRequest(cursor string, window *connector.TimeWindow) connector.Request {
	return connector.Request{Cursor: cursor, Window: window}
}

func (f *fakeConnector) FetchPage(context.Context, connector.Request) (connector.Page, error) {
	return connector.Page{}, nil
}

func (f *fakeConnector) Parse(json.RawMessage) (*types.NormalizedOrder, error) {
	return nil, nil
}

type recordingEnqueuer struct {
	jobs []types.SyncJobMessage
	err  error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, msg types.SyncJobMessage, _ time.Duration) error {
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, msg)
	return nil
}

func testRouter(jobs *recordingEnqueuer) http.Handler {
	reg := connector.NewRegistry()
	reg.Register(&fakeConnector{source: types.SourceOpenSea})
	return NewRouter(RouterConfig{
		Registry:       reg,
		Jobs:           jobs,
		BackfillWindow: time.Hour,
		Logger:         slog.New(slog.DiscardHandler),
	})
}

func postBackfill(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/admin/backfill", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestBackfill_EnqueuesOneJobPerWindow(t *testing.T) {
	jobs := &recordingEnqueuer{}
	router := testRouter(jobs)

	rec := postBackfill(t, router, `{
		"source": "opensea",
		"start": "2024-01-01T00:00:00Z",
		"end": "2024-01-01T03:00:00Z"
	}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp BackfillResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobsEnqueued != 3 {
		t.Errorf("jobs_enqueued = %d, want 3 (one per hour)", resp.JobsEnqueued)
	}
	if resp.TraceID == "" {
		t.Error("response must carry the trace id")
	}

	if len(jobs.jobs) != 3 {
		t.Fatalf("enqueued %d jobs, want 3", len(jobs.jobs))
	}
	for i, job := range jobs.jobs {
		if job.Mode != types.ModeBackfill || job.Source != types.SourceOpenSea {
			t.Errorf("job %d routing diverged: %+v", i, job)
		}
		if job.TraceID != resp.TraceID {
			t.Errorf("job %d must share the submission trace", i)
		}
		if job.WindowStart == nil || job.WindowEnd == nil {
			t.Errorf("job %d must carry its window", i)
		}
	}
}

func TestBackfill_WindowSecondsOverride(t *testing.T) {
	jobs := &recordingEnqueuer{}
	router := testRouter(jobs)

	rec := postBackfill(t, router, `{
		"source": "opensea",
		"start": "2024-01-01T00:00:00Z",
		"end": "2024-01-01T01:00:00Z",
		"window_seconds": 900
	}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(jobs.jobs) != 4 {
		t.Errorf("enqueued %d jobs, want 4 (15-minute windows)", len(jobs.jobs))
	}
}

func TestBackfill_RejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{
			"unknown source",
			`{"source": "ebay", "start": "2024-01-01T00:00:00Z", "end": "2024-01-02T00:00:00Z"}`,
			http.StatusBadRequest,
		},
		{
			"disabled feed",
			`{"source": "blur", "start": "2024-01-01T00:00:00Z", "end": "2024-01-02T00:00:00Z"}`,
			http.StatusNotFound,
		},
		{
			"inverted range",
			`{"source": "opensea", "start": "2024-01-02T00:00:00Z", "end": "2024-01-01T00:00:00Z"}`,
			http.StatusBadRequest,
		},
		{
			"missing fields",
			`{"source": "opensea"}`,
			http.StatusBadRequest,
		},
		{
			"window too large",
			`{"source": "opensea", "start": "2024-01-01T00:00:00Z", "end": "2024-01-02T00:00:00Z", "window_seconds": 100000}`,
			http.StatusBadRequest,
		},
		{
			"malformed json",
			`{not json`,
			http.StatusBadRequest,
		},
		{
			"empty body",
			``,
			http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &recordingEnqueuer{}
			rec := postBackfill(t, testRouter(jobs), tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.want, rec.Body.String())
			}
			if len(jobs.jobs) != 0 {
				t.Errorf("no jobs may be enqueued for a rejected request, got %d", len(jobs.jobs))
			}
		})
	}
}

func TestBackfill_ErrorBodyCarriesCodeAndRequestID(t *testing.T) {
	rec := postBackfill(t, testRouter(&recordingEnqueuer{}),
		`{"source": "ebay", "start": "2024-01-01T00:00:00Z", "end": "2024-01-02T00:00:00Z"}`)

	var body struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != string(types.ErrCodeValidationInvalidSource) {
		t.Errorf("code = %q", body.Error.Code)
	}
	if body.Error.RequestID == "" {
		t.Error("error body must carry the request id")
	}
}

func TestBackfill_EnqueueFailureSurfaces(t *testing.T) {
	jobs := &recordingEnqueuer{err: errors.New("queue unavailable")}
	rec := postBackfill(t, testRouter(jobs),
		`{"source": "opensea", "start": "2024-01-01T00:00:00Z", "end": "2024-01-01T01:00:00Z"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestFeeds_ListsEnabledFeeds(t *testing.T) {
	router := testRouter(&recordingEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/admin/feeds", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Feeds []struct {
			Source string `json:"source"`
		} `json:"feeds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Feeds) != 1 || body.Feeds[0].Source != "opensea" {
		t.Errorf("feeds = %+v", body.Feeds)
	}
}

func TestBackfill_RejectsOversizedBody(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 2<<20)
	rec := postBackfill(t, testRouter(&recordingEnqueuer{}), string(big))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

type fakeLockProber struct {
	held map[string]bool
	err  error
}

func (f *fakeLockProber) Held(_ context.Context, name string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.held[name], nil
}

func testRouterWithLocks(jobs *recordingEnqueuer, locks lockProber) http.Handler {
	reg := connector.NewRegistry()
	reg.Register(&fakeConnector{source: types.SourceOpenSea})
	return NewRouter(RouterConfig{
		Registry:       reg,
		Jobs:           jobs,
		Locks:          locks,
		BackfillWindow: time.Hour,
		Logger:         slog.New(slog.DiscardHandler),
	})
}

func TestBackfill_RejectsWhileBackfillLeaseHeld(t *testing.T) {
	jobs := &recordingEnqueuer{}
	locks := &fakeLockProber{held: map[string]bool{
		types.LockName(types.SourceOpenSea, types.ModeBackfill): true,
	}}
	router := testRouterWithLocks(jobs, locks)

	rec := postBackfill(t, router,
		`{"source":"opensea","start":"2024-06-01T00:00:00Z","end":"2024-06-01T01:00:00Z"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != string(types.ErrCodeLockUnavailable) {
		t.Errorf("expected code %s, got %s", types.ErrCodeLockUnavailable, body.Error.Code)
	}
	if len(jobs.jobs) != 0 {
		t.Errorf("conflicting submission must not enqueue, got %d jobs", len(jobs.jobs))
	}
}

func TestBackfill_ProceedsWhenLeaseFree(t *testing.T) {
	jobs := &recordingEnqueuer{}
	router := testRouterWithLocks(jobs, &fakeLockProber{})

	rec := postBackfill(t, router,
		`{"source":"opensea","start":"2024-06-01T00:00:00Z","end":"2024-06-01T01:00:00Z"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(jobs.jobs) == 0 {
		t.Error("free lease must not block submission")
	}
}
