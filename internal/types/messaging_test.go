package types

import (
	"testing"
	"time"
)

func TestNewSyncJob(t *testing.T) {
	job := NewSyncJob(SourceOpenSea, ModeRealtime)

	if job.JobID == "" || job.TraceID == "" {
		t.Fatal("expected fresh job and trace IDs")
	}
	if job.Attempt != 0 {
		t.Errorf("expected attempt 0, got %d", job.Attempt)
	}
	if err := job.Validate(); err != nil {
		t.Errorf("fresh job failed validation: %v", err)
	}
}

func TestSyncJobMessage_Continuation(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	job := NewSyncJob(SourceRarible, ModeBackfill)
	job.WindowStart = &start
	job.WindowEnd = &end
	job.LockToken = "lease-token"
	job.Cursor = "100"

	next := job.Continuation("150")

	if next.JobID == job.JobID {
		t.Error("continuation must get a fresh job ID")
	}
	if next.TraceID != job.TraceID {
		t.Error("continuation must keep the chain's trace ID")
	}
	if next.Cursor != "150" {
		t.Errorf("expected cursor 150, got %q", next.Cursor)
	}
	if next.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", next.Attempt)
	}
	if next.LockToken != "lease-token" {
		t.Error("continuation must carry the lease token through the chain")
	}
	if next.WindowStart == nil || !next.WindowStart.Equal(start) {
		t.Error("continuation must keep the window")
	}
}

func TestSyncJobMessage_Validate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	cases := []struct {
		name    string
		mutate  func(*SyncJobMessage)
		wantErr bool
	}{
		{"valid realtime", func(m *SyncJobMessage) {}, false},
		{"valid windowed", func(m *SyncJobMessage) {
			m.Mode = ModeBackfill
			m.WindowStart, m.WindowEnd = &start, &end
		}, false},
		{"unknown source", func(m *SyncJobMessage) { m.Source = "ebay" }, true},
		{"unknown mode", func(m *SyncJobMessage) { m.Mode = "bulk" }, true},
		{"start without end", func(m *SyncJobMessage) { m.WindowStart = &start }, true},
		{"inverted window", func(m *SyncJobMessage) {
			m.WindowStart, m.WindowEnd = &end, &start
		}, true},
		{"empty window", func(m *SyncJobMessage) {
			m.WindowStart, m.WindowEnd = &start, &start
		}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := NewSyncJob(SourceOpenSea, ModeRealtime)
			tc.mutate(&msg)
			err := msg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
