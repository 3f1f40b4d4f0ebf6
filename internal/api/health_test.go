package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth_AllStoresReachable(t *testing.T) {
	h := &HealthHandler{
		db: PingFunc(func(context.Context) error { return nil }),
		kv: PingFunc(func(context.Context) error { return nil }),
	}

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Database string `json:"database"`
		KV       string `json:"kv"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Database != "ok" || body.KV != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestHealth_DatabaseDownIsDegraded(t *testing.T) {
	h := &HealthHandler{
		db: PingFunc(func(context.Context) error { return errors.New("connection refused") }),
		kv: PingFunc(func(context.Context) error { return nil }),
	}

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q", body.Status)
	}
	if body.Database == "ok" {
		t.Error("database field must carry the failure")
	}
}

func TestHealth_KVDownIsDegraded(t *testing.T) {
	h := &HealthHandler{
		db: PingFunc(func(context.Context) error { return nil }),
		kv: PingFunc(func(context.Context) error { return errors.New("redis timeout") }),
	}

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
