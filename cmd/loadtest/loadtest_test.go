package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/johndosdos/claudespark/internal/reply"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0.5, 5},
		{0.95, 9},
		{1, 10},
		{0, 1},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}

	if got := percentile(nil, 0.5); got != 0 {
		t.Errorf("percentile(nil) = %v, want 0", got)
	}
}

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req reply.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Nonce == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(reply.ChatResponse{Reply: "ok"})
	}))
	defer srv.Close()

	if err := send(context.Background(), srv.Client(), srv.URL, "tok", "hi"); err != nil {
		t.Fatalf("send() error = %v", err)
	}
	if err := send(context.Background(), srv.Client(), srv.URL, "bad", "hi"); err == nil {
		t.Fatal("send() with a bad token should fail")
	}
}
