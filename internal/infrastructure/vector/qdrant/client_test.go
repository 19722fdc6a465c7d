package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

func testRecords() []domain.IndexRecord {
	return []domain.IndexRecord{
		{ID: "doc-1#0", Vector: domain.EmbeddingVector{0.1, 0.2}, Metadata: map[string]string{domain.MetaText: "a"}},
		{ID: "doc-1#1", Vector: domain.EmbeddingVector{0.3, 0.4}, Metadata: map[string]string{domain.MetaText: "b"}},
	}
}

func TestUpsertEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var ids []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			var body struct {
				Points []point `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for _, p := range body.Points {
				ids = append(ids, p.ID)
			}
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", "Dot")
	if err := client.UpsertBatch(context.Background(), testRecords()); err != nil {
		t.Fatalf("first UpsertBatch() error = %v", err)
	}
	if err := client.UpsertBatch(context.Background(), testRecords()); err != nil {
		t.Fatalf("second UpsertBatch() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if len(ids) != 4 || ids[0] != ids[2] || ids[0] != PointID("doc-1#0") {
		t.Fatalf("expected deterministic point ids, got %v", ids)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/docs" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	err := New(server.URL, "docs", "").UpsertBatch(context.Background(), testRecords())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected 500 to map to index unavailable, got %v", err)
	}
}

func TestQueryMapsPayloadToNeighbors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/docs/points/search" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"result":[{"id":"x","score":0.9,"payload":{"record_id":"doc-1#4","text":"hello","sequence_index":"4"}}]}`))
	}))
	defer server.Close()

	neighbors, err := New(server.URL, "docs", "").Query(context.Background(), []float32{1, 0}, 3, "")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].ID != "doc-1#4" || neighbors[0].Distance != 0.9 {
		t.Fatalf("unexpected neighbors %+v", neighbors)
	}
	if neighbors[0].Metadata[domain.MetaText] != "hello" {
		t.Fatalf("unexpected metadata %+v", neighbors[0].Metadata)
	}
}

func TestQueryMissingCollectionIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"Not found: Collection docs doesn't exist!"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	neighbors, err := New(server.URL, "docs", "").Query(context.Background(), []float32{1}, 3, "")
	if err != nil || len(neighbors) != 0 {
		t.Fatalf("expected empty result without error, got %v %v", neighbors, err)
	}
}

func TestQueryUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New(url, "docs", "").Query(context.Background(), []float32{1}, 3, "")
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected index unavailable, got %v", err)
	}
}
