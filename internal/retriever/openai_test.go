package retriever

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"
)

const searchResponse = `{
  "object": "vector_store.search_results.page",
  "search_query": "acme revenue",
  "data": [
    {
      "file_id": "file-1",
      "filename": "acme-10k.pdf",
      "score": 0.91,
      "attributes": {"year": 2024, "region": "eu", "audited": true},
      "content": [{"type": "text", "text": "Revenue grew 12%."}]
    },
    {
      "file_id": "file-2",
      "filename": "acme-q3.pdf",
      "score": 0.55,
      "attributes": {},
      "content": []
    }
  ],
  "has_more": false,
  "next_page": null
}`

// newVectorStoreServer serves one canned search response and hands the
// request body to inspect.
func newVectorStoreServer(t *testing.T, status int, body string, inspect func(path string, req gjson.Result)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if inspect != nil {
			inspect(r.URL.Path, gjson.ParseBytes(raw))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOpenAI_RequiresCredentials(t *testing.T) {
	t.Parallel()
	if _, err := NewOpenAI("", "vs_1"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := NewOpenAI("sk-test", ""); err == nil {
		t.Error("expected error for empty vector store id")
	}
}

func TestOpenAI_Search(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotReq  gjson.Result
	)
	srv := newVectorStoreServer(t, http.StatusOK, searchResponse, func(path string, req gjson.Result) {
		gotPath, gotReq = path, req
	})
	backend, err := NewOpenAI("sk-test", "vs_1", WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}

	chunks, err := backend.Search(context.Background(), Query{
		Text:           "acme revenue",
		MaxResults:     5,
		ScoreThreshold: 0.5,
		Ranker:         "auto",
		RewriteQuery:   true,
		Filters:        []Filter{{Key: "year", Value: 2024.0}},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotPath != "/v1/vector_stores/vs_1/search" {
		t.Errorf("path = %q", gotPath)
	}
	if gotReq.Get("query").String() != "acme revenue" {
		t.Errorf("query = %s", gotReq.Get("query").Raw)
	}
	if gotReq.Get("max_num_results").Int() != 5 {
		t.Errorf("max_num_results = %s", gotReq.Get("max_num_results").Raw)
	}
	if !gotReq.Get("rewrite_query").Bool() {
		t.Error("rewrite_query not sent")
	}
	if gotReq.Get("ranking_options.ranker").String() != "auto" {
		t.Errorf("ranker = %s", gotReq.Get("ranking_options.ranker").Raw)
	}
	if gotReq.Get("ranking_options.score_threshold").Float() != 0.5 {
		t.Errorf("score_threshold = %s", gotReq.Get("ranking_options.score_threshold").Raw)
	}
	if f := gotReq.Get("filters"); f.Get("type").String() != "eq" || f.Get("key").String() != "year" || f.Get("value").Float() != 2024 {
		t.Errorf("filters = %s, want a single eq comparison", f.Raw)
	}

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	first := chunks[0]
	if first.FileID != "file-1" || first.Filename != "acme-10k.pdf" || first.Score != 0.91 {
		t.Errorf("first chunk = %+v", first)
	}
	if len(first.Content) != 1 || first.Content[0].Text != "Revenue grew 12%." || first.Content[0].Type != "text" {
		t.Errorf("content = %+v", first.Content)
	}
	if first.Attributes["year"] != 2024.0 || first.Attributes["region"] != "eu" || first.Attributes["audited"] != true {
		t.Errorf("attributes = %v", first.Attributes)
	}
	if chunks[1].Content == nil || chunks[1].Attributes == nil {
		t.Error("empty content or attributes decoded as nil")
	}
}

func TestOpenAI_SearchCompoundFilter(t *testing.T) {
	t.Parallel()

	var gotReq gjson.Result
	srv := newVectorStoreServer(t, http.StatusOK, searchResponse, func(_ string, req gjson.Result) {
		gotReq = req
	})
	backend, err := NewOpenAI("sk-test", "vs_1", WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	_, err = backend.Search(context.Background(), Query{
		Text: "acme",
		Filters: []Filter{
			{Key: "region", Value: "eu"},
			{Key: "audited", Value: true},
		},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	f := gotReq.Get("filters")
	if f.Get("type").String() != "and" {
		t.Fatalf("filters = %s, want an and compound", f.Raw)
	}
	parts := f.Get("filters").Array()
	if len(parts) != 2 {
		t.Fatalf("compound has %d filters, want 2", len(parts))
	}
	if parts[0].Get("value").String() != "eu" || !parts[1].Get("value").Bool() {
		t.Errorf("compound filters = %s", f.Get("filters").Raw)
	}
	if gotReq.Get("max_num_results").Exists() {
		t.Error("max_num_results sent although not set")
	}
}

func TestOpenAI_SearchHTTPError(t *testing.T) {
	t.Parallel()
	srv := newVectorStoreServer(t, http.StatusInternalServerError, `{"error":{"message":"boom"}}`, nil)
	backend, err := NewOpenAI("sk-test", "vs_1", WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	chunks, err := backend.Search(context.Background(), Query{Text: "acme"})
	if err == nil {
		t.Fatal("expected error from failing server")
	}
	if chunks != nil {
		t.Errorf("chunks = %v, want nil on error", chunks)
	}
}

func TestOpenAI_SearchHonoursCancellation(t *testing.T) {
	t.Parallel()
	srv := newVectorStoreServer(t, http.StatusOK, searchResponse, nil)
	backend, err := NewOpenAI("sk-test", "vs_1", WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = backend.Search(ctx, Query{Text: "acme"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
