package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"arxiv-fulltext-service/internal/config"
)

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		CanonicalEndpoint: endpoint,
		CanonicalVerify:   true,
		PreviewEndpoint:   endpoint,
		PreviewVerify:     true,
		PDFRetrySleep:     10 * time.Millisecond,
		RequestTimeout:    5 * time.Second,
	}
}

func TestCanonicalExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pdf/1801.00123" {
			w.Header().Set("Content-Type", "application/pdf")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	canonical, err := NewCanonicalPDF(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("could not build adapter: %v", err)
	}

	exists, err := canonical.Exists(context.Background(), "1801.00123")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if !exists {
		t.Fatalf("expected document to exist")
	}

	exists, err = canonical.Exists(context.Background(), "1801.99999")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if exists {
		t.Fatalf("expected document to be missing")
	}
}

func TestCanonicalRetrieveWaitsForRender(t *testing.T) {
	var gets int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets++
		// The classic PDF route serves an HTML placeholder while the PDF
		// is still rendering.
		if gets < 3 {
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, "<html>please wait</html>")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.4 fake body")
	}))
	defer srv.Close()

	canonical, err := NewCanonicalPDF(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("could not build adapter: %v", err)
	}

	body, err := canonical.Retrieve(context.Background(), "1801.00123")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(raw) != "%PDF-1.4 fake body" {
		t.Fatalf("body = %q", raw)
	}
	if gets != 3 {
		t.Fatalf("expected 3 attempts, got %d", gets)
	}
}

func TestCanonicalRetrieveMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	canonical, err := NewCanonicalPDF(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("could not build adapter: %v", err)
	}

	if _, err := canonical.Retrieve(context.Background(), "1801.99999"); !errors.Is(err, ErrDoesNotExist) {
		t.Fatalf("expected ErrDoesNotExist, got %v", err)
	}
}

func TestCanonicalRejectsURLOutsideWhitelist(t *testing.T) {
	cfg := testConfig("https://somewhere-else.example")
	cfg.SourceWhitelist = []string{"arxiv.org"}

	canonical, err := NewCanonicalPDF(cfg)
	if err != nil {
		t.Fatalf("could not build adapter: %v", err)
	}
	if _, err := canonical.Exists(context.Background(), "1801.00123"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}
