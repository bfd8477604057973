package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPreviewExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/12345/asdf1234==/content" {
			w.Header().Set("ETag", "asdf1234==")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	previews, err := NewPreviewService(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("could not build adapter: %v", err)
	}

	exists, checksum, err := previews.Exists(context.Background(), "12345/asdf1234==", "tok")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if !exists || checksum != "asdf1234==" {
		t.Fatalf("exists = %v, checksum = %q", exists, checksum)
	}

	exists, _, err = previews.Exists(context.Background(), "99999/nope", "tok")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if exists {
		t.Fatalf("expected preview to be missing")
	}
}

func TestPreviewGetOwner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set(OwnerHeader, "5678")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	previews, err := NewPreviewService(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("could not build adapter: %v", err)
	}

	owner, err := previews.GetOwner(context.Background(), "12345/asdf1234==", "tok")
	if err != nil {
		t.Fatalf("get owner failed: %v", err)
	}
	if owner != "5678" {
		t.Fatalf("owner = %q, want 5678", owner)
	}
}

func TestPreviewRetrieve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(OwnerHeader, "5678")
		w.Header().Set("ETag", "checksum==")
		io.WriteString(w, "%PDF-1.4 preview")
	}))
	defer srv.Close()

	previews, err := NewPreviewService(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("could not build adapter: %v", err)
	}

	stream, owner, checksum, err := previews.Retrieve(context.Background(), "12345/asdf1234==", "tok")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	defer stream.Close()
	raw, _ := io.ReadAll(stream)
	if string(raw) != "%PDF-1.4 preview" {
		t.Fatalf("body = %q", raw)
	}
	if owner != "5678" || checksum != "checksum==" {
		t.Fatalf("owner = %q, checksum = %q", owner, checksum)
	}
}

func TestPreviewRetrieveMissing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	previews, err := NewPreviewService(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("could not build adapter: %v", err)
	}
	if _, _, _, err := previews.Retrieve(context.Background(), "99999/nope", "tok"); !errors.Is(err, ErrDoesNotExist) {
		t.Fatalf("expected ErrDoesNotExist, got %v", err)
	}
}
