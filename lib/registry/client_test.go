// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/appmgr/lib/netutil"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

const testHash = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"

// fakeRegistry serves one package version.
type fakeRegistry struct {
	mu       sync.Mutex
	queries  []string
	version  string
	archive  string
	hash     string
	status   int
	chunked  bool
	manifest string
}

func (f *fakeRegistry) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /package/manifest/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if f.status != 0 {
			http.Error(w, "package not found", f.status)
			return
		}
		body := f.manifest
		if body == "" {
			body = fmt.Sprintf(`{"id":%q,"version":%q,"title":"Hello World","main":{"image":"main","entrypoint":"hello"}}`,
				r.PathValue("id"), f.version)
		}
		io.WriteString(w, body)
	})
	mux.HandleFunc("GET /package/{file}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if !strings.HasSuffix(r.PathValue("file"), ".s9pk") {
			http.NotFound(w, r)
			return
		}
		if f.status != 0 {
			http.Error(w, "package not found", f.status)
			return
		}
		if f.hash != "" {
			w.Header().Set(HashHeader, f.hash)
		}
		if f.chunked {
			w.(http.Flusher).Flush()
		}
		io.WriteString(w, f.archive)
	})
	return mux
}

func (f *fakeRegistry) record(r *http.Request) {
	f.mu.Lock()
	f.queries = append(f.queries, r.URL.Query().Get("version"))
	f.mu.Unlock()
}

func newTestClient(t *testing.T, registry *fakeRegistry) *Client {
	t.Helper()
	server := httptest.NewServer(registry.handler(t))
	t.Cleanup(server.Close)
	client, err := NewClient(Config{BaseURL: server.URL + "/"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestResolve(t *testing.T) {
	registry := &fakeRegistry{version: "0.3.0", archive: "archive bytes", hash: strings.ToUpper(testHash)}
	client := newTestClient(t, registry)

	resolution, err := client.Resolve(context.Background(), "hello-world", pkgid.MustParseVersionRange(">=0.3.0"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer resolution.Download.Body.Close()

	if resolution.Manifest.ID != "hello-world" || resolution.Manifest.Version.String() != "0.3.0" {
		t.Errorf("manifest = %s@%s", resolution.Manifest.ID, resolution.Manifest.Version)
	}
	if resolution.Download.Hash != testHash {
		t.Errorf("Hash = %q, want lowercased %q", resolution.Download.Hash, testHash)
	}
	if resolution.Download.ContentLength != int64(len("archive bytes")) {
		t.Errorf("ContentLength = %d", resolution.Download.ContentLength)
	}
	body, err := io.ReadAll(resolution.Download.Body)
	if err != nil || string(body) != "archive bytes" {
		t.Errorf("body = %q, %v", body, err)
	}
	for _, query := range registry.queries {
		if query != ">=0.3.0" {
			t.Errorf("version query = %q, want >=0.3.0", query)
		}
	}
	if len(registry.queries) != 2 {
		t.Errorf("registry saw %d requests, want 2", len(registry.queries))
	}
}

func TestResolveUnknownLengthAndMalformedHash(t *testing.T) {
	registry := &fakeRegistry{version: "0.3.0", archive: "archive bytes", hash: "not-a-hash", chunked: true}
	client := newTestClient(t, registry)

	resolution, err := client.Resolve(context.Background(), "hello-world", pkgid.AnyVersion)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer resolution.Download.Body.Close()
	if resolution.Download.Hash != "" {
		t.Errorf("Hash = %q, want malformed header ignored", resolution.Download.Hash)
	}
	if resolution.Download.ContentLength != -1 {
		t.Errorf("ContentLength = %d, want -1 for a chunked body", resolution.Download.ContentLength)
	}
}

func TestResolveNotFound(t *testing.T) {
	client := newTestClient(t, &fakeRegistry{status: http.StatusNotFound})

	_, err := client.Resolve(context.Background(), "missing", pkgid.AnyVersion)
	if !IsNotFound(err) {
		t.Fatalf("error = %v, want 404 StatusError", err)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Retryable() {
		t.Error("404 reported retryable")
	}
}

func TestResolveRejectsVersionOutsideRange(t *testing.T) {
	client := newTestClient(t, &fakeRegistry{version: "0.2.0", archive: "x"})

	if _, err := client.Resolve(context.Background(), "hello-world", pkgid.MustParseVersionRange(">=0.3.0")); err == nil {
		t.Fatal("Resolve accepted a version outside the requested range")
	}
}

func TestResolveRejectsInvalidManifest(t *testing.T) {
	client := newTestClient(t, &fakeRegistry{manifest: `{"id":"hello-world"}`, archive: "x"})

	if _, err := client.Resolve(context.Background(), "hello-world", pkgid.AnyVersion); err == nil {
		t.Fatal("Resolve accepted a manifest without version, title or main")
	}
}

func TestResolveConnectFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	address := server.URL
	server.Close()

	client, err := NewClient(Config{BaseURL: address})
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Resolve(context.Background(), "hello-world", pkgid.AnyVersion)
	var networkErr *NetworkError
	if !errors.As(err, &networkErr) {
		t.Fatalf("error = %v, want *NetworkError", err)
	}
	if networkErr.Kind != netutil.TransportConnect || !networkErr.Retryable() {
		t.Errorf("Kind = %s, Retryable = %v; want retryable connect", networkErr.Kind, networkErr.Retryable())
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "registry.example", "ftp://registry.example"} {
		if _, err := NewClient(Config{BaseURL: raw}); err == nil {
			t.Errorf("NewClient(%q) succeeded", raw)
		}
	}
}

func TestWrapTransport(t *testing.T) {
	if WrapTransport("op", nil) != nil {
		t.Error("WrapTransport(nil) != nil")
	}
	wrapped := WrapTransport("download", context.DeadlineExceeded)
	var networkErr *NetworkError
	if !errors.As(wrapped, &networkErr) || networkErr.Kind != netutil.TransportTimeout {
		t.Fatalf("WrapTransport(deadline) = %v", wrapped)
	}
	if again := WrapTransport("other", wrapped); again != wrapped {
		t.Error("WrapTransport re-wrapped a NetworkError")
	}
}
