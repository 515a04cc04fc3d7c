package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestURL(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>listings</body></html>"))
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("URL failed: %v", err)
	}

	if result.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", result.StatusCode)
	}
	if result.HTML != "<html><body>listings</body></html>" {
		t.Errorf("unexpected HTML: %q", result.HTML)
	}
	if result.ContentType != "text/html; charset=utf-8" {
		t.Errorf("unexpected ContentType: %q", result.ContentType)
	}
	if gotUserAgent != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUserAgent, DefaultUserAgent)
	}
}

func TestURLCustomHeaders(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.Headers = map[string]string{"Accept-Language": "en-US"}

	if _, err := URL(context.Background(), server.URL, opts); err != nil {
		t.Fatalf("URL failed: %v", err)
	}
	if gotHeader != "en-US" {
		t.Errorf("Accept-Language = %q, want en-US", gotHeader)
	}
}

func TestURLNon200Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	result, err := URL(context.Background(), server.URL, nil)
	if err == nil {
		t.Fatal("expected an error for a 503 response")
	}
	if result == nil || result.StatusCode != http.StatusServiceUnavailable {
		t.Error("result should still carry the response status")
	}
}

func TestURLInvalid(t *testing.T) {
	for _, u := range []string{"", "not-a-url", "://missing-scheme"} {
		if _, err := URL(context.Background(), u, nil); err == nil {
			t.Errorf("expected an error for %q", u)
		}
	}
}
