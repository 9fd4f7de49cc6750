package instructions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPProviderLookup(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("call_sid"); got != "CA123" {
			t.Errorf("call_sid = %q, want CA123", got)
		}
		_, _ = w.Write([]byte("Speak only in haiku.\n"))
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.URL, time.Second)
	text, err := p.Lookup(context.Background(), "CA123")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if text != "Speak only in haiku." {
		t.Fatalf("text = %q", text)
	}
}

func TestHTTPProviderSurfacesStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	p := NewHTTPProvider(ts.URL, time.Second)
	if _, err := p.Lookup(context.Background(), "CA123"); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}

func TestStaticProvider(t *testing.T) {
	p := Static{Text: "hello"}
	text, err := p.Lookup(context.Background(), "any")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if text != "hello" {
		t.Fatalf("text = %q, want hello", text)
	}
}
