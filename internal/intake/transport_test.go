package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTransmit_PostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	tr := NewHTTPTransport(Options{Endpoints: map[string]string{"contact": srv.URL}})
	err := tr.Transmit(context.Background(), "contact", map[string]any{
		"name":        "Asha Rao",
		"initiatives": []string{"Tree Plantation", "Lake Cleaning"},
	})
	if err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if got["name"] != "Asha Rao" {
		t.Fatalf("body name = %v", got["name"])
	}
	if list, ok := got["initiatives"].([]any); !ok || len(list) != 2 {
		t.Fatalf("body initiatives = %#v", got["initiatives"])
	}
}

func TestTransmit_OpaqueIgnoresStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(Options{Endpoints: map[string]string{"contact": srv.URL}})
	if tr.Mode() != ModeOpaque {
		t.Fatalf("default mode = %q", tr.Mode())
	}
	if err := tr.Transmit(context.Background(), "contact", map[string]any{}); err != nil {
		t.Fatalf("opaque mode should treat a 500 as delivered, got %v", err)
	}
}

func TestTransmit_AcknowledgedRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(Options{
		Endpoints: map[string]string{"partner": srv.URL},
		Mode:      ModeAcknowledged,
	})
	err := tr.Transmit(context.Background(), "partner", map[string]any{})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Fatalf("err = %v, want StatusError 502", err)
	}
}

func TestTransmit_NoEndpoint(t *testing.T) {
	tr := NewHTTPTransport(Options{Endpoints: map[string]string{"contact": ""}})
	if tr.Has("contact") {
		t.Fatal("empty URL should not count as configured")
	}
	if err := tr.Transmit(context.Background(), "contact", nil); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("err = %v, want ErrNoEndpoint", err)
	}
}

func TestTransmit_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr := NewHTTPTransport(Options{Endpoints: map[string]string{"contact": url}})
	if err := tr.Transmit(context.Background(), "contact", map[string]any{}); err == nil {
		t.Fatal("expected error for closed server")
	}
}

func TestTransmit_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr := NewHTTPTransport(Options{
		Endpoints: map[string]string{"contact": srv.URL},
		Timeout:   50 * time.Millisecond,
	})
	if err := tr.Transmit(context.Background(), "contact", map[string]any{}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNewHTTPTransport_LeavesCallerClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	tr := NewHTTPTransport(Options{Client: shared, Timeout: 2 * time.Second})

	if shared.Timeout != time.Minute {
		t.Fatalf("caller client timeout = %v, want 1m", shared.Timeout)
	}
	if tr.client == shared || tr.client.Timeout != 2*time.Second {
		t.Fatalf("transport client timeout = %v, want its own 2s copy", tr.client.Timeout)
	}

	bare := &http.Client{}
	tr = NewHTTPTransport(Options{Client: bare})
	if bare.Timeout != 0 || tr.client.Timeout != DefaultTimeout {
		t.Fatalf("default timeout: caller %v, transport %v", bare.Timeout, tr.client.Timeout)
	}
}
