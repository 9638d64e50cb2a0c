package airrohr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestNewClient(t *testing.T) {
	client := NewClient()

	if client.HTTPClient == nil {
		t.Fatal("HTTPClient should not be nil")
	}
	if client.HTTPClient.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", client.HTTPClient.Timeout, DefaultTimeout)
	}
	if !strings.HasPrefix(client.UserAgent, "airscout/") {
		t.Errorf("UserAgent = %q", client.UserAgent)
	}

	client.SetTimeout(2 * time.Second)
	if client.HTTPClient.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", client.HTTPClient.Timeout)
	}
}

func TestDataURL(t *testing.T) {
	tests := map[string]string{
		"1.2.3.4":      "http://1.2.3.4/data.json",
		"1.2.3.4:8080": "http://1.2.3.4:8080/data.json",
		"[fe80::1]":    "http://[fe80::1]/data.json",
	}
	for in, want := range tests {
		if got := DataURL(in); got != want {
			t.Errorf("DataURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFetchReadings_Success(t *testing.T) {
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleData))
	}))
	defer srv.Close()

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client := NewClient()
	client.now = func() time.Time { return fixed }

	r, err := client.FetchReadings(context.Background(), hostOf(srv))
	if err != nil {
		t.Fatalf("FetchReadings() error = %v", err)
	}

	if gotPath != DataPath {
		t.Errorf("path = %q, want %q", gotPath, DataPath)
	}
	if gotUA != client.UserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, client.UserAgent)
	}
	if !r.FetchedAt.Equal(fixed) {
		t.Errorf("FetchedAt = %v", r.FetchedAt)
	}
	if pm, _ := r.Find(KindPM25); pm.Format() != "12.3 µg/m³" {
		t.Errorf("PM2.5 = %q", pm.Format())
	}
}

func TestFetchReadings_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient().FetchReadings(context.Background(), hostOf(srv))

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.Type != ErrTypeHTTP || fe.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("got %v status %d", fe.Type, fe.StatusCode)
	}
}

func TestFetchReadings_BadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>config page</html>"))
	}))
	defer srv.Close()

	_, err := NewClient().FetchReadings(context.Background(), hostOf(srv))
	if !IsParseError(err) {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestFetchReadings_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := hostOf(srv)
	srv.Close()

	_, err := NewClient().FetchReadings(context.Background(), host)
	if !IsNetworkError(err) {
		t.Errorf("expected network error, got %v", err)
	}
}

func TestFetchReadings_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient().FetchReadings(ctx, hostOf(srv))

	var fe *FetchError
	if !errors.As(err, &fe) || fe.Type != ErrTypeTimeout {
		t.Fatalf("expected timeout FetchError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected context.DeadlineExceeded in chain")
	}
}

func TestFetchReadings_NoAddress(t *testing.T) {
	if _, err := NewClient().FetchReadings(context.Background(), ""); err == nil {
		t.Error("expected error for empty address")
	}
}
