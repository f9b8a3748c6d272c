package httpkit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scope-engine/scope-assistant/internal/buildinfo"
)

func TestNewClientDefaultUserAgentIsStamped(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient()
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	DrainAndClose(resp.Body, 1024)

	if gotUA != buildinfo.UserAgent() {
		t.Errorf("User-Agent = %q, want %q", gotUA, buildinfo.UserAgent())
	}
}

func TestNewClientSetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient(WithUserAgent("scope-test/1.0"))
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	DrainAndClose(resp.Body, 1024)

	if gotUA != "scope-test/1.0" {
		t.Errorf("User-Agent = %q, want scope-test/1.0", gotUA)
	}
}

func TestUserAgentNotOverwritten(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient()
	req, _ := http.NewRequest("GET", srv.URL, nil)
	req.Header.Set("User-Agent", "explicit/2.0")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	DrainAndClose(resp.Body, 1024)

	if gotUA != "explicit/2.0" {
		t.Errorf("User-Agent = %q, want explicit/2.0", gotUA)
	}
}

func TestWithTimeout(t *testing.T) {
	client := NewClient(WithTimeout(5 * time.Second))
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
}

func TestReadErrorBody(t *testing.T) {
	body := io.NopCloser(strings.NewReader("upstream exploded"))
	got := ReadErrorBody(body, 512)
	if got != "upstream exploded" {
		t.Errorf("ReadErrorBody() = %q", got)
	}

	if got := ReadErrorBody(nil, 512); got != "" {
		t.Errorf("ReadErrorBody(nil) = %q, want empty", got)
	}
}

func TestReadErrorBodyTruncates(t *testing.T) {
	body := io.NopCloser(strings.NewReader(strings.Repeat("x", 100)))
	got := ReadErrorBody(body, 10)
	if len(got) != 10 {
		t.Errorf("len = %d, want 10", len(got))
	}
}
