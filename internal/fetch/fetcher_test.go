package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefetch/harvester/internal/harvest"
)

const activationPage = `<!DOCTYPE html>
<html>
<head>
  <title>Activation</title>
  <link rel="stylesheet" href="/static/site.css">
  <link rel="icon" href="/favicon.ico">
</head>
<body>
  <div data-controller="copytoclipboard">
    <input type="text" value="SECRET-%s" readonly>
  </div>
  <div class="instruction-card">
    <img src="/static/logo.png" alt="logo">
    <p>Redeem at <a href="/redeem">the redeem page</a>.</p>
  </div>
</body>
</html>`

// stubLocalizer maps every URL to a deterministic local path.
type stubLocalizer struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (l *stubLocalizer) Localize(_ context.Context, rawURL string) (string, bool) {
	l.mu.Lock()
	l.calls = append(l.calls, rawURL)
	l.mu.Unlock()
	if l.fail {
		return "", false
	}
	parts := strings.Split(rawURL, "/")
	return "assets/" + parts[len(parts)-1], true
}

// memArtifacts records saved documents by name.
type memArtifacts struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{saved: make(map[string][]byte)}
}

func (a *memArtifacts) Save(_ context.Context, name string, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved[name] = append([]byte(nil), body...)
	return name, nil
}

func (a *memArtifacts) get(name string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body, ok := a.saved[name]
	return body, ok
}

func newTestFetcher(t *testing.T, baseURL string, assets Localizer, artifacts ArtifactSink) *Fetcher {
	t.Helper()
	f, err := New(Config{
		BaseURL:     baseURL,
		PadWidth:    6,
		UserAgent:   "harvester-test",
		Timeout:     5 * time.Second,
		Concurrency: 4,
	}, assets, artifacts, nil)
	require.NoError(t, err)
	return f
}

func TestFetcherFetch_SuccessExtractsAndSaves(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/activation/")
		fmt.Fprintf(w, activationPage, id)
	}))
	defer srv.Close()

	localizer := &stubLocalizer{}
	artifacts := newMemArtifacts()
	f := newTestFetcher(t, srv.URL+"/activation/%s", localizer, artifacts)

	out := f.Fetch(context.Background(), 7)

	assert.Equal(t, harvest.ID(7), out.ID)
	assert.Equal(t, 200, out.Status)
	assert.Equal(t, "SECRET-000007", out.SecretCode)

	body, ok := artifacts.get("000007.html")
	require.True(t, ok, "expected a saved document")
	html := string(body)

	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, `href="assets/site.css"`)
	assert.Contains(t, html, `src="assets/logo.png"`)
	assert.Contains(t, html, `href="`+srv.URL+`/redeem"`)
	assert.Contains(t, html, "instruction-card")
	assert.NotContains(t, html, "copytoclipboard")
}

func TestFetcherFetch_LocalizerFailureKeepsRemoteReference(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, activationPage, "000001")
	}))
	defer srv.Close()

	artifacts := newMemArtifacts()
	f := newTestFetcher(t, srv.URL+"/activation/%s", &stubLocalizer{fail: true}, artifacts)

	out := f.Fetch(context.Background(), 1)
	require.Equal(t, 200, out.Status)

	body, ok := artifacts.get("000001.html")
	require.True(t, ok)
	assert.Contains(t, string(body), `href="`+srv.URL+`/static/site.css"`)
}

func TestFetcherFetch_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	artifacts := newMemArtifacts()
	f := newTestFetcher(t, srv.URL+"/activation/%s", &stubLocalizer{}, artifacts)

	out := f.Fetch(context.Background(), 2)
	assert.Equal(t, 404, out.Status)
	assert.Equal(t, harvest.CodeNotFound, out.SecretCode)
	_, ok := artifacts.get("000002.html")
	assert.False(t, ok)
}

func TestFetcherFetch_RateLimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL+"/activation/%s", &stubLocalizer{}, newMemArtifacts())
	out := f.Fetch(context.Background(), 3)
	assert.Equal(t, 429, out.Status)
	assert.Equal(t, harvest.CodeNotFound, out.SecretCode)
}

func TestFetcherFetch_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL+"/activation/%s", &stubLocalizer{}, newMemArtifacts())
	out := f.Fetch(context.Background(), 4)
	assert.Equal(t, 500, out.Status)
}

func TestFetcherFetch_UnreachableHost(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, "http://127.0.0.1:1/activation/%s", &stubLocalizer{}, newMemArtifacts())
	out := f.Fetch(context.Background(), 5)
	assert.Equal(t, 0, out.Status)
	assert.Equal(t, harvest.CodeError, out.SecretCode)
}

func TestFetcherFetch_PageWithoutTargets(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>nothing here</p></body></html>"))
	}))
	defer srv.Close()

	artifacts := newMemArtifacts()
	f := newTestFetcher(t, srv.URL+"/activation/%s", &stubLocalizer{}, artifacts)

	out := f.Fetch(context.Background(), 6)
	assert.Equal(t, 200, out.Status)
	assert.Equal(t, harvest.CodeNotFound, out.SecretCode)
	_, ok := artifacts.get("000006.html")
	assert.False(t, ok, "no fragment means no artifact")
}

func TestFetcherFetch_RevisitsOnRetry(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprintf(w, activationPage, "000008")
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL+"/activation/%s", &stubLocalizer{}, newMemArtifacts())

	first := f.Fetch(context.Background(), 8)
	assert.Equal(t, 429, first.Status)

	second := f.Fetch(context.Background(), 8)
	assert.Equal(t, 200, second.Status)
	assert.Equal(t, "SECRET-000008", second.SecretCode)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil, nil)
	require.Error(t, err)
}
