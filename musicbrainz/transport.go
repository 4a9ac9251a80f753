package musicbrainz

import (
	"bytes"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"headhunter/metrics"
)

// cacheTTL bounds upstream load; MusicBrainz responses for identical URLs
// are reused for this long.
const cacheTTL = 60 * time.Second

type cachedResponse struct {
	status int
	header http.Header
	body   []byte
}

func (c cachedResponse) response(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    c.status,
		Status:        http.StatusText(c.status),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        c.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(c.body)),
		ContentLength: int64(len(c.body)),
		Request:       req,
	}
}

// cachingTransport caches successful GET responses keyed by full request URL.
type cachingTransport struct {
	next  http.RoundTripper
	cache *gocache.Cache
}

func newCachingTransport(next http.RoundTripper, ttl time.Duration) *cachingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &cachingTransport{next: next, cache: gocache.New(ttl, 2*ttl)}
}

func (t *cachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.next.RoundTrip(req)
	}
	key := req.URL.String()
	if v, ok := t.cache.Get(key); ok {
		metrics.UpstreamCacheHits.Inc()
		return v.(cachedResponse).response(req), nil
	}

	res, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, err
	}
	cached := cachedResponse{status: res.StatusCode, header: res.Header.Clone(), body: body}
	if res.StatusCode == http.StatusOK {
		t.cache.SetDefault(key, cached)
	}
	return cached.response(req), nil
}
