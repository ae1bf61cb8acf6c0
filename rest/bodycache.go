package rest

import (
	"bytes"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultBodyCacheSize = 512
	defaultBodyCacheTTL  = 10 * time.Minute

	// Only compress bodies above this size; small ones are not worth it.
	compressionThreshold = 1024
)

// cachedBody is one conditional-GET validator entry: the ETag the server
// handed out and the body it validates. Large bodies are stored
// gzip-compressed.
type cachedBody struct {
	etag       string
	data       []byte
	compressed bool
	storedAt   time.Time
}

// bodyCache remembers response bodies per GET URL so a 304 Not Modified
// can be served from memory instead of failing the read.
type bodyCache struct {
	entries *lru.Cache[string, *cachedBody]
	ttl     time.Duration
}

func newBodyCache(size int, ttl time.Duration) *bodyCache {
	entries, _ := lru.New[string, *cachedBody](size)
	return &bodyCache{entries: entries, ttl: ttl}
}

func bodyCacheKey(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(path)
	sb.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params[k]))
	}
	return sb.String()
}

func (bc *bodyCache) etagFor(key string) (string, bool) {
	e, ok := bc.entries.Get(key)
	if !ok {
		return "", false
	}
	if time.Since(e.storedAt) >= bc.ttl {
		bc.entries.Remove(key)
		return "", false
	}
	return e.etag, true
}

func (bc *bodyCache) get(key string) ([]byte, bool) {
	e, ok := bc.entries.Get(key)
	if !ok {
		return nil, false
	}
	if time.Since(e.storedAt) >= bc.ttl {
		bc.entries.Remove(key)
		return nil, false
	}
	if !e.compressed {
		return e.data, true
	}
	data, err := decompress(e.data)
	if err != nil {
		bc.entries.Remove(key)
		return nil, false
	}
	return data, true
}

func (bc *bodyCache) put(key, etag string, body []byte) {
	data := make([]byte, len(body))
	copy(data, body)

	e := &cachedBody{etag: etag, data: data, storedAt: time.Now()}
	if len(data) > compressionThreshold {
		if comp, err := compress(data); err == nil && len(comp) < len(data) {
			e.data = comp
			e.compressed = true
		}
	}
	bc.entries.Add(key, e)
}

func (bc *bodyCache) remove(key string) {
	bc.entries.Remove(key)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
