package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"lukechampine.com/blake3"

	"nftlend/observability"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 255
	maxIdempotentBody       = 1 << 20
)

type IdempotencyConfig struct {
	TTL        time.Duration
	MaxEntries int
}

type idempotentEntry struct {
	fingerprint [32]byte
	inFlight    bool
	status      int
	contentType string
	body        []byte
	storedAt    time.Time
}

// IdempotencyCache replays the stored response of a write retried with the
// same Idempotency-Key. Keys are scoped per client and bound to a blake3
// fingerprint of the method, path and body so a reused key cannot replay a
// different request.
type IdempotencyCache struct {
	cfg      IdempotencyConfig
	mu       sync.Mutex
	entries  map[string]*idempotentEntry
	clockNow func() time.Time
}

func NewIdempotencyCache(cfg IdempotencyConfig) *IdempotencyCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	return &IdempotencyCache{
		cfg:      cfg,
		entries:  make(map[string]*idempotentEntry),
		clockNow: time.Now,
	}
}

func (c *IdempotencyCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodDelete) {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			writeError(w, http.StatusBadRequest, "idempotency key too long")
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read request body")
			return
		}
		if len(body) > maxIdempotentBody {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		scoped := clientID(r) + "|" + key
		fingerprint := requestFingerprint(r.Method, r.URL.Path, body)
		entry, fresh := c.reserve(scoped, fingerprint)
		if !fresh {
			switch {
			case entry.fingerprint != fingerprint:
				writeError(w, http.StatusUnprocessableEntity, "idempotency key reused with a different request")
			case entry.inFlight:
				writeError(w, http.StatusConflict, "request with this idempotency key is in progress")
			default:
				observability.API().RecordReplay()
				if entry.contentType != "" {
					w.Header().Set("Content-Type", entry.contentType)
				}
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(entry.status)
				_, _ = w.Write(entry.body)
			}
			return
		}

		capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(capture, r)
		c.complete(scoped, capture)
	})
}

// reserve returns the live entry for key, or records an in-flight entry and
// reports fresh when none exists.
func (c *IdempotencyCache) reserve(key string, fingerprint [32]byte) (idempotentEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clockNow()
	if entry, ok := c.entries[key]; ok {
		if entry.inFlight || now.Sub(entry.storedAt) < c.cfg.TTL {
			return *entry, false
		}
		delete(c.entries, key)
	}
	c.evictLocked(now)
	c.entries[key] = &idempotentEntry{fingerprint: fingerprint, inFlight: true, storedAt: now}
	return idempotentEntry{}, true
}

// complete stores the captured response. Server errors are not cached so the
// client may retry.
func (c *IdempotencyCache) complete(key string, capture *captureWriter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	if capture.status >= http.StatusInternalServerError {
		delete(c.entries, key)
		return
	}
	entry.inFlight = false
	entry.status = capture.status
	entry.contentType = capture.Header().Get("Content-Type")
	entry.body = capture.body.Bytes()
	entry.storedAt = c.clockNow()
}

func (c *IdempotencyCache) evictLocked(now time.Time) {
	if len(c.entries) < c.cfg.MaxEntries {
		return
	}
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if entry.inFlight {
			continue
		}
		if now.Sub(entry.storedAt) >= c.cfg.TTL {
			delete(c.entries, key)
			continue
		}
		if oldestKey == "" || entry.storedAt.Before(oldest) {
			oldestKey, oldest = key, entry.storedAt
		}
	}
	if len(c.entries) >= c.cfg.MaxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func requestFingerprint(method, path string, body []byte) [32]byte {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(method))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(path))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(body)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status = code
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
