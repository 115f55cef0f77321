package auth

import (
	"container/list"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// HeaderAPIKey identifies the storefront tenant issuing the request.
	HeaderAPIKey = "X-Api-Key"
	// HeaderTimestamp is the unix timestamp (seconds) the request was signed at.
	HeaderTimestamp = "X-Timestamp"
	// HeaderNonce makes each signed request unique within the replay window.
	HeaderNonce = "X-Nonce"
	// HeaderSignature carries the hex HMAC-SHA256 over the request metadata.
	HeaderSignature = "X-Signature"

	// MaxSignedBody bounds the body size that participates in the signature.
	MaxSignedBody = 1 << 20 // 1 MiB

	maxTimestampSkew  = 2 * time.Minute
	maxNonceTTL       = 10 * time.Minute
	maxNonceCapacity  = 65536
	defaultNonceTTL   = maxNonceTTL
	defaultNonceCap   = 4096
	persistPruneEvery = time.Minute
)

// Principal identifies an authenticated storefront tenant.
type Principal struct {
	APIKey string
}

// NonceRecord is one persisted nonce observation.
type NonceRecord struct {
	APIKey     string
	Timestamp  string
	Nonce      string
	ObservedAt time.Time
}

// NoncePersistence stores nonce observations durably so replay protection
// survives gateway restarts.
type NoncePersistence interface {
	EnsureNonce(ctx context.Context, record NonceRecord) (bool, error)
	RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error)
	PruneNonces(ctx context.Context, cutoff time.Time) error
}

// Options configures an Authenticator. Zero values fall back to the bundled
// defaults; skew, TTL, and capacity are clamped to their hard ceilings.
type Options struct {
	Secrets       map[string]string
	TimestampSkew time.Duration
	NonceTTL      time.Duration
	NonceCapacity int
	Now           func() time.Time
	Persistence   NoncePersistence
}

// Authenticator verifies API key + HMAC signatures on storefront requests.
type Authenticator struct {
	secrets       map[string]string
	skew          time.Duration
	nonceTTL      time.Duration
	nonceCapacity int
	nowFn         func() time.Time

	nonceMu sync.Mutex
	nonces  map[string]*nonceCache

	tsMu       sync.Mutex
	lastUnix   map[string]int64
	persist    NoncePersistence
	lastPruned time.Time
}

func NewAuthenticator(opts Options) *Authenticator {
	secrets := make(map[string]string, len(opts.Secrets))
	for key, secret := range opts.Secrets {
		secrets[strings.TrimSpace(key)] = strings.TrimSpace(secret)
	}
	skew := opts.TimestampSkew
	if skew <= 0 || skew > maxTimestampSkew {
		skew = maxTimestampSkew
	}
	ttl := opts.NonceTTL
	if ttl <= 0 {
		ttl = defaultNonceTTL
	}
	if ttl > maxNonceTTL {
		ttl = maxNonceTTL
	}
	capacity := opts.NonceCapacity
	if capacity <= 0 {
		capacity = defaultNonceCap
	}
	if capacity > maxNonceCapacity {
		capacity = maxNonceCapacity
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Authenticator{
		secrets:       secrets,
		skew:          skew,
		nonceTTL:      ttl,
		nonceCapacity: capacity,
		nowFn:         nowFn,
		nonces:        make(map[string]*nonceCache),
		lastUnix:      make(map[string]int64),
		persist:       opts.Persistence,
	}
}

// Authenticate validates the signed headers and returns the tenant principal.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > MaxSignedBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", MaxSignedBody)
	}
	apiKey := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	if apiKey == "" {
		return nil, errors.New("missing X-Api-Key header")
	}
	secret, ok := a.secrets[apiKey]
	if !ok || secret == "" {
		return nil, errors.New("unknown API key")
	}
	tsHeader := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	if tsHeader == "" {
		return nil, errors.New("missing X-Timestamp header")
	}
	ts, err := parseUnixSeconds(tsHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	now := a.nowFn().UTC()
	if drift := now.Sub(ts).Abs(); drift > a.skew {
		return nil, fmt.Errorf("timestamp outside allowed skew of %s", a.skew)
	}
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	if nonce == "" {
		return nil, errors.New("missing X-Nonce header")
	}
	providedSig := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if providedSig == "" {
		return nil, errors.New("missing X-Signature header")
	}
	provided, err := hex.DecodeString(providedSig)
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	expected := ComputeSignature(secret, tsHeader, nonce, r.Method, CanonicalRequestPath(r), body)
	if !hmac.Equal(provided, expected) {
		return nil, errors.New("invalid signature")
	}
	replayed, err := a.registerNonce(r.Context(), apiKey, tsHeader, nonce, now)
	if err != nil {
		return nil, err
	}
	if replayed {
		return nil, errors.New("nonce already used")
	}
	if a.timestampReplayed(apiKey, ts.Unix(), now) {
		return nil, errors.New("timestamp not increasing")
	}
	return &Principal{APIKey: apiKey}, nil
}

// HydrateNonces preloads the in-memory replay window from persistence. Called
// once at startup before the gateway accepts traffic.
func (a *Authenticator) HydrateNonces(ctx context.Context, cutoff time.Time) error {
	if a == nil || a.persist == nil {
		return nil
	}
	records, err := a.persist.RecentNonces(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load persisted nonces: %w", err)
	}
	for _, rec := range records {
		if rec.APIKey == "" || rec.Timestamp == "" || rec.Nonce == "" {
			continue
		}
		observed := rec.ObservedAt
		if observed.IsZero() {
			observed = cutoff
		}
		a.cacheFor(rec.APIKey).add(rec.Timestamp+"|"+rec.Nonce, observed)
	}
	return nil
}

func (a *Authenticator) registerNonce(ctx context.Context, apiKey, timestamp, nonce string, now time.Time) (bool, error) {
	cache := a.cacheFor(apiKey)
	composite := timestamp + "|" + nonce
	if cache.contains(composite, now) {
		return true, nil
	}
	if a.persist != nil {
		if err := a.prunePersisted(ctx, now); err != nil {
			return false, err
		}
		existed, err := a.persist.EnsureNonce(ctx, NonceRecord{
			APIKey:     apiKey,
			Timestamp:  timestamp,
			Nonce:      nonce,
			ObservedAt: now,
		})
		if err != nil {
			return false, fmt.Errorf("persist nonce: %w", err)
		}
		if existed {
			cache.add(composite, now)
			return true, nil
		}
	}
	cache.add(composite, now)
	return false, nil
}

func (a *Authenticator) prunePersisted(ctx context.Context, now time.Time) error {
	if a.persist == nil || a.nonceTTL <= 0 {
		return nil
	}
	if !a.lastPruned.IsZero() && now.Sub(a.lastPruned) < persistPruneEvery {
		return nil
	}
	if err := a.persist.PruneNonces(ctx, now.Add(-a.nonceTTL)); err != nil {
		return fmt.Errorf("prune persisted nonces: %w", err)
	}
	a.lastPruned = now
	return nil
}

// timestampReplayed enforces strictly increasing timestamps per key within the
// skew window, on top of the nonce ledger.
func (a *Authenticator) timestampReplayed(apiKey string, unix int64, now time.Time) bool {
	cutoff := now.Add(-a.skew).Unix()

	a.tsMu.Lock()
	defer a.tsMu.Unlock()

	last, seen := a.lastUnix[apiKey]
	if seen && last >= cutoff && unix <= last {
		return true
	}
	if !seen || unix > last {
		a.lastUnix[apiKey] = unix
	}
	return false
}

func (a *Authenticator) cacheFor(apiKey string) *nonceCache {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	cache, ok := a.nonces[apiKey]
	if !ok {
		cache = newNonceCache(a.nonceTTL, a.nonceCapacity)
		a.nonces[apiKey] = cache
	}
	return cache
}

// CanonicalRequestPath normalises the path and query ordering for signing.
func CanonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		path += "?" + CanonicalQuery(r.URL.RawQuery)
	}
	return path
}

// CanonicalQuery sorts raw query parameters so both sides hash the same bytes.
func CanonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// ComputeSignature builds the HMAC-SHA256 signature for the request metadata.
func ComputeSignature(secret, timestamp, nonce, method, path string, body []byte) []byte {
	payload := strings.Join([]string{timestamp, nonce, strings.ToUpper(method), path, string(body)}, "\n")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func parseUnixSeconds(v string) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

// nonceCache is a TTL-bounded LRU of observed nonce composites for one key.
type nonceCache struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type nonceEntry struct {
	key string
	ts  time.Time
}

func newNonceCache(ttl time.Duration, capacity int) *nonceCache {
	return &nonceCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *nonceCache) contains(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpired(now.Add(-c.ttl))
	_, ok := c.entries[key]
	return ok
}

func (c *nonceCache) add(key string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpired(now.Add(-c.ttl))
	if elem, ok := c.entries[key]; ok {
		elem.Value = nonceEntry{key: key, ts: now}
		c.order.MoveToBack(elem)
		return
	}
	for c.capacity > 0 && c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	c.entries[key] = c.order.PushBack(nonceEntry{key: key, ts: now})
}

func (c *nonceCache) evictExpired(cutoff time.Time) {
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		entry := front.Value.(nonceEntry)
		if !entry.ts.Before(cutoff) {
			return
		}
		c.order.Remove(front)
		delete(c.entries, entry.key)
	}
}

func (c *nonceCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	entry := front.Value.(nonceEntry)
	c.order.Remove(front)
	delete(c.entries, entry.key)
}
