package remote

import (
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/port/cache"
	"github.com/agentdeck/agentdeck/internal/resilience"
)

// Registry hands out one Client per (organization, token) pair. Each client
// owns its own rate limiter, cache, and metrics, so rotating a token or
// switching organizations yields fresh client state instead of inheriting
// the previous credential's limiter window and cached responses.
type Registry struct {
	mu         sync.Mutex
	cfg        config.Remote
	brk        config.Breaker
	newCache   func() cache.Cache
	sampleHook func(Sample)
	clients    map[credKey]*Client
}

// Tokens are digested before use as map keys so raw secrets are not
// retained in the registry index.
type credKey struct {
	orgID       string
	tokenDigest string
}

// NewRegistry creates a client registry. newCache is invoked once per new
// client and may be nil to disable response caching.
func NewRegistry(cfg config.Remote, brk config.Breaker, newCache func() cache.Cache) *Registry {
	return &Registry{
		cfg:      cfg,
		brk:      brk,
		newCache: newCache,
		clients:  make(map[credKey]*Client),
	}
}

// Client returns the client for the given credentials, creating it on first
// use.
func (r *Registry) Client(orgID, token string) (*Client, error) {
	if orgID == "" {
		return nil, &ValidationError{Msg: "organization id is required"}
	}
	if token == "" {
		return nil, &ValidationError{Msg: "API token is required"}
	}

	key := credKey{orgID: orgID, tokenDigest: digest(token)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[key]; ok {
		return c, nil
	}

	var store cache.Cache
	if r.newCache != nil {
		store = r.newCache()
	}

	c := NewClient(r.cfg, orgID, token, store)
	if r.brk.MaxFailures > 0 {
		c.SetBreaker(resilience.NewBreaker(r.brk.MaxFailures, r.brk.Timeout))
	}
	if r.sampleHook != nil {
		c.OnSample(r.sampleHook)
	}

	r.clients[key] = c
	return c, nil
}

// OnSample registers a request-sample callback installed on every client the
// registry creates from now on. Call before handing the registry out.
func (r *Registry) OnSample(fn func(Sample)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sampleHook = fn
}

// Default returns the client for the current default credentials.
func (r *Registry) Default() (*Client, error) {
	r.mu.Lock()
	orgID, token := r.cfg.OrgID, r.cfg.APIToken
	r.mu.Unlock()
	return r.Client(orgID, token)
}

// UpdateDefault replaces the credentials Default hands out clients for.
// Empty fields keep the current value. Clients already created for the old
// pair stay in the registry; rotated-in credentials get fresh client state.
func (r *Registry) UpdateDefault(orgID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if orgID != "" {
		r.cfg.OrgID = orgID
	}
	if token != "" {
		r.cfg.APIToken = token
	}
}

// Len reports the number of distinct credential pairs seen so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func digest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
