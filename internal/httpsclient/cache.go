// Package httpsclient implements the process-wide (timeout, TLS profile)
// keyed *http.Client cache (spec.md 4.4). Entries are created on demand,
// retained for process lifetime, and shared by every request that resolves
// to the same key.
package httpsclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// TLSProfile is the second half of the cache key. Two profiles with equal
// Verify/CABundle content are equal for caching purposes.
type TLSProfile struct {
	Verify   bool
	CABundle string // PEM content; empty means system roots
}

type key struct {
	timeout time.Duration
	profile TLSProfile
}

// Cache is a read-locked, write-through-on-miss registry: lookups share an
// RWMutex read lock, and a miss takes the write lock to build and store the
// client. Mirrors the
// Rust original's LazyLock<RwLock<HashMap<(Duration, TlsConfig), Client>>>.
type Cache struct {
	mu      sync.RWMutex
	clients map[key]*http.Client
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{clients: make(map[key]*http.Client)}
}

// Get returns the client for (timeout, profile), building and storing one on
// first use. Returns an error only if profile.Verify && profile.CABundle is
// set but does not parse as PEM-encoded certificates — a fatal config error
// per spec.md 4.4 ("empty bundle is a fatal config error").
func (c *Cache) Get(timeout time.Duration, profile TLSProfile) (*http.Client, error) {
	k := key{timeout: timeout, profile: profile}

	c.mu.RLock()
	cl, ok := c.clients[k]
	c.mu.RUnlock()
	if ok {
		return cl, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok = c.clients[k]; ok {
		return cl, nil
	}

	cl, err := buildClient(timeout, profile)
	if err != nil {
		return nil, err
	}
	c.clients[k] = cl
	return cl, nil
}

func buildClient(timeout time.Duration, profile TLSProfile) (*http.Client, error) {
	tlsCfg := &tls.Config{}

	switch {
	case !profile.Verify:
		tlsCfg.InsecureSkipVerify = true
	case profile.CABundle != "":
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM([]byte(profile.CABundle)); !ok {
			return nil, fmt.Errorf("httpsclient: custom CA bundle contains no usable certificates")
		}
		tlsCfg.RootCAs = pool
	default:
		// nil RootCAs: crypto/tls falls back to the host's system roots
		// (prefer-native-store semantics), matching spec.md 4.4's third
		// profile.
	}

	transport := &http.Transport{
		TLSClientConfig: tlsCfg,
		DialContext: (&net.Dialer{
			Timeout: timeout,
		}).DialContext,
		ForceAttemptHTTP2: false, // HTTP/1.1 required, HTTP/2 optional
	}

	return &http.Client{Transport: transport}, nil
}
