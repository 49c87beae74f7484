// internal/vault/vault.go
//
// Secret lookups for configuration.
//
// Context
// -------
//   - Wraps the HashiCorp Vault SDK just far enough to turn a configuration
//     value such as `vault:secret/agrsite#razorpay_secret` into the secret
//     it names.
//   - Secrets are read at boot by the config loader.  Each KV-v2 secret
//     path is fetched once per Client; every key under it is then served
//     from memory, so `token_secret` and `razorpay_secret` under the same
//     path cost a single round trip.
//   - VAULT_ADDR, VAULT_TOKEN, and the other standard VAULT_* variables are
//     read by the SDK.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New()                                  // loader only
//  2. val, err := cli.Resolve(ctx, "vault:secret/agrsite#key")
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// RefPrefix marks a configuration value as a Vault reference.
const RefPrefix = "vault:"

// ErrBadRef is returned for malformed `vault:` references.
var ErrBadRef = errors.New("vault: reference must look like vault:<mount>/<path>#<key>")

// ErrMissingKey means the secret exists but has no such key.
var ErrMissingKey = errors.New("vault: key not found")

// reader is the part of the SDK the Client uses.  Tests swap it out.
type reader func(ctx context.Context, mount, rel string) (map[string]any, error)

// Client is safe for concurrent use.  Build it with New.
type Client struct {
	read reader

	mu      sync.Mutex
	secrets map[string]map[string]any // mount/path → KV data
}

// New builds a client from the VAULT_* environment.
func New() (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}
	api, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	return newClient(func(ctx context.Context, mount, rel string) (map[string]any, error) {
		sec, err := api.KVv2(mount).Get(ctx, rel)
		if err != nil {
			return nil, err
		}
		return sec.Data, nil
	}), nil
}

func newClient(r reader) *Client {
	return &Client{read: r, secrets: make(map[string]map[string]any)}
}

// Resolve returns the string stored at the reference.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	path, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	data, err := c.secret(ctx, path)
	if err != nil {
		return "", err
	}
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("%w: %s#%s", ErrMissingKey, path, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault: value at %s#%s is %T, not a string", path, key, raw)
	}
	return s, nil
}

// secret fetches path once and remembers it.
func (c *Client) secret(ctx context.Context, path string) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.secrets[path]; ok {
		return data, nil
	}
	mount, rel, _ := strings.Cut(path, "/")
	data, err := c.read(ctx, mount, rel)
	if err != nil {
		return nil, fmt.Errorf("vault get %s: %w", path, err)
	}
	c.secrets[path] = data
	zap.S().Debugw("vault secret read", "path", path, "keys", len(data))
	return data, nil
}

// ParseRef splits `vault:secret/agrsite#token_secret` into
// ("secret/agrsite", "token_secret").
func ParseRef(ref string) (path, key string, err error) {
	body, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok {
		return "", "", ErrBadRef
	}
	path, key, ok = strings.Cut(body, "#")
	if !ok || key == "" {
		return "", "", ErrBadRef
	}
	if mount, rel, _ := strings.Cut(path, "/"); mount == "" || rel == "" {
		return "", "", ErrBadRef
	}
	return path, key, nil
}
