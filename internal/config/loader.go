// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `AGRSITE_`, where `__` maps to “.”
     (e.g., `AGRSITE_HTTP__LISTEN_ADDR → http.listen_addr`).

String leaves written as `vault:<mount>/<path>#<key>` are swapped for the
secret value before unmarshal.  The tree is then unmarshalled into typed
structs, defaulted, validated, and enriched with the runtime root path.
The result is read-only after start-up; changes need a restart.

Instrumentation
---------------
  • DEBUG spans: root discovery, YAML read, vault resolution.
  • ERROR spans: YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span: final “config loaded” with key highlights.
  • Logs use the global sugared logger (`zap.S()`) so early boot issues
    surface before the file logger is installed.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/agrsite/internal/vault"
)

// SecretResolver turns a `vault:` reference into its secret value.
// *vault.Client satisfies it.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Options overrides discovery for tests and tools.  Zero value = defaults.
type Options struct {
	Root     string         // skip rootDir() when set
	Resolver SecretResolver // lazily built from VAULT_* env when nil
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves AGRSITE_ROOT or climbs directories until conf/global.yaml
// is found.  Falls back to executable heuristic for production layout.
func rootDir() string {
	if r := os.Getenv("AGRSITE_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, resolves secrets, and validates.
func Load() (*Config, error) { return LoadWith(Options{}) }

// LoadWith is Load with explicit options.
func LoadWith(opts Options) (*Config, error) {
	root := opts.Root
	if root == "" {
		root = rootDir()
	}
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: AGRSITE_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider("AGRSITE_", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, "AGRSITE_"), "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(k, opts.Resolver); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	applyDefaults(&cfg)
	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"intake_mode", cfg.Intake.Mode,
		"forms", len(cfg.Forms.Endpoints),
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

/*──────────────────────────── secrets ─────────────────────────────────────*/

// resolveSecrets replaces every `vault:` string leaf in k.  The resolver is
// only built when at least one reference exists.
func resolveSecrets(k *koanf.Koanf, r SecretResolver) error {
	var refs []string
	for key, val := range k.All() {
		if s, ok := val.(string); ok && strings.HasPrefix(s, vault.RefPrefix) {
			refs = append(refs, key)
		}
	}
	if len(refs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if r == nil {
		cli, err := vault.New()
		if err != nil {
			return err
		}
		r = cli
	}

	for _, key := range refs {
		sec, err := r.Resolve(ctx, k.String(key))
		if err != nil {
			return fmt.Errorf("resolve %s: %w", key, err)
		}
		if err := k.Set(key, sec); err != nil {
			return err
		}
		zap.S().Debugw("config secret resolved", "key", key)
	}
	return nil
}

/*──────────────────────────── defaults ────────────────────────────────────*/

func applyDefaults(c *Config) {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.Security.MinSubmitSeconds == 0 {
		c.Security.MinSubmitSeconds = 3
	}
	if c.Security.Cooldown == 0 {
		c.Security.Cooldown = 30 * time.Second
	}
	if c.Security.TokenMaxAge == 0 {
		c.Security.TokenMaxAge = 2 * time.Hour
	}
	if c.Intake.Mode == "" {
		c.Intake.Mode = "opaque"
	}
	if c.Intake.Timeout == 0 {
		c.Intake.Timeout = 15 * time.Second
	}
	if c.Payment.Currency == "" && c.Payment.KeyID != "" {
		c.Payment.Currency = "INR"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
