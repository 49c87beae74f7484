// internal/config/model.go
//
// Typed configuration model.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                         – dotenv values,
//   • `conf/global.yaml`                      – primary static file,
//   • `AGRSITE_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with `vault:` is resolved through the Vault
// client *before* unmarshalling, so the model never stores Vault URIs.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • Durations are written as Go duration strings ("30s", "15m").
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr     string        `koanf:"listen_addr"     validate:"required,hostname_port"`
	ForceHTTPS     bool          `koanf:"force_https"`
	ReadTimeout    time.Duration `koanf:"read_timeout"    validate:"gte=0"`
	WriteTimeout   time.Duration `koanf:"write_timeout"   validate:"gte=0"`
	IdleTimeout    time.Duration `koanf:"idle_timeout"    validate:"gte=0"`
	RateLimitRPS   float64       `koanf:"rate_limit_rps"  validate:"gte=0"`
	RateLimitBurst int           `koanf:"rate_limit_burst" validate:"gte=0"`
	CookieSecure   bool          `koanf:"cookie_secure"`
}

//
// Security section
//

// Security tunes the form gate and the signed form token.
//
// TokenSecret is the master secret from which the form-token HMAC key is
// derived.  Keep it in Vault (`vault:secret/site#token_secret`).
type Security struct {
	MinSubmitSeconds float64       `koanf:"min_submit_seconds" validate:"gte=0"`
	Cooldown         time.Duration `koanf:"cooldown"           validate:"gte=0"`
	IdleTTL          time.Duration `koanf:"idle_ttl"           validate:"gte=0"`
	AttemptLimit     int           `koanf:"attempt_limit"      validate:"gte=0"`
	AttemptWindow    time.Duration `koanf:"attempt_window"     validate:"gte=0"`
	TokenSecret      string        `koanf:"token_secret"       validate:"omitempty,min=32"`
	TokenMaxAge      time.Duration `koanf:"token_max_age"      validate:"gte=0"`
}

//
// Intake section
//

// Intake controls how validated payloads are forwarded.
type Intake struct {
	Mode    string        `koanf:"mode"    validate:"omitempty,oneof=opaque acknowledged"`
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`
}

// FormEndpoint binds one form ID to its external intake URL.
type FormEndpoint struct {
	Endpoint string `koanf:"endpoint" validate:"omitempty,url"`
}

// Forms holds endpoint bindings plus an optional override directory for
// YAML form definitions.
type Forms struct {
	DefinitionsDir string                  `koanf:"definitions_dir"`
	Endpoints      map[string]FormEndpoint `koanf:"endpoints" validate:"dive"`
}

//
// Payment section
//

// Payment configures the checkout widget.  KeyID is public by design;
// KeySecret is only used to verify payment signatures.
type Payment struct {
	KeyID       string `koanf:"key_id"`
	KeySecret   string `koanf:"key_secret"`
	ScriptURL   string `koanf:"script_url"  validate:"omitempty,url"`
	Currency    string `koanf:"currency"    validate:"omitempty,len=3"`
	Name        string `koanf:"name"`
	Description string `koanf:"description"`
	Image       string `koanf:"image"`
	ThemeColor  string `koanf:"theme_color" validate:"omitempty,hexcolor"`
}

//
// Misc sections
//

// Log controls the zap logger.
type Log struct {
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Tee   bool   `koanf:"tee"`
}

// Geo points at an optional GeoLite2-City database.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // AGRSITE_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the aggregate returned by Load().
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Security Security `koanf:"security"`
	Intake   Intake   `koanf:"intake"`
	Forms    Forms    `koanf:"forms"`
	Payment  Payment  `koanf:"payment"`
	Log      Log      `koanf:"log"`
	Geo      Geo      `koanf:"geo"`
	Paths    Paths    `koanf:"-"` // not loaded from config files
}

// Endpoint returns the intake URL for formID, or "" when unset.
func (c *Config) Endpoint(formID string) string {
	if c == nil || c.Forms.Endpoints == nil {
		return ""
	}
	return c.Forms.Endpoints[formID].Endpoint
}
