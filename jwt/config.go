package jwt

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config token verification settings
type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// Algorithm HS256, HS384 or HS512
	Algorithm string `mapstructure:"algorithm"`

	// Secret symmetric signing key
	Secret string `mapstructure:"secret"`

	AccessToken AccessTokenConfig `mapstructure:"access_token"`
	Security    SecurityConfig    `mapstructure:"security"`
}

// AccessTokenConfig access token claims
type AccessTokenConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
}

// SecurityConfig verification hardening
type SecurityConfig struct {
	EnableJTI bool          `mapstructure:"enable_jti"` // add a unique token id
	ClockSkew time.Duration `mapstructure:"clock_skew"` // leeway for exp/nbf/iat
}

// Validate configuration, a disabled config is always valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if err := validation.Validate(c.Algorithm, validation.Required, validation.In("HS256", "HS384", "HS512")); err != nil {
		return ErrAlgorithmNotSupported
	}
	if c.Secret == "" {
		return ErrSecretEmpty
	}

	return validation.ValidateStruct(&c.AccessToken,
		validation.Field(&c.AccessToken.TTL, validation.Required, validation.Min(time.Second)),
	)
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = "HS256"
	}
	if c.AccessToken.TTL == 0 {
		c.AccessToken.TTL = 2 * time.Hour
	}
	if c.AccessToken.Issuer == "" {
		c.AccessToken.Issuer = "yogan-admission"
	}
	if c.Security.ClockSkew == 0 {
		c.Security.ClockSkew = 60 * time.Second
	}
}
