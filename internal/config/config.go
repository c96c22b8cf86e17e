// Package config loads the signer's runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/ILLUVRSE/stark-signer/internal/logging"
)

const redacted = "<redacted>"

// Secret is a string that never renders its value through fmt, JSON or logs.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return strconv.Quote(s.String())
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reveal returns the secret value. Callers must not log it.
func (s Secret) Reveal() string {
	return string(s)
}

// TLSConfig enables HTTPS when both CertPath and KeyPath are set.
type TLSConfig struct {
	CertPath     string `env:"TLS_CERT_PATH"`
	KeyPath      string `env:"TLS_KEY_PATH"`
	ClientCAPath string `env:"TLS_CLIENT_CA_PATH"`
	RequireMTLS  bool   `env:"REQUIRE_MTLS" env-default:"false"`
}

func (t TLSConfig) Enabled() bool {
	return t.CertPath != "" && t.KeyPath != ""
}

// Config captures runtime settings for the signer service. It is loaded once
// at startup and never mutated afterwards.
type Config struct {
	Host       string `env:"HOST" env-default:"0.0.0.0"`
	Port       int    `env:"PORT" env-default:"3000"`
	APIKey     Secret `env:"API_KEY" env-required:"true"`
	PrivateKey Secret `env:"STARKNET_PRIVATE_KEY" env-required:"true"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" env-default:"15s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" env-default:"60s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`

	TLS TLSConfig
	Log logging.Config
}

// Load reads an optional .env file (ENV_FILE overrides the path) and then the
// process environment. Variables already set in the environment win over the
// file.
func Load() (Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values cleanenv cannot express as tags.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey.Reveal()) == "" {
		return errors.New("API_KEY must not be empty")
	}
	if strings.TrimSpace(c.PrivateKey.Reveal()) == "" {
		return errors.New("STARKNET_PRIVATE_KEY must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if (c.TLS.CertPath == "") != (c.TLS.KeyPath == "") {
		return errors.New("TLS_CERT_PATH and TLS_KEY_PATH must be set together")
	}
	if c.TLS.RequireMTLS && !c.TLS.Enabled() {
		return errors.New("REQUIRE_MTLS needs TLS_CERT_PATH and TLS_KEY_PATH")
	}
	// The write deadline must outlast the handler timeout or its 504 is never sent.
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive: %s", c.RequestTimeout)
	}
	if c.WriteTimeout > 0 && c.RequestTimeout >= c.WriteTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must be shorter than WRITE_TIMEOUT (%s)", c.RequestTimeout, c.WriteTimeout)
	}
	return nil
}

// Addr is the host:port the HTTP server binds to.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MarshalLogObject lets the config be logged with zap.Object; secrets stay redacted.
func (c Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("host", c.Host)
	enc.AddInt("port", c.Port)
	enc.AddString("api_key", c.APIKey.String())
	enc.AddString("starknet_private_key", c.PrivateKey.String())
	enc.AddDuration("request_timeout", c.RequestTimeout)
	enc.AddDuration("shutdown_timeout", c.ShutdownTimeout)
	enc.AddBool("tls", c.TLS.Enabled())
	enc.AddBool("require_mtls", c.TLS.RequireMTLS)
	enc.AddString("log_level", c.Log.Level)
	enc.AddString("log_format", c.Log.Format)
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
