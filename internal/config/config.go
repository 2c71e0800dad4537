package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
		// Nivel de log: debug | info | warn | error
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// Base pública del broker; se usa para armar el magic link y la
		// URL de entrada de código en los emails. Sin slash final.
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"server"`

	Storage struct {
		// postgres | memory (memory solo para dev/tests)
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Rate struct {
		// auto | redis | store | memory
		// auto usa redis si hay addr configurada; si no, el store durable.
		Backend string `yaml:"backend"`
		Redis   struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Limits struct {
			IPPerMinute     int `yaml:"ip_per_minute"`
			EmailPerMinute  int `yaml:"email_per_minute"`
			EmailPerHour    int `yaml:"email_per_hour"`
			ClientPerMinute int `yaml:"client_per_minute"`
		} `yaml:"limits"`
	} `yaml:"rate"`

	Auth struct {
		TokenTTL       string `yaml:"token_ttl"`       // vida del magic link / código
		CodeTTL        string `yaml:"code_ttl"`        // vida del auth code
		ResendCooldown string `yaml:"resend_cooldown"` // ventana anti doble-envío
		MaxAttempts    int    `yaml:"max_attempts"`    // intentos de validación por request
	} `yaml:"auth"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		FromName           string `yaml:"from_name"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Email struct {
		// Si está activo no se envía SMTP: los links/códigos se loguean.
		// Útil en dev sin servidor de mail.
		DebugEchoLinks bool `yaml:"debug_echo_links"`
	} `yaml:"email"`
}

// Load lee el YAML, aplica defaults y valida duraciones.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default retorna una configuración con todos los defaults aplicados.
// La usan los tests y el modo memory sin archivo de config.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.PublicBaseURL == "" {
		c.Server.PublicBaseURL = "http://localhost:8080"
	}
	c.Server.PublicBaseURL = strings.TrimRight(c.Server.PublicBaseURL, "/")
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Rate.Backend == "" {
		c.Rate.Backend = "auto"
	}
	if c.Rate.Redis.Prefix == "" {
		c.Rate.Redis.Prefix = "hl:rl:"
	}
	if c.Rate.Limits.IPPerMinute == 0 {
		c.Rate.Limits.IPPerMinute = 10
	}
	if c.Rate.Limits.EmailPerMinute == 0 {
		c.Rate.Limits.EmailPerMinute = 3
	}
	if c.Rate.Limits.EmailPerHour == 0 {
		c.Rate.Limits.EmailPerHour = 10
	}
	if c.Rate.Limits.ClientPerMinute == 0 {
		c.Rate.Limits.ClientPerMinute = 20
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "10m"
	}
	if c.Auth.CodeTTL == "" {
		c.Auth.CodeTTL = "5m"
	}
	if c.Auth.ResendCooldown == "" {
		c.Auth.ResendCooldown = "60s"
	}
	if c.Auth.MaxAttempts == 0 {
		c.Auth.MaxAttempts = 5
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMTP.FromName == "" {
		c.SMTP.FromName = "HelloLink"
	}
}

// applyEnvOverrides permite inyectar secretos por entorno sin tocar el YAML.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Rate.Redis.Addr = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
}

func (c *Config) validate() error {
	for name, s := range map[string]string{
		"auth.token_ttl":       c.Auth.TokenTTL,
		"auth.code_ttl":        c.Auth.CodeTTL,
		"auth.resend_cooldown": c.Auth.ResendCooldown,
	} {
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return fmt.Errorf("config: storage.postgres.conn_max_lifetime: %w", err)
		}
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: storage.driver inválido: %q", c.Storage.Driver)
	}
	switch c.Rate.Backend {
	case "auto", "redis", "store", "memory":
	default:
		return fmt.Errorf("config: rate.backend inválido: %q", c.Rate.Backend)
	}
	return nil
}

// TokenTTL retorna la vida del magic link / código de login.
func (c *Config) TokenTTL() time.Duration { return mustDuration(c.Auth.TokenTTL, 10*time.Minute) }

// CodeTTL retorna la vida del auth code.
func (c *Config) CodeTTL() time.Duration { return mustDuration(c.Auth.CodeTTL, 5*time.Minute) }

// ResendCooldown retorna la ventana de cooldown de start.
func (c *Config) ResendCooldown() time.Duration {
	return mustDuration(c.Auth.ResendCooldown, 60*time.Second)
}

func mustDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
