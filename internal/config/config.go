// Package config loads runtime configuration from defaults, an optional YAML
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix marks environment variables read into the config tree.
// PASSGATE_JWT__SECRET sets jwt.secret; "__" separates sections.
const EnvPrefix = "PASSGATE_"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds runtime configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	JWT      JWTConfig      `koanf:"jwt"`
	Mail     MailConfig     `koanf:"mail"`
	Reset    ResetConfig    `koanf:"reset"`
}

type ServerConfig struct {
	Port        int      `koanf:"port"`
	MountPath   string   `koanf:"mount_path"`
	CORSOrigins []string `koanf:"cors_origins"`
}

type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

type DatabaseConfig struct {
	Driver      string `koanf:"driver"`
	URL         string `koanf:"url"`
	Name        string `koanf:"name"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

type JWTConfig struct {
	Secret string `koanf:"secret"`
	Issuer string `koanf:"issuer"`
}

// MailConfig selects the SMTP account used for reset emails. With no
// username configured, mail is written to the log instead.
type MailConfig struct {
	Service  string `koanf:"service"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

type ResetConfig struct {
	LinkBase string `koanf:"link_base"`
}

var defaults = map[string]any{
	"server.port":           5000,
	"server.mount_path":     "/api/users",
	"server.cors_origins":   []string{"*"},
	"log.format":            "json",
	"log.level":             "info",
	"database.driver":       DriverPostgres,
	"database.name":         "passgate",
	"database.auto_migrate": true,
	"jwt.issuer":            "passgate",
	"mail.service":          "gmail",
	"reset.link_base":       "http://localhost:5000",
}

// legacyEnv maps the unprefixed variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"PORT":                 "server.port",
	"CORS_ALLOWED_ORIGINS": "server.cors_origins",
	"DATABASE_URL":         "database.url",
	"JWT_SECRET":           "jwt.secret",
	"JWT_ISSUER":           "jwt.issuer",
	"EMAIL":                "mail.username",
	"EMAIL_PASSWORD":       "mail.password",
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"port":         "server.port",
	"mount-path":   "server.mount_path",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"db-driver":    "database.driver",
	"db-url":       "database.url",
	"auto-migrate": "database.auto_migrate",
	"reset-link":   "reset.link_base",
}

// Options controls where Load reads from. Both fields are optional.
type Options struct {
	File  string
	Flags *pflag.FlagSet
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("port", 5000, "HTTP listen port")
	fs.String("mount-path", "/api/users", "route prefix for the auth endpoints")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("db-driver", DriverPostgres, "credential store (postgres, mongo or memory)")
	fs.String("db-url", "", "database connection URL")
	fs.Bool("auto-migrate", true, "apply pending Postgres migrations on startup")
	fs.String("reset-link", "http://localhost:5000", "base URL of password reset links")
}

// Load builds the configuration and validates it.
func Load(opts Options) (Config, error) {
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").With("key", key).Wrap(err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").With("file", opts.File).Wrapf(err, "read config file")
		}
	}

	legacy := env.ProviderWithValue("", ".", func(name, value string) (string, any) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		return legacyEnv[name], envValue(legacyEnv[name], value)
	})
	if err := k.Load(legacy, nil); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrapf(err, "read environment")
	}

	prefixed := env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, any) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		key := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, EnvPrefix), "__", "."))
		return key, envValue(key, value)
	})
	if err := k.Load(prefixed, nil); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrapf(err, "read environment")
	}

	if opts.Flags != nil {
		flags := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, f.Value.String()
		})
		if err := k.Load(flags, nil); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").Wrapf(err, "read flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrapf(err, "decode config")
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envValue splits list-valued keys on commas.
func envValue(key, value string) any {
	if key == "server.cors_origins" {
		return parseCSV(value)
	}
	return strings.TrimSpace(value)
}

func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Reset.LinkBase = strings.TrimRight(strings.TrimSpace(c.Reset.LinkBase), "/")

	var origins []string
	for _, o := range c.Server.CORSOrigins {
		origins = append(origins, parseCSV(o)...)
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.Server.CORSOrigins = origins
}

// Validate reports the first missing or out-of-range setting.
func (c Config) Validate() error {
	invalid := oops.Code("CONFIG_INVALID")
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return invalid.With("server.port", c.Server.Port).Errorf("server.port must be between 1 and 65535")
	case c.JWT.Secret == "":
		return invalid.Errorf("jwt.secret is required (set JWT_SECRET)")
	case c.Reset.LinkBase == "":
		return invalid.Errorf("reset.link_base is required")
	}

	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres, DriverMongo:
		if c.Database.URL == "" {
			return invalid.With("database.driver", c.Database.Driver).Errorf("database.url is required (set DATABASE_URL)")
		}
	default:
		return invalid.With("database.driver", c.Database.Driver).Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func parseCSV(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
