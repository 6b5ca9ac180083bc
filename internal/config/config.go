// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

// Package config loads CalmPulse settings. Sources are layered in
// increasing precedence: built-in defaults, an optional YAML file, the
// environment and finally command-line flags.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/calmpulse/calmpulse/internal/auth"
)

// EnvPrefix prefixes every structured environment variable. A double
// underscore separates nesting levels: CALMPULSE_AUTH__ACCESS_TTL.
const EnvPrefix = "CALMPULSE_"

// Config is the full process configuration.
type Config struct {
	HTTP      HTTP      `koanf:"http"`
	Metrics   Metrics   `koanf:"metrics"`
	Database  Database  `koanf:"database"`
	Auth      Auth      `koanf:"auth"`
	Log       Log       `koanf:"log"`
	Telemetry Telemetry `koanf:"telemetry"`
}

// HTTP configures the public API listener.
type HTTP struct {
	Addr            string        `koanf:"addr"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Metrics configures the observability listener. An empty Addr disables it.
type Metrics struct {
	Addr string `koanf:"addr"`
}

// Database selects the store.
type Database struct {
	URL            string        `koanf:"url"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// Auth configures token issuance, refresh housekeeping and hashing.
type Auth struct {
	AccessSecret         string        `koanf:"access_secret"`
	RefreshSecret        string        `koanf:"refresh_secret"`
	AccessTTL            time.Duration `koanf:"access_ttl"`
	RefreshTTL           time.Duration `koanf:"refresh_ttl"`
	Issuer               string        `koanf:"issuer"`
	RevokeFamilyOnReplay bool          `koanf:"revoke_family_on_replay"`
	PurgeInterval        time.Duration `koanf:"purge_interval"`
	PurgeGrace           time.Duration `koanf:"purge_grace"`
	Hasher               Hasher        `koanf:"hasher"`
}

// Hasher holds the argon2id cost parameters.
type Hasher struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// Log configures the process logger.
type Log struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Telemetry configures trace export. An empty OTLPEndpoint disables it.
type Telemetry struct {
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	ServiceName  string `koanf:"service_name"`
}

// Defaults returns the built-in configuration layer.
func Defaults() map[string]any {
	hasher := auth.DefaultArgon2Params()
	return map[string]any{
		"http.addr":                    ":4000",
		"http.cors_origins":            []string{"*"},
		"http.shutdown_timeout":        5 * time.Second,
		"metrics.addr":                 "127.0.0.1:9100",
		"database.url":                 "sqlite://calmpulse.db",
		"database.connect_timeout":     30 * time.Second,
		"auth.access_ttl":              auth.DefaultAccessTTL,
		"auth.refresh_ttl":             auth.DefaultRefreshTTL,
		"auth.issuer":                  auth.DefaultIssuer,
		"auth.revoke_family_on_replay": false,
		"auth.purge_interval":          time.Hour,
		"auth.purge_grace":             24 * time.Hour,
		"auth.hasher.time":             hasher.Time,
		"auth.hasher.memory_kib":       hasher.MemoryKiB,
		"auth.hasher.threads":          hasher.Threads,
		"log.format":                   "json",
		"log.level":                    "info",
		"telemetry.otlp_endpoint":      "",
		"telemetry.service_name":       "calmpulse",
	}
}

// flagKeys maps command-line flag names onto configuration keys. Flags
// not listed here are not configuration.
var flagKeys = map[string]string{
	"addr":         "http.addr",
	"metrics-addr": "metrics.addr",
	"database-url": "database.url",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// BindFlags registers the configuration flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("addr", "", "API listen address (default \":4000\")")
	fs.String("metrics-addr", "", "metrics/health listen address, empty disables (default \"127.0.0.1:9100\")")
	fs.String("database-url", "", "database URL, postgres://... or sqlite://path")
	fs.String("log-format", "", "log format, json or text")
	fs.String("log-level", "", "log level, debug, info, warn or error")
}

// Load builds the configuration. path may be empty; fs may be nil. Only
// flags the user actually set override lower layers.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", path).
				Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", legacyEnv), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "legacy env").Wrap(err)
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", prefixedEnv), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	decoder := &mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.DecodeHookFuncType(durationHook),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result:           &cfg,
		WeaklyTypedInput: true,
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", DecoderConfig: decoder}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode configuration").Wrap(err)
	}
	return &cfg, nil
}

// prefixedEnv maps CALMPULSE_AUTH__ACCESS_TTL to auth.access_ttl.
func prefixedEnv(key, value string) (string, any) {
	name := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(name, "__", "."), value
}

// legacyEnv accepts the unprefixed variable names of earlier deployments.
func legacyEnv(key, value string) (string, any) {
	switch key {
	case "PORT":
		return "http.addr", ":" + value
	case "DATABASE_URL":
		return "database.url", normalizeDatabaseURL(value)
	case "ACCESS_TOKEN_SECRET":
		return "auth.access_secret", value
	case "REFRESH_TOKEN_SECRET":
		return "auth.refresh_secret", value
	case "ACCESS_TOKEN_TTL":
		return "auth.access_ttl", value
	case "REFRESH_TOKEN_TTL":
		return "auth.refresh_ttl", value
	default:
		return "", nil
	}
}

// normalizeDatabaseURL rewrites the "file:./dev.db" form to
// sqlite://./dev.db.
func normalizeDatabaseURL(url string) string {
	if rest, ok := strings.CutPrefix(url, "file:"); ok {
		return "sqlite://" + rest
	}
	return url
}

// durationHook decodes strings with ParseDuration so every layer accepts
// the same forms.
func durationHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	return ParseDuration(data.(string))
}

// ParseDuration extends time.ParseDuration with a whole-day suffix, so
// "7d" is accepted alongside "168h". A bare integer is taken as seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, oops.Code("CONFIG_INVALID").With("value", s).Wrap(err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, oops.Code("CONFIG_INVALID").With("value", s).Wrap(err)
	}
	return d, nil
}

// Exists reports whether path names a readable file. Used to pick up a
// default config file when --config is not given.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
