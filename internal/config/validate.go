// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CalmPulse Contributors

package config

import (
	"net"
	"strings"

	"github.com/samber/oops"

	"github.com/calmpulse/calmpulse/internal/auth"
	"github.com/calmpulse/calmpulse/internal/logging"
)

// minSecretLen is the shortest accepted HS256 signing secret.
const minSecretLen = 32

// Validate checks the configuration. Every problem is reported as a
// CONFIG_INVALID error naming the offending key.
func (c *Config) Validate() error {
	if err := validateAddr("http.addr", c.HTTP.Addr, false); err != nil {
		return err
	}
	if err := validateAddr("metrics.addr", c.Metrics.Addr, true); err != nil {
		return err
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return invalid("http.shutdown_timeout", "must be positive")
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return invalid("database.url", "is required")
	}
	if c.Database.ConnectTimeout < 0 {
		return invalid("database.connect_timeout", "cannot be negative")
	}

	a := c.Auth
	switch {
	case a.AccessSecret == "":
		return invalid("auth.access_secret", "is required")
	case a.RefreshSecret == "":
		return invalid("auth.refresh_secret", "is required")
	case len(a.AccessSecret) < minSecretLen:
		return invalid("auth.access_secret", "must be at least 32 bytes")
	case len(a.RefreshSecret) < minSecretLen:
		return invalid("auth.refresh_secret", "must be at least 32 bytes")
	case a.AccessSecret == a.RefreshSecret:
		return invalid("auth.refresh_secret", "must differ from auth.access_secret")
	case a.AccessTTL <= 0:
		return invalid("auth.access_ttl", "must be positive")
	case a.RefreshTTL <= 0:
		return invalid("auth.refresh_ttl", "must be positive")
	case a.PurgeInterval < 0:
		return invalid("auth.purge_interval", "cannot be negative")
	case a.PurgeGrace < 0:
		return invalid("auth.purge_grace", "cannot be negative")
	}
	if _, err := auth.NewArgon2idHasherWithParams(c.HasherParams()); err != nil {
		return invalid("auth.hasher", "time, memory_kib and threads must be positive")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error")
	}
	return nil
}

// TokenConfig converts the auth section for auth.NewTokenCodec.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessKey:  []byte(c.Auth.AccessSecret),
		RefreshKey: []byte(c.Auth.RefreshSecret),
		AccessTTL:  c.Auth.AccessTTL,
		RefreshTTL: c.Auth.RefreshTTL,
		Issuer:     c.Auth.Issuer,
	}
}

// HasherParams converts the hasher section for auth.NewArgon2idHasherWithParams.
func (c *Config) HasherParams() auth.Argon2Params {
	return auth.Argon2Params{
		Time:      c.Auth.Hasher.Time,
		MemoryKiB: c.Auth.Hasher.MemoryKiB,
		Threads:   c.Auth.Hasher.Threads,
	}
}

func validateAddr(key, addr string, optional bool) error {
	if addr == "" {
		if optional {
			return nil
		}
		return invalid(key, "is required")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", key).With("value", addr).Wrap(err)
	}
	return nil
}

func invalid(key, problem string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s %s", key, problem)
}
