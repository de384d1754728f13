// Copyright 2021-2026 RCSB PDB
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the declarative TOML configuration
// of the deposition file service.
package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/rcsb/depot/pkg/logger"
)

// Core holds process-level settings.
type Core struct {
	ServerHostAndPort string `mapstructure:"server_host_and_port"`
	SurplusProcessors int    `mapstructure:"surplus_processors"`
}

// Repo describes the repository filesystem layout.
type Repo struct {
	RepositoryDirPath      string `mapstructure:"repository_dir_path"`
	SessionDirPath         string `mapstructure:"session_dir_path"`
	SharedLockPath         string `mapstructure:"shared_lock_path"`
	DefaultFilePermissions string `mapstructure:"default_file_permissions"` // octal, e.g. "755"
	ChunkSize              int64  `mapstructure:"chunk_size"`
	CompressionType        string `mapstructure:"compression_type"` // gzip|zip|bzip2|lzma
	HashType               string `mapstructure:"hash_type"`        // MD5|SHA1|SHA256
}

// KV selects and parameterizes the key-value backend.
type KV struct {
	Mode             string `mapstructure:"kv_mode"` // sqlite|redis
	MaxSeconds       int64  `mapstructure:"kv_max_seconds"`
	SessionTableName string `mapstructure:"kv_session_table_name"`
	MapTableName     string `mapstructure:"kv_map_table_name"`
	LockTableName    string `mapstructure:"kv_lock_table_name"`
	FilePath         string `mapstructure:"kv_file_path"`
	RedisHost        string `mapstructure:"redis_host"`
	RedisPort        int    `mapstructure:"redis_port"`
}

// Lock selects and parameterizes the cross-process lock backend.
type Lock struct {
	// Transactions is a pointer so an absent key defaults to enabled
	// rather than to the zero value.
	Transactions *bool  `mapstructure:"lock_transactions"`
	Type         string `mapstructure:"lock_type"` // soft|ternary|redis
	Timeout      int64  `mapstructure:"lock_timeout"`
	SecondWait   int64  `mapstructure:"lock_second_wait"`
	SweepSeconds int64  `mapstructure:"lock_sweep_seconds"`
}

// Auth holds the bearer-token settings.
type Auth struct {
	JWTSubject          string `mapstructure:"jwt_subject"`
	JWTSecret           string `mapstructure:"jwt_secret"`
	JWTAlgorithm        string `mapstructure:"jwt_algorithm"`
	JWTDuration         int64  `mapstructure:"jwt_duration"`
	BypassAuthorization bool   `mapstructure:"bypass_authorization"`
}

// Sweeper controls the periodic cleanup of placeholders and locks.
type Sweeper struct {
	IntervalSeconds int64 `mapstructure:"interval_seconds"`
}

// HTTP lists the enabled services and their per-service overrides.
type HTTP struct {
	Services map[string]map[string]interface{} `mapstructure:"services"`
}

// Config is the immutable top-level configuration, constructed once at
// startup and threaded explicitly into every component.
type Config struct {
	Core    Core        `mapstructure:"core"`
	Log     logger.Conf `mapstructure:"log"`
	Repo    Repo        `mapstructure:"repo"`
	KV      KV          `mapstructure:"kv"`
	Lock    Lock        `mapstructure:"lock"`
	Auth    Auth        `mapstructure:"auth"`
	Sweeper Sweeper     `mapstructure:"sweeper"`
	HTTP    HTTP        `mapstructure:"http"`
}

// Load reads the TOML file at path, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: error reading file")
	}
	return Parse(string(data))
}

// Parse decodes a TOML document, applies defaults and validates.
func Parse(doc string) (*Config, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, errors.Wrap(err, "config: error parsing toml")
	}

	c := &Config{}
	if err := mapstructure.Decode(raw, c); err != nil {
		return nil, errors.Wrap(err, "config: error decoding")
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Core.ServerHostAndPort == "" {
		c.Core.ServerHostAndPort = "0.0.0.0:8000"
	}
	if c.Repo.DefaultFilePermissions == "" {
		c.Repo.DefaultFilePermissions = "755"
	}
	if c.Repo.ChunkSize == 0 {
		c.Repo.ChunkSize = 8 * 1024 * 1024
	}
	if c.Repo.CompressionType == "" {
		c.Repo.CompressionType = "gzip"
	}
	if c.Repo.HashType == "" {
		c.Repo.HashType = "MD5"
	}
	if c.KV.Mode == "" {
		c.KV.Mode = "sqlite"
	}
	if c.KV.MaxSeconds == 0 {
		c.KV.MaxSeconds = 24 * 3600
	}
	if c.KV.SessionTableName == "" {
		c.KV.SessionTableName = "sessions"
	}
	if c.KV.MapTableName == "" {
		c.KV.MapTableName = "map"
	}
	if c.KV.LockTableName == "" {
		c.KV.LockTableName = "lockv"
	}
	if c.KV.RedisHost == "" {
		c.KV.RedisHost = "localhost"
	}
	if c.KV.RedisPort == 0 {
		c.KV.RedisPort = 6379
	}
	if c.Lock.Transactions == nil {
		t := true
		c.Lock.Transactions = &t
	}
	if c.Lock.Type == "" {
		c.Lock.Type = "soft"
	}
	if c.Lock.Timeout == 0 {
		c.Lock.Timeout = 60
	}
	if c.Lock.SecondWait == 0 {
		c.Lock.SecondWait = 2
	}
	if c.Lock.SweepSeconds == 0 {
		c.Lock.SweepSeconds = 2 * 3600
	}
	if c.Auth.JWTAlgorithm == "" {
		c.Auth.JWTAlgorithm = "HS256"
	}
	if c.Auth.JWTDuration == 0 {
		c.Auth.JWTDuration = 3600
	}
	if c.Sweeper.IntervalSeconds == 0 {
		c.Sweeper.IntervalSeconds = 1800
	}
	if c.HTTP.Services == nil {
		c.HTTP.Services = map[string]map[string]interface{}{}
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate checks enum values, path presence, duration signs and the
// coupling between the lock and KV backends.
func (c *Config) Validate() error {
	if c.Repo.RepositoryDirPath == "" {
		return errors.New("config: repository_dir_path must be set")
	}
	if c.Repo.SessionDirPath == "" {
		return errors.New("config: session_dir_path must be set")
	}
	if c.Repo.SharedLockPath == "" {
		return errors.New("config: shared_lock_path must be set")
	}
	if _, err := c.FilePermissions(); err != nil {
		return err
	}
	if c.Repo.ChunkSize < 0 {
		return errors.New("config: chunk_size must be non-negative")
	}
	if !oneOf(c.Repo.CompressionType, "gzip", "zip", "bzip2", "lzma") {
		return errors.Errorf("config: unknown compression_type %q", c.Repo.CompressionType)
	}
	if !oneOf(c.Repo.HashType, "MD5", "SHA1", "SHA256") {
		return errors.Errorf("config: unknown hash_type %q", c.Repo.HashType)
	}
	if !oneOf(c.KV.Mode, "sqlite", "redis") {
		return errors.Errorf("config: unknown kv_mode %q", c.KV.Mode)
	}
	if !oneOf(c.Lock.Type, "soft", "ternary", "redis") {
		return errors.Errorf("config: unknown lock_type %q", c.Lock.Type)
	}
	if c.KV.Mode == "sqlite" && c.KV.FilePath == "" {
		return errors.New("config: kv_file_path must be set for kv_mode sqlite")
	}
	// The redis lock shares its records with the KV server, so both
	// subsystems must point at the same backend.
	if (c.Lock.Type == "redis") != (c.KV.Mode == "redis") {
		return errors.New("config: lock_type redis requires kv_mode redis and vice versa")
	}
	for name, v := range map[string]int64{
		"kv_max_seconds":     c.KV.MaxSeconds,
		"lock_timeout":       c.Lock.Timeout,
		"lock_second_wait":   c.Lock.SecondWait,
		"lock_sweep_seconds": c.Lock.SweepSeconds,
		"jwt_duration":       c.Auth.JWTDuration,
		"interval_seconds":   c.Sweeper.IntervalSeconds,
	} {
		if v < 0 {
			return errors.Errorf("config: %s must be non-negative", name)
		}
	}
	if !c.Auth.BypassAuthorization && c.Auth.JWTSecret == "" {
		return errors.New("config: jwt_secret must be set unless bypass_authorization is enabled")
	}
	return nil
}

// FilePermissions parses default_file_permissions as an octal mode.
func (c *Config) FilePermissions() (os.FileMode, error) {
	n, err := strconv.ParseUint(c.Repo.DefaultFilePermissions, 8, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "config: invalid default_file_permissions %q", c.Repo.DefaultFilePermissions)
	}
	return os.FileMode(n), nil
}

// ServiceConfig returns the configuration map handed to the HTTP
// service with the given name: the shared sections flattened, overlaid
// with the per-service block from [http.services.<name>].
func (c *Config) ServiceConfig(name string) map[string]interface{} {
	m := map[string]interface{}{
		"repository_dir_path":      c.Repo.RepositoryDirPath,
		"session_dir_path":         c.Repo.SessionDirPath,
		"shared_lock_path":         c.Repo.SharedLockPath,
		"default_file_permissions": c.Repo.DefaultFilePermissions,
		"chunk_size":               c.Repo.ChunkSize,
		"compression_type":         c.Repo.CompressionType,
		"hash_type":                c.Repo.HashType,
		"kv_mode":                  c.KV.Mode,
		"kv_max_seconds":           c.KV.MaxSeconds,
		"kv_session_table_name":    c.KV.SessionTableName,
		"kv_map_table_name":        c.KV.MapTableName,
		"kv_lock_table_name":       c.KV.LockTableName,
		"kv_file_path":             c.KV.FilePath,
		"redis_host":               c.KV.RedisHost,
		"redis_port":               c.KV.RedisPort,
		"lock_transactions":        *c.Lock.Transactions,
		"lock_type":                c.Lock.Type,
		"lock_timeout":             c.Lock.Timeout,
		"lock_second_wait":         c.Lock.SecondWait,
		"lock_sweep_seconds":       c.Lock.SweepSeconds,
		"jwt_subject":              c.Auth.JWTSubject,
		"jwt_secret":               c.Auth.JWTSecret,
		"jwt_algorithm":            c.Auth.JWTAlgorithm,
		"jwt_duration":             c.Auth.JWTDuration,
		"bypass_authorization":     c.Auth.BypassAuthorization,
		"sweep_interval_seconds":   c.Sweeper.IntervalSeconds,
	}
	for k, v := range c.HTTP.Services[name] {
		m[k] = v
	}
	return m
}
