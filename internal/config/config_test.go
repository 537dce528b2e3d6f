/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BindIP != "127.0.0.1" {
		t.Errorf("Expected default bind ip 127.0.0.1, got %s", cfg.BindIP)
	}
	if cfg.BindPort != 8000 {
		t.Errorf("Expected default bind port 8000, got %d", cfg.BindPort)
	}
	if cfg.DataDir != "storage" {
		t.Errorf("Expected default data dir 'storage', got %s", cfg.DataDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.LogJSON {
		t.Error("Expected default log json false")
	}
	if cfg.Discover {
		t.Error("Expected default discover false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig() should validate cleanly, got: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"zero bind port", func(c *Config) { c.BindPort = 0 }, true},
		{"bind port too high", func(c *Config) { c.BindPort = 70000 }, true},
		{"empty bind ip", func(c *Config) { c.BindIP = "" }, true},
		{"contact ip without port", func(c *Config) { c.ContactIP = "127.0.0.1" }, true},
		{"contact port without ip", func(c *Config) { c.ContactPort = 9000 }, true},
		{
			"valid contact pair",
			func(c *Config) { c.ContactIP = "127.0.0.1"; c.ContactPort = 9000 },
			false,
		},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, true},
		{"election min >= max", func(c *Config) { c.ElectionTimeoutMinMs = 1500; c.ElectionTimeoutMaxMs = 1500 }, true},
		{"negative election timeout", func(c *Config) { c.ElectionTimeoutMinMs = -1 }, true},
		{
			"heartbeat not less than election min",
			func(c *Config) { c.HeartbeatIntervalMs = c.ElectionTimeoutMinMs },
			true,
		},
		{"zero rpc timeout", func(c *Config) { c.RPCTimeoutMs = 0 }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"log level case insensitive", func(c *Config) { c.LogLevel = "DEBUG" }, false},
		{"warning alias accepted", func(c *Config) { c.LogLevel = "warning" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	envVars := []string{EnvDataDir, EnvLogLevel, EnvLogJSON, EnvDiscover, EnvElectionMinMs, EnvElectionMaxMs, EnvHeartbeatMs, EnvRPCTimeoutMs}
	saved := make(map[string]string, len(envVars))
	for _, v := range envVars {
		saved[v] = os.Getenv(v)
	}
	defer func() {
		for k, v := range saved {
			os.Setenv(k, v)
		}
	}()

	os.Setenv(EnvDataDir, "/tmp/replica-data")
	os.Setenv(EnvLogLevel, "debug")
	os.Setenv(EnvLogJSON, "true")
	os.Setenv(EnvDiscover, "true")
	os.Setenv(EnvElectionMinMs, "900")
	os.Setenv(EnvElectionMaxMs, "1800")
	os.Setenv(EnvHeartbeatMs, "200")
	os.Setenv(EnvRPCTimeoutMs, "750")

	mgr := NewManager(DefaultConfig())
	mgr.LoadFromEnv()
	cfg := mgr.Get()

	if cfg.DataDir != "/tmp/replica-data" {
		t.Errorf("Expected data dir from env, got %s", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug' from env, got %s", cfg.LogLevel)
	}
	if !cfg.LogJSON {
		t.Error("Expected log json true from env")
	}
	if !cfg.Discover {
		t.Error("Expected discover true from env")
	}
	if cfg.ElectionTimeoutMinMs != 900 {
		t.Errorf("Expected election min 900 from env, got %d", cfg.ElectionTimeoutMinMs)
	}
	if cfg.ElectionTimeoutMaxMs != 1800 {
		t.Errorf("Expected election max 1800 from env, got %d", cfg.ElectionTimeoutMaxMs)
	}
	if cfg.HeartbeatIntervalMs != 200 {
		t.Errorf("Expected heartbeat 200 from env, got %d", cfg.HeartbeatIntervalMs)
	}
	if cfg.RPCTimeoutMs != 750 {
		t.Errorf("Expected rpc timeout 750 from env, got %d", cfg.RPCTimeoutMs)
	}
}

func TestLoadFromEnvLeavesUnsetFieldsAlone(t *testing.T) {
	saved := os.Getenv(EnvLogLevel)
	defer os.Setenv(EnvLogLevel, saved)
	os.Unsetenv(EnvLogLevel)

	cfg := DefaultConfig()
	cfg.LogLevel = "error"
	mgr := NewManager(cfg)
	mgr.LoadFromEnv()

	if mgr.Get().LogLevel != "error" {
		t.Errorf("Expected unset env var to leave LogLevel untouched, got %s", mgr.Get().LogLevel)
	}
}

func TestNewManagerDefaultsWhenNilConfig(t *testing.T) {
	mgr := NewManager(nil)
	if mgr.Get() == nil {
		t.Fatal("expected NewManager(nil) to seed a default config")
	}
	if mgr.Get().BindPort != DefaultConfig().BindPort {
		t.Errorf("expected default bind port, got %d", mgr.Get().BindPort)
	}
}
