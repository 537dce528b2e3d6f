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

/*
Package config holds the replica process's tunables: its bind address,
an optional contact address to join an existing cluster, the stable
storage directory, Raft timing parameters, and logging options.

Precedence: LoadFromEnv applies environment variables on top of the
Config it was given. kvraft-server loads the environment over the
defaults first and then applies its explicitly set CLI flags, so a
flag overrides the matching environment variable.
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names that override the corresponding Config field.
const (
	EnvDataDir      = "KVRAFT_DATA_DIR"
	EnvLogLevel     = "KVRAFT_LOG_LEVEL"
	EnvLogJSON      = "KVRAFT_LOG_JSON"
	EnvDiscover     = "KVRAFT_DISCOVER"
	EnvElectionMinMs = "KVRAFT_ELECTION_TIMEOUT_MIN_MS"
	EnvElectionMaxMs = "KVRAFT_ELECTION_TIMEOUT_MAX_MS"
	EnvHeartbeatMs   = "KVRAFT_HEARTBEAT_INTERVAL_MS"
	EnvRPCTimeoutMs  = "KVRAFT_RPC_TIMEOUT_MS"
)

// Config holds a single replica's tunables.
type Config struct {
	// BindIP/BindPort is this replica's own RPC listen address.
	BindIP   string
	BindPort int

	// ContactIP/ContactPort, if non-empty, is an existing cluster
	// member this replica asks to join at startup via apply_membership.
	// Empty means this replica bootstraps as the sole, initial leader.
	ContactIP   string
	ContactPort int

	// DataDir is the directory stable storage writes
	// "<ip>_<port>.json" into.
	DataDir string

	// Raft timing, all in milliseconds.
	ElectionTimeoutMinMs int
	ElectionTimeoutMaxMs int
	HeartbeatIntervalMs  int
	RPCTimeoutMs         int

	LogLevel string
	LogJSON  bool

	// Discover makes kvraft-server advertise this replica over mDNS.
	// The server does not browse for a contact address; joining still
	// needs a contact address given positionally.
	Discover bool
}

// DefaultConfig returns a Config with the replica's baseline settings.
func DefaultConfig() *Config {
	return &Config{
		BindIP:               "127.0.0.1",
		BindPort:             8000,
		DataDir:              "storage",
		ElectionTimeoutMinMs: 800,
		ElectionTimeoutMaxMs: 1500,
		HeartbeatIntervalMs:  150,
		RPCTimeoutMs:         500,
		LogLevel:             "info",
		LogJSON:              false,
		Discover:             false,
	}
}

// Validate reports whether the config is internally consistent.
func (c *Config) Validate() error {
	if c.BindPort <= 0 || c.BindPort > 65535 {
		return fmt.Errorf("config: invalid bind port %d", c.BindPort)
	}
	if c.BindIP == "" {
		return fmt.Errorf("config: bind ip must not be empty")
	}
	if (c.ContactIP == "") != (c.ContactPort == 0) {
		return fmt.Errorf("config: contact ip and contact port must both be set or both be empty")
	}
	if c.ContactPort < 0 || c.ContactPort > 65535 {
		return fmt.Errorf("config: invalid contact port %d", c.ContactPort)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data dir must not be empty")
	}
	if c.ElectionTimeoutMinMs <= 0 || c.ElectionTimeoutMaxMs <= 0 {
		return fmt.Errorf("config: election timeouts must be positive")
	}
	if c.ElectionTimeoutMinMs >= c.ElectionTimeoutMaxMs {
		return fmt.Errorf("config: election timeout min (%d) must be less than max (%d)", c.ElectionTimeoutMinMs, c.ElectionTimeoutMaxMs)
	}
	if c.HeartbeatIntervalMs <= 0 {
		return fmt.Errorf("config: heartbeat interval must be positive")
	}
	if c.HeartbeatIntervalMs >= c.ElectionTimeoutMinMs {
		return fmt.Errorf("config: heartbeat interval (%d) must be less than the minimum election timeout (%d)", c.HeartbeatIntervalMs, c.ElectionTimeoutMinMs)
	}
	if c.RPCTimeoutMs <= 0 {
		return fmt.Errorf("config: rpc timeout must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: invalid log level %q", c.LogLevel)
	}
	return nil
}

// Manager wraps a Config, applying environment-variable overrides on
// top of whatever was passed to NewManager.
type Manager struct {
	cfg *Config
}

// NewManager returns a Manager seeded with cfg. If cfg is nil,
// DefaultConfig is used.
func NewManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Manager{cfg: cfg}
}

// Get returns the current config.
func (m *Manager) Get() *Config {
	return m.cfg
}

// LoadFromEnv overrides fields from environment variables, when set.
func (m *Manager) LoadFromEnv() {
	c := m.cfg
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LogJSON = b
		}
	}
	if v := os.Getenv(EnvDiscover); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Discover = b
		}
	}
	if v := os.Getenv(EnvElectionMinMs); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ElectionTimeoutMinMs = n
		}
	}
	if v := os.Getenv(EnvElectionMaxMs); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ElectionTimeoutMaxMs = n
		}
	}
	if v := os.Getenv(EnvHeartbeatMs); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HeartbeatIntervalMs = n
		}
	}
	if v := os.Getenv(EnvRPCTimeoutMs); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RPCTimeoutMs = n
		}
	}
}
