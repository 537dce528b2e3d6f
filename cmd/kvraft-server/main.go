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
kvraft-server runs a single Raft-KV replica.

Usage:

	kvraft-server <ip> <port>                         start as sole leader of a new cluster
	kvraft-server <ip> <port> <contactIp> <contactPort>  join an existing cluster through contact
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"kvraft/internal/config"
	"kvraft/internal/discovery"
	"kvraft/internal/logging"
	"kvraft/internal/raftkv"
	"kvraft/internal/storage"
	"kvraft/internal/transport"
)

func main() {
	dataDir := flag.String("data-dir", "", "override "+config.EnvDataDir)
	logLevel := flag.String("log-level", "", "override "+config.EnvLogLevel)
	logJSON := flag.Bool("log-json", false, "emit structured JSON log lines")
	discoverFlag := flag.Bool("discover", false, "advertise this replica over mDNS")
	joinRetries := flag.Int("join-retries", 10, "apply_membership retry budget when joining")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 && len(args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: kvraft-server <ip> <port> [<contactIp> <contactPort>]")
		os.Exit(2)
	}

	mgr := config.NewManager(config.DefaultConfig())
	mgr.LoadFromEnv()
	cfg := mgr.Get()

	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logJSON {
		cfg.LogJSON = true
	}
	if *discoverFlag {
		cfg.Discover = true
	}

	cfg.BindIP = args[0]
	port, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", args[1], err)
		os.Exit(2)
	}
	cfg.BindPort = port

	var contact *raftkv.Address
	if len(args) == 4 {
		contactPort, err := strconv.Atoi(args[3])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid contact port %q: %v\n", args[3], err)
			os.Exit(2)
		}
		contact = &raftkv.Address{IP: args[2], Port: contactPort}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logging.SetJSONMode(cfg.LogJSON)
	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewLogger("server")

	self := raftkv.Address{IP: cfg.BindIP, Port: cfg.BindPort}

	store, err := storage.New(cfg.DataDir, self.FileID())
	if err != nil {
		logger.Error("failed to open stable storage", "error", err.Error())
		os.Exit(1)
	}

	client := transport.NewClient(time.Duration(cfg.RPCTimeoutMs) * time.Millisecond)
	timing := raftkv.Timing{
		ElectionTimeoutMin: time.Duration(cfg.ElectionTimeoutMinMs) * time.Millisecond,
		ElectionTimeoutMax: time.Duration(cfg.ElectionTimeoutMaxMs) * time.Millisecond,
		HeartbeatInterval:  time.Duration(cfg.HeartbeatIntervalMs) * time.Millisecond,
		RPCTimeout:         time.Duration(cfg.RPCTimeoutMs) * time.Millisecond,
	}
	replica := raftkv.NewReplica(self, store, client, logger.With("component", "raft"), timing)

	server, err := transport.NewServer(self.String(), logger.With("component", "rpc"))
	if err != nil {
		logger.Error("failed to start rpc server", "error", err.Error())
		os.Exit(1)
	}
	replica.RegisterHandlers(server)

	go server.Serve()
	logger.Info("rpc server listening", "addr", server.Addr())

	var advertiser *discovery.Advertiser
	if cfg.Discover {
		advertiser, err = discovery.Advertise(self.FileID(), self.IP, self.Port, logger)
		if err != nil {
			logger.Warn("mdns advertise failed", "error", err.Error())
		}
	}

	if contact != nil {
		if err := replica.Join(*contact, *joinRetries); err != nil {
			logger.Error("failed to join cluster", "contact", contact.String(), "error", err.Error())
			os.Exit(1)
		}
	} else {
		if err := replica.Bootstrap(); err != nil {
			logger.Error("failed to bootstrap cluster", "error", err.Error())
			os.Exit(1)
		}
	}

	logger.Info("kvraft replica started", "addr", self.String(), "role", replica.Role().String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	replica.Stop()
	server.Stop()
	if advertiser != nil {
		advertiser.Shutdown()
	}
}
