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
kvraft-gateway forwards client JSON over HTTP to a target replica's
execute RPC: POST /execute_command with
{"address":{"ip","port"},"command"}, GET / as a liveness probe.
*/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"time"

	"kvraft/internal/logging"
	"kvraft/internal/raftkv"
	"kvraft/internal/transport"
)

// maxRedirectHops bounds how many times the gateway will follow a
// "redirected" reply before giving up on finding the leader.
const maxRedirectHops = 5

type executeCommandRequest struct {
	Address raftkv.Address `json:"address"`
	Command string         `json:"command"`
}

func main() {
	bind := flag.String("addr", "127.0.0.1:8080", "http listen address")
	rpcTimeout := flag.Duration("rpc-timeout", 2*time.Second, "per-call RPC timeout when talking to a replica")
	logJSON := flag.Bool("log-json", false, "emit structured JSON log lines")
	flag.Parse()

	logging.SetJSONMode(*logJSON)
	logger := logging.NewLogger("gateway")
	client := transport.NewClient(*rpcTimeout)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "kvraft-gateway: alive")
	})
	mux.HandleFunc("/execute_command", func(w http.ResponseWriter, r *http.Request) {
		handleExecuteCommand(w, r, client, logger)
	})

	logger.Info("gateway listening", "addr", *bind)
	if err := http.ListenAndServe(*bind, mux); err != nil {
		logger.Error("gateway stopped", "error", err.Error())
	}
}

func handleExecuteCommand(w http.ResponseWriter, r *http.Request, client *transport.Client, logger *logging.Logger) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req executeCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "malformed request body")
		return
	}
	if !raftkv.IsWellFormed(req.Command) {
		writeError(w, "command is syntactically invalid")
		return
	}

	reply, err := forward(client, req.Address, req.Command)
	if err != nil {
		logger.Warn("execute forward failed", "target", req.Address.String(), "error", err.Error())
		writeError(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reply)
}

// forward calls the execute RPC against target, following any
// "redirected" replies toward the leader up to maxRedirectHops times.
func forward(client *transport.Client, target raftkv.Address, command string) (raftkv.ExecuteReply, error) {
	for hop := 0; hop <= maxRedirectHops; hop++ {
		var reply raftkv.ExecuteReply
		if err := client.Call(target.String(), "execute", raftkv.ExecuteRequest{Command: command}, &reply); err != nil {
			return raftkv.ExecuteReply{}, err
		}
		if reply.Status != raftkv.StatusRedirected {
			return reply, nil
		}
		target = reply.Address
	}
	return raftkv.ExecuteReply{}, fmt.Errorf("exceeded redirect hop limit (%d)", maxRedirectHops)
}

func writeError(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
