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
kvraft-cli is an interactive REPL that sends commands to a replica
through a kvraft-gateway (POST /execute_command).
*/
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"kvraft/internal/raftkv"
	"kvraft/pkg/cli"
)

type executeCommandRequest struct {
	Address raftkv.Address `json:"address"`
	Command string         `json:"command"`
}

func main() {
	gateway := flag.String("gateway", "http://127.0.0.1:8080", "kvraft-gateway base URL")
	targetAddr := flag.String("address", "", "target replica address, ip:port (required)")
	timeout := flag.Duration("timeout", 5*time.Second, "HTTP request timeout")
	flag.Parse()

	if *targetAddr == "" {
		cli.PrintError("missing required -address flag")
		os.Exit(2)
	}
	ip, port, err := splitAddr(*targetAddr)
	if err != nil {
		cli.PrintError("invalid -address %q: %v", *targetAddr, err)
		os.Exit(2)
	}

	formatter := buildHelpFormatter()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s> ", cli.Info("kvraft "+*targetAddr)),
		HistoryFile:     filepath.Join(os.TempDir(), "kvraft-cli.history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		cli.PrintError("failed to start readline: %v", err)
		os.Exit(1)
	}
	defer rl.Close()

	client := &http.Client{Timeout: *timeout}
	cli.Box("kvraft-cli", fmt.Sprintf("gateway %s\nreplica %s", *gateway, *targetAddr))
	cli.PrintInfo("type \\h for help, \\q to quit")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch line {
		case "\\q", "\\quit", "exit":
			return
		case "\\h", "\\help":
			formatter.PrintUsage()
			continue
		}

		if strings.HasPrefix(line, "del ") && !cli.Confirm(fmt.Sprintf("this will delete %q", strings.TrimSpace(line[4:]))) {
			continue
		}

		spinner := cli.NewSpinner("waiting for commit")
		spinner.Start()
		reply, err := execute(client, *gateway, raftkv.Address{IP: ip, Port: port}, line)
		spinner.Stop()
		if err != nil {
			cli.PrintError("%v", err)
			continue
		}
		if line == "request_log" && reply.Status == raftkv.StatusSuccess {
			printRequestLog(reply.Data)
			continue
		}
		printReply(reply)
	}
}

func execute(client *http.Client, gateway string, target raftkv.Address, command string) (raftkv.ExecuteReply, error) {
	body, err := json.Marshal(executeCommandRequest{Address: target, Command: command})
	if err != nil {
		return raftkv.ExecuteReply{}, err
	}

	resp, err := client.Post(strings.TrimRight(gateway, "/")+"/execute_command", "application/json", bytes.NewReader(body))
	if err != nil {
		return raftkv.ExecuteReply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		var errBody map[string]string
		json.NewDecoder(resp.Body).Decode(&errBody)
		return raftkv.ExecuteReply{}, fmt.Errorf("%s", errBody["error"])
	}

	var reply raftkv.ExecuteReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return raftkv.ExecuteReply{}, err
	}
	return reply, nil
}

func printReply(reply raftkv.ExecuteReply) {
	switch reply.Status {
	case raftkv.StatusSuccess:
		if reply.Data != "" {
			cli.PrintSuccess("%s", reply.Data)
		} else {
			cli.KeyValue("status", "OK", 10)
			cli.KeyValue("replica", reply.Address.String(), 10)
		}
	case raftkv.StatusRedirected:
		cli.PrintWarning("not the leader, redirected to %s", reply.Address.String())
	case raftkv.StatusOnProcess:
		cli.PrintInfo("command accepted, still committing")
	default:
		cli.PrintError("%s", reply.Reason)
	}
}

// printRequestLog renders a request_log reply's JSON-encoded log
// entries as a table rather than dumping the raw JSON string.
func printRequestLog(data string) {
	var log []raftkv.LogEntry
	if err := json.Unmarshal([]byte(data), &log); err != nil {
		cli.PrintError("malformed request_log reply: %v", err)
		return
	}
	table := cli.NewTable("Index", "Term", "Command", "Result")
	for i, entry := range log {
		table.AddRow(strconv.Itoa(i+1), strconv.FormatUint(entry.Term, 10), entry.Command, entry.Value)
	}
	table.Print()
}

func splitAddr(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("expected ip:port")
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port: %w", err)
	}
	return addr[:idx], port, nil
}

func buildHelpFormatter() *cli.HelpFormatter {
	f := cli.NewHelpFormatter("kvraft-cli", "1.0.0")
	f.AddCommand(cli.Command{Name: "ping", Description: "check liveness", Usage: "ping"})
	f.AddCommand(cli.Command{Name: "get", Description: "read a key", Usage: "get <key>"})
	f.AddCommand(cli.Command{Name: "set", Description: "write a key", Usage: "set <key> <value>"})
	f.AddCommand(cli.Command{Name: "append", Description: "append to a key's value", Usage: "append <key> <value>"})
	f.AddCommand(cli.Command{Name: "strln", Description: "length of a key's value", Usage: "strln <key>"})
	f.AddCommand(cli.Command{Name: "del", Description: "delete a key, returning its prior value", Usage: "del <key>"})
	f.AddCommand(cli.Command{Name: "request_log", Description: "dump the committed log", Usage: "request_log"})
	f.AddCommand(cli.Command{
		Name:        "transaction",
		Description: "chain commands with '; ' to apply atomically",
		Usage:       "set a 1; set b 2; get a",
	})
	return f
}
