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

package transport

import (
	"encoding/json"
	"testing"
	"time"

	"kvraft/internal/logging"
)

type echoRequest struct {
	Text string `json:"text"`
}

type echoReply struct {
	Text string `json:"text"`
}

func startEchoServer(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer("127.0.0.1:0", logging.NewLogger("test"))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	server.Handle("echo", func(payload json.RawMessage) (interface{}, error) {
		var req echoRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		return echoReply{Text: req.Text}, nil
	})
	go server.Serve()
	t.Cleanup(server.Stop)
	return server
}

func TestClientServerRoundTrip(t *testing.T) {
	server := startEchoServer(t)
	client := NewClient(time.Second)

	var reply echoReply
	if err := client.Call(server.Addr(), "echo", echoRequest{Text: "hello"}, &reply); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reply.Text != "hello" {
		t.Fatalf("got %q", reply.Text)
	}
}

func TestClientCallToUnknownMethodGetsNoReply(t *testing.T) {
	server := startEchoServer(t)
	client := NewClient(200 * time.Millisecond)

	var reply echoReply
	err := client.Call(server.Addr(), "bogus", echoRequest{Text: "x"}, &reply)
	if err == nil {
		t.Fatal("expected an error calling an unregistered method")
	}
}

func TestClientDialFailureReturnsError(t *testing.T) {
	client := NewClient(100 * time.Millisecond)
	var reply echoReply
	err := client.Call("127.0.0.1:1", "echo", echoRequest{Text: "x"}, &reply)
	if err == nil {
		t.Fatal("expected dial failure against a closed port")
	}
}
