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
Package transport is the RPC endpoint: a length-prefixed JSON-over-TCP
client and server (4-byte big-endian length prefix, then a JSON
payload), dispatching on a named-method envelope rather than a fixed
binary message-type byte.

The server handles each accepted connection in its own goroutine, one
call per connection, so a slow peer cannot wedge the listener. The
transport adds no serialization of its own between calls; handlers
that share state must synchronize it themselves.
*/
package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"kvraft/internal/errors"
	"kvraft/internal/logging"
)

const maxFrameSize = 16 << 20 // 16 MiB guards against a corrupt length prefix

// envelope is the wire frame: a method name plus its raw JSON payload.
// Responses reuse the same shape with Method left empty.
type envelope struct {
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Handler processes one RPC call's raw JSON payload and returns the
// reply value, which the server JSON-marshals and sends back.
type Handler func(payload json.RawMessage) (interface{}, error)

// Server accepts RPC connections and dispatches each call, by method
// name, to a registered Handler.
type Server struct {
	listener net.Listener
	handlers map[string]Handler
	logger   *logging.Logger
	done     chan struct{}
}

// NewServer binds addr (host:port) and returns an unstarted Server.
func NewServer(addr string, logger *logging.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Transport(fmt.Sprintf("failed to listen on %s", addr)).WithCause(err)
	}
	return &Server{
		listener: ln,
		handlers: make(map[string]Handler),
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Addr returns the server's actual listen address (useful when addr
// was given as "host:0" to pick a free port, e.g. in tests).
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Handle registers fn as the handler for method. Must be called
// before Serve.
func (s *Server) Handle(method string, fn Handler) {
	s.handlers[method] = fn
}

// Serve accepts connections until Stop is called. It blocks the
// caller; run it in its own goroutine.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Warn("accept failed", "error", err.Error())
				continue
			}
		}
		go s.handleConn(conn)
	}
}

// Stop closes the listener, unblocking Serve.
func (s *Server) Stop() {
	close(s.done)
	s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	req, err := readFrame(conn)
	if err != nil {
		return
	}

	var env envelope
	if err := json.Unmarshal(req, &env); err != nil {
		s.logger.Warn("malformed rpc envelope", "error", err.Error())
		return
	}

	handler, ok := s.handlers[env.Method]
	if !ok {
		s.logger.Warn("unknown rpc method", "method", env.Method)
		return
	}

	result, err := handler(env.Payload)
	if err != nil {
		s.logger.Warn("rpc handler error", "method", env.Method, "error", err.Error())
		return
	}

	respPayload, err := json.Marshal(result)
	if err != nil {
		return
	}
	writeFrame(conn, respPayload)
}

// Client dials peers to issue RPCs, each call on its own short-lived
// connection.
type Client struct {
	Timeout time.Duration
}

// NewClient returns a Client with the given per-call RPC deadline.
func NewClient(timeout time.Duration) *Client {
	return &Client{Timeout: timeout}
}

// Call dials addr, sends method with the JSON-marshaled req, and
// unmarshals the reply into resp (a pointer).
func (c *Client) Call(addr, method string, req interface{}, resp interface{}) error {
	conn, err := net.DialTimeout("tcp", addr, c.Timeout)
	if err != nil {
		return errors.Transport(fmt.Sprintf("dial %s failed", addr)).WithCause(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(c.Timeout))

	payload, err := json.Marshal(req)
	if err != nil {
		return errors.Transport("failed to marshal request").WithCause(err)
	}
	env := envelope{Method: method, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Transport("failed to marshal envelope").WithCause(err)
	}
	if err := writeFrame(conn, data); err != nil {
		return errors.RPCTimeout(method, addr).WithCause(err)
	}

	respData, err := readFrame(conn)
	if err != nil {
		return errors.RPCTimeout(method, addr).WithCause(err)
	}
	if resp != nil {
		if err := json.Unmarshal(respData, resp); err != nil {
			return errors.Transport("failed to unmarshal reply").WithCause(err)
		}
	}
	return nil
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("transport: frame too large (%d bytes)", len(payload))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("transport: frame too large (%d bytes)", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
