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

package raftkv

import (
	"strconv"
	"strings"
	"sync"
)

// invalidCommand is the sentinel result for any command the parser
// cannot recognize or that is missing a required argument. It is a
// state-machine result, not a protocol-level error, and is replicated
// and applied like any other command's outcome.
const invalidCommand = "Invalid command"

// transactionSeparator splits a client-submitted command into the
// sequence of commands that make up one transaction.
const transactionSeparator = "; "

// StateMachine is the deterministic, single-threaded key-value store.
// Its content is a pure function of the prefix of the committed log
// applied to it in order.
type StateMachine struct {
	mu    sync.Mutex
	store map[string]string
}

// NewStateMachine returns an empty store.
func NewStateMachine() *StateMachine {
	return &StateMachine{store: make(map[string]string)}
}

// ApplyCommand applies one already-committed log command (which may
// itself be a ";"-joined transaction) and returns the result that is
// written back into the log entry's Value field.
func (sm *StateMachine) ApplyCommand(command string) string {
	if command == "" {
		return invalidCommand
	}

	parts := strings.Split(command, transactionSeparator)
	if len(parts) == 1 {
		return sm.applySingle(parts[0])
	}

	var last string
	for _, part := range parts {
		last = sm.applySingle(part)
		if last == invalidCommand {
			break
		}
	}
	return last
}

// applySingle executes exactly one non-chained command against the
// store, holding the lock for the whole read-modify-write.
func (sm *StateMachine) applySingle(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return invalidCommand
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch fields[0] {
	case "ping":
		return "PONG"
	case "get":
		if len(fields) != 2 {
			return invalidCommand
		}
		return sm.store[fields[1]]
	case "set":
		if len(fields) < 3 {
			return invalidCommand
		}
		key := fields[1]
		value := strings.Join(fields[2:], " ")
		sm.store[key] = value
		return "OK"
	case "append":
		if len(fields) < 3 {
			return invalidCommand
		}
		key := fields[1]
		value := strings.Join(fields[2:], " ")
		sm.store[key] = sm.store[key] + value
		return "OK"
	case "strln":
		if len(fields) != 2 {
			return invalidCommand
		}
		return strconv.Itoa(len(sm.store[fields[1]]))
	case "del":
		if len(fields) != 2 {
			return invalidCommand
		}
		key := fields[1]
		prev := sm.store[key]
		delete(sm.store, key)
		return prev
	default:
		return invalidCommand
	}
}

// Get returns the current value of key without going through the log,
// for use by tests that need to inspect state directly.
func (sm *StateMachine) Get(key string) string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.store[key]
}

// IsWellFormed reports whether raw (a whole, possibly ";"-chained
// command) is syntactically acceptable to submit at all: non-empty,
// with no empty link in the chain. It does NOT check whether each
// verb is recognized — an unrecognized verb is a valid state-machine
// result ("Invalid command"), not a rejected submission
// scenario 4: "frobnicate" is appended, replicated, and applied).
func IsWellFormed(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	for _, part := range strings.Split(raw, transactionSeparator) {
		if strings.TrimSpace(part) == "" {
			return false
		}
	}
	return true
}
