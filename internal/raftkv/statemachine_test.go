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

import "testing"

func TestApplyCommandBasicVerbs(t *testing.T) {
	sm := NewStateMachine()

	if got := sm.ApplyCommand("ping"); got != "PONG" {
		t.Fatalf("ping: got %q", got)
	}
	if got := sm.ApplyCommand("set x hello"); got != "OK" {
		t.Fatalf("set: got %q", got)
	}
	if got := sm.ApplyCommand("get x"); got != "hello" {
		t.Fatalf("get: got %q", got)
	}
	if got := sm.ApplyCommand("append x world"); got != "OK" {
		t.Fatalf("append: got %q", got)
	}
	if got := sm.ApplyCommand("get x"); got != "helloworld" {
		t.Fatalf("get after append: got %q", got)
	}
	if got := sm.ApplyCommand("strln x"); got != "10" {
		t.Fatalf("strln: got %q", got)
	}
	if got := sm.ApplyCommand("del x"); got != "helloworld" {
		t.Fatalf("del: got %q", got)
	}
	if got := sm.ApplyCommand("get x"); got != "" {
		t.Fatalf("get after del: got %q", got)
	}
}

func TestApplyCommandMultiWordValue(t *testing.T) {
	sm := NewStateMachine()
	sm.ApplyCommand("set greeting hello there world")
	if got := sm.Get("greeting"); got != "hello there world" {
		t.Fatalf("got %q", got)
	}
}

func TestApplyCommandUnrecognizedVerbIsAppliedNotRejected(t *testing.T) {
	sm := NewStateMachine()
	got := sm.ApplyCommand("frobnicate a b")
	if got != invalidCommand {
		t.Fatalf("expected sentinel %q, got %q", invalidCommand, got)
	}
}

func TestApplyCommandMissingArguments(t *testing.T) {
	sm := NewStateMachine()
	cases := []string{"get", "get a b", "set a", "append b", "strln", "del"}
	for _, c := range cases {
		if got := sm.ApplyCommand(c); got != invalidCommand {
			t.Errorf("%q: expected invalid command, got %q", c, got)
		}
	}
}

func TestApplyCommandTransactionStopsAtFirstInvalid(t *testing.T) {
	sm := NewStateMachine()
	got := sm.ApplyCommand("set a 1; bogus; set b 2")
	if got != invalidCommand {
		t.Fatalf("expected transaction to stop at the invalid link, got %q", got)
	}
	if sm.Get("a") != "1" {
		t.Fatalf("commands before the failure should still apply, got a=%q", sm.Get("a"))
	}
	if sm.Get("b") != "" {
		t.Fatalf("commands after the failure must not apply, got b=%q", sm.Get("b"))
	}
}

func TestApplyCommandTransactionLastResultWins(t *testing.T) {
	sm := NewStateMachine()
	got := sm.ApplyCommand("set a 1; set b 2; get a")
	if got != "1" {
		t.Fatalf("expected the last command's result, got %q", got)
	}
}

func TestIsWellFormed(t *testing.T) {
	cases := map[string]bool{
		"ping":                 true,
		"get x":                true,
		"frobnicate x":         true, // unrecognized verb is still well-formed
		"set a 1; get a":       true,
		"":                     false,
		"   ":                  false,
		"set a 1; ; get a":     false,
		"set a 1;get a":        true, // no separator match means one link, non-empty
	}
	for input, want := range cases {
		if got := IsWellFormed(input); got != want {
			t.Errorf("IsWellFormed(%q) = %v, want %v", input, got, want)
		}
	}
}
