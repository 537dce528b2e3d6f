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

package storage

import (
	"strings"
	"testing"
)

type testState struct {
	Term int      `json:"term"`
	Log  []string `json:"log"`
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	store, err := New(t.TempDir(), "127.0.0.1_9000")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var got testState
	found, err := store.Load(&got)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatal("expected found=false for a fresh replica")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := New(t.TempDir(), "127.0.0.1_9000")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := testState{Term: 7, Log: []string{"set a 1", "get a"}}
	if err := store.Save(&want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var got testState
	found, err := store.Load(&got)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatal("expected found=true after a Save")
	}
	if got.Term != want.Term || len(got.Log) != len(want.Log) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSaveCompressesAboveThreshold(t *testing.T) {
	store, err := New(t.TempDir(), "127.0.0.1_9000")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	big := testState{Log: make([]string, 0, 1000)}
	for i := 0; i < 1000; i++ {
		big.Log = append(big.Log, strings.Repeat("x", 20))
	}
	if err := store.Save(&big); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var got testState
	found, err := store.Load(&got)
	if err != nil {
		t.Fatalf("Load after compressed save: %v", err)
	}
	if !found || len(got.Log) != len(big.Log) {
		t.Fatalf("round trip through compression failed: found=%v len=%d", found, len(got.Log))
	}
}

func TestSaveOverwritesPreviousContent(t *testing.T) {
	store, err := New(t.TempDir(), "127.0.0.1_9000")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	store.Save(&testState{Term: 1})
	store.Save(&testState{Term: 2})

	var got testState
	if _, err := store.Load(&got); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Term != 2 {
		t.Fatalf("expected latest save to win, got term=%d", got.Term)
	}
}
