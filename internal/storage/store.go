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
Package storage provides a single replica's stable storage: a
per-replica JSON file, written atomically and serialized behind a
mutex, holding whatever PersistentState the caller hands it.

Above CompressionThreshold bytes the serialized payload is
snappy-compressed before the atomic write and transparently
decompressed on load.
*/
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"

	"kvraft/internal/errors"
)

// snappyMagic prefixes a compressed payload on disk so Load can tell
// compressed bytes apart from plain JSON written by an older version.
var snappyMagic = []byte("SNPY")

// CompressionThreshold is the serialized-size cutoff above which Save
// compresses the payload before writing it to disk.
const CompressionThreshold = 4096

// Store guards a single file at <dir>/<id>.json with a mutex, so that
// concurrent Save/Load calls against the same replica's stable state
// never interleave.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a Store that persists to <dir>/<id>.json, creating dir
// if it does not already exist.
func New(dir, id string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Storage("failed to create data directory").WithDetail(dir).WithCause(err)
	}
	return &Store{path: filepath.Join(dir, id+".json")}, nil
}

// Load unmarshals the persisted state into v. The second return value
// is false when no file exists yet (a fresh replica), which is not an
// error — callers should zero-initialize and proceed.
func (s *Store) Load(v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Storage("failed to read stable storage file").WithDetail(s.path).WithCause(err)
	}

	raw, err = maybeDecompress(raw)
	if err != nil {
		return false, errors.Storage("failed to decompress stable storage file").WithDetail(s.path).WithCause(err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false, errors.Storage("failed to parse stable storage file").WithDetail(s.path).WithCause(err)
	}
	return true, nil
}

// Save serializes v and atomically replaces the stable storage file:
// write to a temp file in the same directory, fsync it, then rename
// over the target. Save returns only once the bytes are durable on
// disk, satisfying the "persistence precedes reply" invariant.
func (s *Store) Save(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return errors.Storage("failed to serialize state").WithCause(err)
	}
	if len(data) > CompressionThreshold {
		data = compress(data)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Storage("failed to create temp file").WithDetail(dir).WithCause(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Storage("failed to write temp file").WithCause(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Storage("failed to fsync temp file").WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Storage("failed to close temp file").WithCause(err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return errors.Storage("failed to rename temp file into place").WithDetail(fmt.Sprintf("%s -> %s", tmpPath, s.path)).WithCause(err)
	}
	return nil
}

func compress(data []byte) []byte {
	encoded := snappy.Encode(nil, data)
	out := make([]byte, 0, len(snappyMagic)+len(encoded))
	out = append(out, snappyMagic...)
	out = append(out, encoded...)
	return out
}

func maybeDecompress(raw []byte) ([]byte, error) {
	if len(raw) < len(snappyMagic) || string(raw[:len(snappyMagic)]) != string(snappyMagic) {
		return raw, nil
	}
	return snappy.Decode(nil, raw[len(snappyMagic):])
}
