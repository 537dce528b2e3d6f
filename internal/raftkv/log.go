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

// LogEntry is a single entry in a replica's replicated log. Term is
// monotonically non-decreasing with index; Value is filled in only
// after the entry is applied to the state machine and never
// influences replication or the log-matching check.
type LogEntry struct {
	Term    uint64 `json:"term"`
	Command string `json:"command"`
	Value   string `json:"value"`
}

// PersistentState is the subset of replica state that must survive a
// restart: current term, the candidate voted for in that term (if
// any), the log, and how much of it is committed. Every update here
// must be written to stable storage before the RPC reply it gates.
type PersistentState struct {
	CurrentTerm  uint64    `json:"election_term"`
	VotedFor     *Address  `json:"voted_for"`
	Log          []LogEntry `json:"log"`
	CommitLength uint64    `json:"commit_length"`
}

// lastLogIndexTerm returns the 1-based index and term of the last log
// entry, or (0, 0) for an empty log. Index 0 is not a real entry;
// prevLogIndex == 0 is the sentinel meaning "no predecessor required".
func lastLogIndexTerm(log []LogEntry) (uint64, uint64) {
	if len(log) == 0 {
		return 0, 0
	}
	last := log[len(log)-1]
	return uint64(len(log)), last.Term
}

// VolatileLeaderState exists only while a replica holds the Leader
// role (tagged union over Role, not an always-present
// struct). SentLength/AckLength are keyed by peer Address.String().
type VolatileLeaderState struct {
	SentLength map[string]uint64
	AckLength  map[string]uint64
}

func newVolatileLeaderState() *VolatileLeaderState {
	return &VolatileLeaderState{
		SentLength: make(map[string]uint64),
		AckLength:  make(map[string]uint64),
	}
}
