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
	"time"

	"kvraft/internal/errors"
)

// runHeartbeatTask is the Leader role task: broadcast AppendEntries to
// every peer once per heartbeat interval until stale or stopped.
func (r *Replica) runHeartbeatTask(gen uint64) {
	ticker := time.NewTicker(r.timing.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if r.staleGeneration(gen) {
				return
			}
			r.broadcastHeartbeats(gen)
		}
	}
}

func (r *Replica) broadcastHeartbeats(gen uint64) {
	for _, peer := range r.registry.Members() {
		if peer.Equal(r.self) {
			continue
		}
		go r.sendHeartbeatToPeer(gen, peer)
	}
}

func (r *Replica) sendHeartbeatToPeer(gen uint64, peer Address) {
	r.mu.Lock()
	if r.generation != gen || r.role != RoleLeader || r.leaderSt == nil {
		r.mu.Unlock()
		return
	}
	sentLength := r.leaderSt.SentLength[peer.String()]
	prevLogTerm := uint64(0)
	if sentLength > 0 && sentLength <= uint64(len(r.persistent.Log)) {
		prevLogTerm = r.persistent.Log[sentLength-1].Term
	}
	var entries []LogEntry
	if sentLength < uint64(len(r.persistent.Log)) {
		entries = append(entries, r.persistent.Log[sentLength:]...)
	}
	req := HeartbeatRequest{
		LeaderAddr:    r.self,
		ElectionTerm:  r.persistent.CurrentTerm,
		PrevLastIndex: sentLength,
		PrevLastTerm:  prevLogTerm,
		Entries:       entries,
		LeaderCommit:  r.persistent.CommitLength,
	}
	term := r.persistent.CurrentTerm
	r.mu.Unlock()

	var reply HeartbeatReply
	if err := r.client.Call(peer.String(), "heartbeat", req, &reply); err != nil {
		return // transient transport failure; retried next heartbeat
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen || r.role != RoleLeader {
		return
	}
	if reply.ElectionTerm > term {
		r.mu.Unlock()
		r.stepDown(reply.ElectionTerm, nil)
		r.mu.Lock()
		return
	}
	if reply.Sync {
		r.leaderSt.SentLength[peer.String()] = reply.Ack
		r.leaderSt.AckLength[peer.String()] = reply.Ack
		r.updateCommitIndexLocked()
	} else if r.leaderSt.SentLength[peer.String()] > 0 {
		r.leaderSt.SentLength[peer.String()]--
	}
}

// updateCommitIndexLocked advances commitLength to the highest index
// a majority of the cluster (leader included) has acknowledged,
// requiring that entry to be from the leader's current term — the
// Raft Figure 8 safety rule: an entry committed by matching log
// position alone, without a current-term check, can be silently
// overwritten by a later leader.
func (r *Replica) updateCommitIndexLocked() {
	members := r.registry.Members()
	logLen, _ := lastLogIndexTerm(r.persistent.Log)

	matches := make([]uint64, 0, len(members))
	matches = append(matches, logLen) // leader's own match
	for _, m := range members {
		if m.Equal(r.self) {
			continue
		}
		matches = append(matches, r.leaderSt.AckLength[m.String()])
	}

	for i := 0; i < len(matches)-1; i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[i] > matches[j] {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	candidate := matches[(len(matches)-1)/2]

	if candidate > r.persistent.CommitLength && candidate >= 1 &&
		r.persistent.Log[candidate-1].Term == r.persistent.CurrentTerm {
		old := r.persistent.CommitLength
		r.persistent.CommitLength = candidate
		r.applyRangeLocked(old, candidate)
	}
}

// applyRangeLocked applies log[old:new] (1-based, half-open) to the
// state machine in order, writing each entry's result back into its
// Value field. Caller must hold r.mu; the entries mutated here are
// part of PersistentState so the caller should persist afterward.
func (r *Replica) applyRangeLocked(old, upTo uint64) {
	for i := old; i < upTo; i++ {
		entry := &r.persistent.Log[i]
		entry.Value = r.sm.ApplyCommand(entry.Command)
	}
}

// Propose appends a new client command to the log as the Leader and
// immediately broadcasts a heartbeat round to replicate it. Returns an error if
// this replica is not currently the leader.
func (r *Replica) Propose(command string) (uint64, error) {
	r.mu.Lock()
	if r.role != RoleLeader {
		leader := r.leaderID
		r.mu.Unlock()
		if leader != nil {
			return 0, errors.NotLeader(leader.String())
		}
		return 0, errors.NotLeader("")
	}
	entry := LogEntry{Term: r.persistent.CurrentTerm, Command: command}
	r.persistent.Log = append(r.persistent.Log, entry)
	index := uint64(len(r.persistent.Log))
	gen := r.generation
	err := r.persistLocked()
	if err == nil {
		// A single-member cluster is its own majority: there are no
		// peers whose heartbeat reply would otherwise trigger this.
		r.updateCommitIndexLocked()
	}
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}

	go r.broadcastHeartbeats(gen)
	return index, nil
}
