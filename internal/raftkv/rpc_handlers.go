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
	"encoding/json"
	"time"

	"kvraft/internal/errors"
	"kvraft/internal/transport"
)

const requestLogCommand = "request_log"

// RegisterHandlers wires the five RPC methods a replica exposes onto
// server, each unmarshaling its payload and delegating to the
// matching Handle* method.
func (r *Replica) RegisterHandlers(server *transport.Server) {
	server.Handle("execute", func(payload json.RawMessage) (interface{}, error) {
		var req ExecuteRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		return r.HandleExecute(req), nil
	})
	server.Handle("heartbeat", func(payload json.RawMessage) (interface{}, error) {
		var req HeartbeatRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		return r.HandleHeartbeat(req), nil
	})
	server.Handle("vote", func(payload json.RawMessage) (interface{}, error) {
		var req VoteRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		return r.HandleVote(req), nil
	})
	server.Handle("apply_membership", func(payload json.RawMessage) (interface{}, error) {
		var req ApplyMembershipRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		return r.HandleApplyMembership(req), nil
	})
	server.Handle("update_membership", func(payload json.RawMessage) (interface{}, error) {
		var req UpdateMembershipRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, err
		}
		return r.HandleUpdateMembership(req), nil
	})
}

// HandleVote implements the vote RPC. It grants the vote iff the
// candidate's term is at least current, this replica hasn't already
// voted for someone else this term, and the candidate's log is at
// least as up-to-date — the standard Raft freshness check, not term
// alone.
func (r *Replica) HandleVote(req VoteRequest) VoteReply {
	r.mu.Lock()

	termChanged := false
	if req.ElectionTerm > r.persistent.CurrentTerm {
		r.persistent.CurrentTerm = req.ElectionTerm
		r.persistent.VotedFor = nil
		r.role = RoleFollower
		r.leaderSt = nil
		termChanged = true
	}

	granted := false
	if req.ElectionTerm >= r.persistent.CurrentTerm {
		lastIndex, lastTerm := lastLogIndexTerm(r.persistent.Log)
		logOK := req.LastLogTerm > lastTerm ||
			(req.LastLogTerm == lastTerm && req.LastLogIndex >= lastIndex)
		votedOK := r.persistent.VotedFor == nil || r.persistent.VotedFor.Equal(req.CandidateAddr)
		if votedOK && logOK {
			cand := req.CandidateAddr
			r.persistent.VotedFor = &cand
			granted = true
		}
	}

	term := r.persistent.CurrentTerm
	if granted || termChanged {
		// Persistence precedes reply: if the
		// write fails, we must not report the vote as granted.
		if err := r.persistLocked(); err != nil {
			r.logger.Error("failed to persist vote", "error", err.Error())
			if granted {
				granted = false
				r.persistent.VotedFor = nil
			}
		}
	}
	r.mu.Unlock()

	if granted {
		r.notifyElectionReset()
	}
	return VoteReply{Status: StatusSuccess, ElectionTerm: term, VoteGranted: granted, Address: r.self}
}

// HandleHeartbeat implements the unified heartbeat/AppendEntries RPC.
func (r *Replica) HandleHeartbeat(req HeartbeatRequest) HeartbeatReply {
	r.mu.Lock()

	term := r.persistent.CurrentTerm
	if req.ElectionTerm < term {
		r.mu.Unlock()
		return HeartbeatReply{Status: StatusFailed, ElectionTerm: term, Address: r.self}
	}

	roleChanged := r.role != RoleFollower
	termChanged := req.ElectionTerm > term
	if termChanged {
		r.persistent.CurrentTerm = req.ElectionTerm
		r.persistent.VotedFor = nil
	}
	if roleChanged || termChanged {
		r.role = RoleFollower
		r.leaderSt = nil
	}
	leaderAddr := req.LeaderAddr
	r.leaderID = &leaderAddr

	prevIndex := req.PrevLastIndex
	logOK := prevIndex == 0 ||
		(prevIndex <= uint64(len(r.persistent.Log)) && r.persistent.Log[prevIndex-1].Term == req.PrevLastTerm)

	if !logOK {
		current := r.persistent.CurrentTerm
		gen := uint64(0)
		needNewTask := roleChanged || termChanged
		if needNewTask {
			gen = r.bumpGenerationLocked()
		}
		err := r.persistLocked()
		r.mu.Unlock()
		if err != nil {
			r.logger.Error("failed to persist on heartbeat", "error", err.Error())
		}
		if needNewTask {
			go r.runElectionTimerTask(gen)
		}
		r.notifyElectionReset()
		return HeartbeatReply{Status: StatusFailed, ElectionTerm: current, Sync: false, Address: r.self}
	}

	for i, entry := range req.Entries {
		pos := prevIndex + uint64(i)
		if pos < uint64(len(r.persistent.Log)) {
			if r.persistent.Log[pos].Term != entry.Term {
				r.persistent.Log = r.persistent.Log[:pos]
				r.persistent.Log = append(r.persistent.Log, entry)
			}
		} else {
			r.persistent.Log = append(r.persistent.Log, entry)
		}
	}

	lastNewIndex := prevIndex + uint64(len(req.Entries))
	if req.LeaderCommit > r.persistent.CommitLength {
		old := r.persistent.CommitLength
		newCommit := req.LeaderCommit
		if newCommit > lastNewIndex {
			newCommit = lastNewIndex
		}
		if newCommit > uint64(len(r.persistent.Log)) {
			newCommit = uint64(len(r.persistent.Log))
		}
		r.persistent.CommitLength = newCommit
		r.applyRangeLocked(old, newCommit)
	}

	current := r.persistent.CurrentTerm
	gen := uint64(0)
	needNewTask := roleChanged || termChanged
	if needNewTask {
		gen = r.bumpGenerationLocked()
	}
	err := r.persistLocked()
	r.mu.Unlock()
	if err != nil {
		r.logger.Error("failed to persist on heartbeat", "error", err.Error())
	}
	if needNewTask {
		go r.runElectionTimerTask(gen)
	}
	r.notifyElectionReset()

	return HeartbeatReply{Status: StatusSuccess, ElectionTerm: current, Ack: lastNewIndex, Sync: true, Address: r.self}
}

// HandleExecute implements the execute RPC: non-leaders
// redirect, the leader appends the command to its log and waits
// (bounded) for it to commit and apply before replying.
func (r *Replica) HandleExecute(req ExecuteRequest) ExecuteReply {
	r.mu.Lock()
	role := r.role
	leader := r.leaderID
	r.mu.Unlock()

	if role != RoleLeader {
		if leader != nil {
			return ExecuteReply{Status: StatusRedirected, Address: *leader}
		}
		return ExecuteReply{Status: StatusFailed, Address: r.self, Reason: "no known leader"}
	}

	if req.Command == requestLogCommand {
		r.mu.Lock()
		logCopy := append([]LogEntry{}, r.persistent.Log...)
		r.mu.Unlock()
		data, _ := json.Marshal(logCopy)
		return ExecuteReply{Status: StatusSuccess, Address: r.self, Data: string(data)}
	}

	if !IsWellFormed(req.Command) {
		return ExecuteReply{Status: StatusFailed, Address: r.self, Reason: "malformed command"}
	}

	index, err := r.Propose(req.Command)
	if err != nil {
		if errors.IsNotLeader(err) {
			if leaderAddr, ok := r.Leader(); ok {
				return ExecuteReply{Status: StatusRedirected, Address: leaderAddr}
			}
		}
		return ExecuteReply{Status: StatusFailed, Address: r.self, Reason: err.Error()}
	}

	result, ok := r.waitForApply(index, r.timing.RPCTimeout*4)
	if !ok {
		return ExecuteReply{Status: StatusOnProcess, Address: r.self}
	}
	return ExecuteReply{Status: StatusSuccess, Address: r.self, Data: result}
}

func (r *Replica) waitForApply(index uint64, timeout time.Duration) (string, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if r.persistent.CommitLength >= index {
			value := r.persistent.Log[index-1].Value
			r.mu.Unlock()
			return value, true
		}
		r.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	return "", false
}

// HandleApplyMembership implements the apply_membership RPC:
// non-leaders redirect; the leader rejects duplicate joins as
// a no-op success, otherwise appends the new address and broadcasts
// update_membership to the rest of the cluster.
func (r *Replica) HandleApplyMembership(req ApplyMembershipRequest) ApplyMembershipReply {
	r.mu.Lock()
	role := r.role
	leader := r.leaderID
	r.mu.Unlock()

	if role != RoleLeader {
		if leader != nil {
			return ApplyMembershipReply{Status: StatusRedirected, Address: *leader}
		}
		return ApplyMembershipReply{Status: StatusFailed, Address: r.self, Reason: "no known leader"}
	}

	added := r.registry.Add(req.Address)

	if added {
		r.mu.Lock()
		if r.leaderSt != nil {
			logLen, _ := lastLogIndexTerm(r.persistent.Log)
			r.leaderSt.SentLength[req.Address.String()] = logLen
			r.leaderSt.AckLength[req.Address.String()] = 0
		}
		r.mu.Unlock()

		for _, peer := range r.registry.Members() {
			if peer.Equal(r.self) || peer.Equal(req.Address) {
				continue
			}
			go func(p Address) {
				var reply UpdateMembershipReply
				_ = r.client.Call(p.String(), "update_membership", UpdateMembershipRequest{Address: req.Address}, &reply)
			}(peer)
		}
	}

	r.mu.Lock()
	logCopy := append([]LogEntry{}, r.persistent.Log...)
	r.mu.Unlock()

	return ApplyMembershipReply{
		Status:  StatusSuccess,
		Address: r.self,
		Cluster: r.registry.Members(),
		Log:     logCopy,
	}
}

// HandleUpdateMembership implements the update_membership RPC: a
// follower simply appends the new address to its registry.
func (r *Replica) HandleUpdateMembership(req UpdateMembershipRequest) UpdateMembershipReply {
	r.registry.Add(req.Address)
	return UpdateMembershipReply{Status: StatusSuccess, Address: r.self}
}
