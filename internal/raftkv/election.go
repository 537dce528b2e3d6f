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
	"sync"
	"time"
)

// runElectionTimerTask is the Follower/Candidate role task: wait out
// a randomized election timeout, resetting whenever a valid heartbeat
// or granted vote arrives, and start a new election on expiry. It
// exits as soon as a generation bump (role change) makes it stale.
func (r *Replica) runElectionTimerTask(gen uint64) {
	for {
		timeout := r.randomElectionTimeout()
		select {
		case <-r.stopCh:
			return
		case <-r.resetElectionCh:
			if r.staleGeneration(gen) {
				return
			}
			continue
		case <-time.After(timeout):
			if r.staleGeneration(gen) {
				return
			}
			r.startElection(gen)
			return
		}
	}
}

func (r *Replica) staleGeneration(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation != gen
}

// startElection transitions this replica to Candidate for a new term
// and requests votes from every other member.
func (r *Replica) startElection(gen uint64) {
	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		return
	}
	r.persistent.CurrentTerm++
	r.role = RoleCandidate
	self := r.self
	r.persistent.VotedFor = &self
	currentTerm := r.persistent.CurrentTerm
	lastIndex, lastTerm := lastLogIndexTerm(r.persistent.Log)
	newGen := r.bumpGenerationLocked()
	if err := r.persistLocked(); err != nil {
		r.mu.Unlock()
		r.logger.Error("failed to persist before election", "error", err.Error())
		return
	}
	r.mu.Unlock()

	r.logger.Info("starting election", "term", itoa64(currentTerm))
	go r.runElectionTimerTask(newGen)

	members := r.registry.Members()
	needed := majorityOf(len(members))
	votes := 1 // self

	var voteMu sync.Mutex
	var wg sync.WaitGroup
	for _, peer := range members {
		if peer.Equal(r.self) {
			continue
		}
		wg.Add(1)
		go func(p Address) {
			defer wg.Done()
			var reply VoteReply
			req := VoteRequest{
				CandidateAddr: r.self,
				ElectionTerm:  currentTerm,
				LastLogIndex:  lastIndex,
				LastLogTerm:   lastTerm,
			}
			if err := r.client.Call(p.String(), "vote", req, &reply); err != nil {
				return
			}

			r.mu.Lock()
			stale := r.generation != newGen
			higherTerm := reply.ElectionTerm > r.persistent.CurrentTerm
			r.mu.Unlock()
			if stale {
				return
			}
			if higherTerm {
				r.stepDown(reply.ElectionTerm, nil)
				return
			}
			if !reply.VoteGranted {
				return
			}

			voteMu.Lock()
			votes++
			v := votes
			voteMu.Unlock()
			if v >= needed {
				r.becomeLeader(newGen)
			}
		}(peer)
	}
	wg.Wait()
}

// stepDown reverts to Follower on observing a higher term, per
// Steps down to Follower immediately whenever it observes a message
// with term > currentTerm.
func (r *Replica) stepDown(term uint64, leader *Address) {
	r.mu.Lock()
	if term < r.persistent.CurrentTerm {
		r.mu.Unlock()
		return
	}
	r.persistent.CurrentTerm = term
	r.persistent.VotedFor = nil
	r.role = RoleFollower
	r.leaderSt = nil
	r.leaderID = leader
	gen := r.bumpGenerationLocked()
	err := r.persistLocked()
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("failed to persist on step down", "error", err.Error())
	}
	go r.runElectionTimerTask(gen)
}

// becomeLeader transitions a Candidate that won its election to
// Leader and starts the heartbeat task. A stale or already-leader
// call is a harmless no-op (multiple vote replies can cross the
// majority threshold concurrently).
func (r *Replica) becomeLeader(gen uint64) {
	r.mu.Lock()
	if r.generation != gen || r.role == RoleLeader {
		r.mu.Unlock()
		return
	}
	r.role = RoleLeader
	self := r.self
	r.leaderID = &self
	ls := newVolatileLeaderState()
	logLen, _ := lastLogIndexTerm(r.persistent.Log)
	for _, m := range r.registry.Members() {
		if m.Equal(r.self) {
			continue
		}
		ls.SentLength[m.String()] = logLen
		ls.AckLength[m.String()] = 0
	}
	r.leaderSt = ls
	newGen := r.bumpGenerationLocked()
	term := r.persistent.CurrentTerm
	r.mu.Unlock()

	r.registry.SetLeader(self)
	r.logger.Info("became leader", "term", itoa64(term))
	go r.runHeartbeatTask(newGen)
	r.broadcastHeartbeats(newGen)
}
