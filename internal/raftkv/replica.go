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
Package raftkv is the consensus replica: leader election, log
replication, membership change, durable state, and the command state
machine. Everything outside this package — the RPC transport's byte
pushing, the HTTP gateway, the CLI entry point — is collaborator
scaffolding around a Replica.

Vote granting requires the standard Raft log-freshness check (not term
alone), and commit advancement requires the committed entry to be from
the leader's current term (Raft Figure 8 safety).
*/
package raftkv

import (
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"kvraft/internal/errors"
	"kvraft/internal/logging"
	"kvraft/internal/transport"
)

// Role is the tagged-union discriminant for a replica's place in the
// Raft protocol. VolatileLeaderState exists only while role ==
// RoleLeader, not as an always-present zero value.
type Role int

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// Timing bundles the Raft timing parameters a Replica is constructed
// with (internal/config.Config carries these at the process level).
type Timing struct {
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	RPCTimeout         time.Duration
}

// Replica is one consensus participant. Construct with NewReplica,
// then either Bootstrap (sole initial leader) or Join (attach to an
// existing cluster); each of those starts the replica's role task.
type Replica struct {
	self   Address
	timing Timing
	logger *logging.Logger

	store    storage
	client   *transport.Client
	registry *ClusterRegistry
	sm       *StateMachine

	mu         sync.Mutex
	persistent PersistentState
	role       Role
	leaderID   *Address
	leaderSt   *VolatileLeaderState
	generation uint64

	resetElectionCh chan struct{}
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// storage is the minimal interface Replica needs from
// internal/storage.Store, so this package's tests can substitute an
// in-memory fake without importing the storage package's file I/O.
type storage interface {
	Load(v interface{}) (bool, error)
	Save(v interface{}) error
}

// NewReplica constructs a replica bound to self, persisting through
// store and dialing peers through client. It does not run until
// Bootstrap or Join is called.
func NewReplica(self Address, store storage, client *transport.Client, logger *logging.Logger, timing Timing) *Replica {
	return &Replica{
		self:            self,
		timing:          timing,
		logger:          logger,
		store:           store,
		client:          client,
		registry:        NewClusterRegistry(self),
		sm:              NewStateMachine(),
		resetElectionCh: make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
	}
}

// Bootstrap seeds this replica as the sole, initial member and leader
// of a brand-new cluster (kvraft-server invoked with two positional
// arguments, no contact address). If a prior on-disk state exists (process restart), it
// is loaded instead of re-zeroing.
func (r *Replica) Bootstrap() error {
	found, err := r.store.Load(&r.persistent)
	if err != nil {
		return err
	}
	if !found {
		r.persistent = PersistentState{}
		if err := r.store.Save(&r.persistent); err != nil {
			return err
		}
	}
	r.registry = NewClusterRegistry(r.self)
	r.registry.SetLeader(r.self)
	r.mu.Lock()
	r.role = RoleLeader
	r.leaderID = &r.self
	r.leaderSt = newVolatileLeaderState()
	gen := r.bumpGenerationLocked()
	r.mu.Unlock()

	r.logger.Info("bootstrapped as sole leader", "term", itoa64(r.persistent.CurrentTerm))
	go r.runHeartbeatTask(gen)
	return nil
}

// Join asks contact to add self to its cluster (apply_membership),
// following REDIRECTED replies up to retryBudget times, spaced by the
// heartbeat interval. On success it adopts the returned log and
// registry and starts as Follower.
func (r *Replica) Join(contact Address, retryBudget int) error {
	found, err := r.store.Load(&r.persistent)
	if err != nil {
		return err
	}
	if !found {
		r.persistent = PersistentState{}
	}

	target := contact
	for attempt := 0; attempt < retryBudget; attempt++ {
		var reply ApplyMembershipReply
		err := r.client.Call(target.String(), "apply_membership", ApplyMembershipRequest{Address: r.self}, &reply)
		if err != nil {
			time.Sleep(r.timing.HeartbeatInterval)
			continue
		}

		switch reply.Status {
		case StatusSuccess:
			r.registry = NewClusterRegistry(reply.Cluster...)
			if !r.registry.Contains(r.self) {
				r.registry.Add(r.self)
			}
			r.registry.SetLeader(reply.Address)
			r.mu.Lock()
			r.persistent.Log = reply.Log
			r.leaderID = &reply.Address
			r.mu.Unlock()
			if err := r.store.Save(&r.persistent); err != nil {
				return err
			}
			r.mu.Lock()
			r.role = RoleFollower
			gen := r.bumpGenerationLocked()
			r.mu.Unlock()
			go r.runElectionTimerTask(gen)
			r.logger.Info("joined cluster", "leader", reply.Address.String())
			return nil
		case StatusRedirected:
			target = reply.Address
			time.Sleep(r.timing.HeartbeatInterval)
			continue
		default:
			time.Sleep(r.timing.HeartbeatInterval)
		}
	}
	return errors.ContactFailed(contact.String(), retryBudget)
}

// Stop shuts the replica's background role task down. Idempotent.
func (r *Replica) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Self returns this replica's own address.
func (r *Replica) Self() Address { return r.self }

// Role reports the replica's current role.
func (r *Replica) Role() Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.role
}

// Term reports the replica's current term.
func (r *Replica) Term() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistent.CurrentTerm
}

// Leader reports the believed leader address, if any.
func (r *Replica) Leader() (Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.leaderID == nil {
		return Address{}, false
	}
	return *r.leaderID, true
}

// Registry exposes the cluster registry for callers (such as tests)
// that need to know current membership.
func (r *Replica) Registry() *ClusterRegistry { return r.registry }

func (r *Replica) persistLocked() error {
	return r.store.Save(&r.persistent)
}

// bumpGenerationLocked invalidates any role task spawned before this
// call; callers must hold r.mu.
func (r *Replica) bumpGenerationLocked() uint64 {
	r.generation++
	return r.generation
}

func (r *Replica) randomElectionTimeout() time.Duration {
	lo := r.timing.ElectionTimeoutMin
	hi := r.timing.ElectionTimeoutMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

func (r *Replica) notifyElectionReset() {
	select {
	case r.resetElectionCh <- struct{}{}:
	default:
	}
}

func itoa64(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
