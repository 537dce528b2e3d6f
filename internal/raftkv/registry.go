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

import "sync"

// ClusterRegistry holds the ordered, unique set of peer addresses and
// the address currently believed to be leader. Mutation happens only
// at bootstrap (self only), apply_membership (leader append), and
// update_membership (follower append) — removal is not specified.
type ClusterRegistry struct {
	mu      sync.RWMutex
	members []Address
	leader  *Address
}

// NewClusterRegistry seeds a registry with the given initial members.
func NewClusterRegistry(initial ...Address) *ClusterRegistry {
	members := make([]Address, 0, len(initial))
	members = append(members, initial...)
	return &ClusterRegistry{members: members}
}

// Members returns a snapshot of the current membership list.
func (r *ClusterRegistry) Members() []Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Address, len(r.members))
	copy(out, r.members)
	return out
}

// Contains reports whether addr is already a member.
func (r *ClusterRegistry) Contains(addr Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if m.Equal(addr) {
			return true
		}
	}
	return false
}

// Add appends addr to the registry if it is not already present.
// Returns false if addr was already a member (no-op, not an error).
func (r *ClusterRegistry) Add(addr Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.Equal(addr) {
			return false
		}
	}
	r.members = append(r.members, addr)
	return true
}

// SetLeader records the address currently believed to be leader.
func (r *ClusterRegistry) SetLeader(addr Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := addr
	r.leader = &a
}

// ClearLeader forgets the believed leader (e.g. on stepping down with
// no replacement known yet).
func (r *ClusterRegistry) ClearLeader() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leader = nil
}

// Leader returns the believed leader address, if any.
func (r *ClusterRegistry) Leader() (Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.leader == nil {
		return Address{}, false
	}
	return *r.leader, true
}

// Size returns the number of members, including self.
func (r *ClusterRegistry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Majority returns the quorum size for the current membership:
// floor(N/2) + 1.
func (r *ClusterRegistry) Majority() int {
	return majorityOf(r.Size())
}

func majorityOf(n int) int {
	return n/2 + 1
}
