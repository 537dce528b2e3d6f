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

func TestClusterRegistryAddAndContains(t *testing.T) {
	reg := NewClusterRegistry(Address{IP: "10.0.0.1", Port: 9000})
	if !reg.Contains(Address{IP: "10.0.0.1", Port: 9000}) {
		t.Fatal("expected seed member to be present")
	}

	second := Address{IP: "10.0.0.2", Port: 9000}
	if !reg.Add(second) {
		t.Fatal("expected Add to report a new member")
	}
	if reg.Add(second) {
		t.Fatal("expected Add to be a no-op for a duplicate")
	}
	if reg.Size() != 2 {
		t.Fatalf("expected 2 members, got %d", reg.Size())
	}
}

func TestClusterRegistryMajority(t *testing.T) {
	cases := []struct {
		size int
		want int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
	}
	for _, c := range cases {
		if got := majorityOf(c.size); got != c.want {
			t.Errorf("majorityOf(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestClusterRegistryLeader(t *testing.T) {
	reg := NewClusterRegistry(Address{IP: "127.0.0.1", Port: 1})
	if _, ok := reg.Leader(); ok {
		t.Fatal("expected no leader initially")
	}
	leader := Address{IP: "127.0.0.1", Port: 1}
	reg.SetLeader(leader)
	got, ok := reg.Leader()
	if !ok || !got.Equal(leader) {
		t.Fatalf("expected leader %v, got %v (ok=%v)", leader, got, ok)
	}
	reg.ClearLeader()
	if _, ok := reg.Leader(); ok {
		t.Fatal("expected leader cleared")
	}
}

func TestClusterRegistryMembersIsASnapshot(t *testing.T) {
	reg := NewClusterRegistry(Address{IP: "a", Port: 1})
	snapshot := reg.Members()
	reg.Add(Address{IP: "b", Port: 2})
	if len(snapshot) != 1 {
		t.Fatalf("mutating the registry after Members() must not affect the earlier snapshot, got len=%d", len(snapshot))
	}
}
