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

func TestAddressString(t *testing.T) {
	a := Address{IP: "192.168.1.5", Port: 8000}
	if got := a.String(); got != "192.168.1.5:8000" {
		t.Fatalf("got %q", got)
	}
}

func TestAddressFileID(t *testing.T) {
	a := Address{IP: "192.168.1.5", Port: 8000}
	if got := a.FileID(); got != "192.168.1.5_8000" {
		t.Fatalf("got %q", got)
	}
}

func TestAddressEqual(t *testing.T) {
	a := Address{IP: "1.2.3.4", Port: 1}
	b := Address{IP: "1.2.3.4", Port: 1}
	c := Address{IP: "1.2.3.4", Port: 2}
	if !a.Equal(b) {
		t.Fatal("expected equal addresses")
	}
	if a.Equal(c) {
		t.Fatal("expected different ports to not be equal")
	}
}

func TestAddressIsZero(t *testing.T) {
	if !(Address{}).IsZero() {
		t.Fatal("expected zero value to report IsZero")
	}
	if (Address{IP: "1.2.3.4"}).IsZero() {
		t.Fatal("expected a non-empty IP to not be zero")
	}
}
