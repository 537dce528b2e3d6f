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
Package discovery advertises a replica on the local network over mDNS
and browses for others, so a new node can find a contact address
without one being passed on the command line. Implemented directly
against github.com/hashicorp/mdns.
*/
package discovery

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"kvraft/internal/errors"
	"kvraft/internal/logging"
)

// serviceName is the mDNS service type replicas advertise themselves
// under and browse for.
const serviceName = "_kvraft._tcp"

// Peer is one replica discovered on the network.
type Peer struct {
	IP   string
	Port int
}

// Advertiser keeps a replica's mDNS service record alive until
// Shutdown is called.
type Advertiser struct {
	server *mdns.Server
	logger *logging.Logger
}

// Advertise publishes ip:port on the local network as a kvraft
// replica, using id (typically "<ip>_<port>") as the service
// instance name.
func Advertise(id, ip string, port int, logger *logging.Logger) (*Advertiser, error) {
	host := strings.ReplaceAll(id, ".", "-") + ".local."
	info := []string{"kvraft replica"}
	service, err := mdns.NewMDNSService(id, serviceName, "", host, port, nil, info)
	if err != nil {
		return nil, errors.Startup("failed to build mdns service record").WithCause(err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, errors.Startup("failed to start mdns advertiser").WithCause(err)
	}

	logger.Info("advertising on mdns", "service", serviceName, "addr", fmt.Sprintf("%s:%d", ip, port))
	return &Advertiser{server: server, logger: logger}, nil
}

// Shutdown stops advertising this replica.
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Browse searches the local network for other kvraft replicas for up
// to timeout, returning every distinct peer heard from. It never
// returns an error for "none found" — an empty slice is a normal
// result when this is the first node in a fresh cluster.
func Browse(timeout time.Duration, logger *logging.Logger) ([]Peer, error) {
	entries := make(chan *mdns.ServiceEntry, 32)
	found := make([]Peer, 0, 8)
	seen := make(map[string]bool)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			if entry.AddrV4 == nil {
				continue
			}
			peer := Peer{IP: entry.AddrV4.String(), Port: entry.Port}
			key := peer.IP + ":" + strconv.Itoa(peer.Port)
			if !seen[key] {
				seen[key] = true
				found = append(found, peer)
			}
		}
	}()

	params := mdns.DefaultParams(serviceName)
	params.Timeout = timeout
	params.Entries = entries
	if err := mdns.Query(params); err != nil {
		close(entries)
		return nil, errors.Transport("mdns query failed").WithCause(err)
	}
	close(entries)
	<-done

	logger.Info("mdns browse complete", "found", strconv.Itoa(len(found)))
	return found, nil
}
