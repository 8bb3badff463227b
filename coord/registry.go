//
// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package coord

import (
	"fmt"
	"sort"
	"sync"
)

// ClientInfo describes one registered participant.
type ClientInfo struct {
	ID string
	// NumExamples is the client's declared local dataset size, used as
	// its weight under weighted aggregation.
	NumExamples int
}

// Registry is the explicit roster of registered clients. It is passed by
// reference to the coordinator at construction; there is no ambient
// process-wide registry.
type Registry struct {
	mu      sync.Mutex
	clients map[string]ClientInfo
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]ClientInfo)}
}

// Register adds a client to the roster. Registering an already
// registered id fails.
func (r *Registry) Register(id string, numExamples int) error {
	if id == "" {
		return fmt.Errorf("Register: client id must not be empty")
	}
	if numExamples < 0 {
		return fmt.Errorf("Register: client %q declared %d examples, must be nonnegative", id, numExamples)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; ok {
		return fmt.Errorf("Register: client %q is already registered", id)
	}
	r.clients[id] = ClientInfo{ID: id, NumExamples: numExamples}
	return nil
}

// Lookup returns the info for a registered client.
func (r *Registry) Lookup(id string) (ClientInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.clients[id]
	return info, ok
}

// Size returns the number of registered clients.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// IDs returns the registered client ids in lexicographic order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
