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

// Package coord runs the federated training loop: it keeps the roster
// of registered clients, distributes the global parameters at the start
// of each round, collects the clients' updates and hands them to the
// privacy engine for aggregation.
package coord

import (
	"errors"
	"fmt"
	"sort"

	log "github.com/golang/glog"
	"github.com/google/federated-privacy/go/aggregate"
	"github.com/google/federated-privacy/go/budget"
	"github.com/google/federated-privacy/go/engine"
	"github.com/google/federated-privacy/go/params"
	"github.com/google/uuid"
)

// ErrTooFewClients is returned by StartRound when fewer clients are
// registered than the configured minimum.
var ErrTooFewClients = errors.New("too few registered clients")

// ErrNoOpenRound is returned by SubmitUpdate and CompleteRound when no
// round is in progress.
var ErrNoOpenRound = errors.New("no open round")

// RoundInfo is what the coordinator broadcasts to clients at the start
// of a round: the round index and a private copy of the current global
// parameters to train from.
type RoundInfo struct {
	SessionID string
	RoundID   string
	Round     int
	Params    params.Parameters
}

// Status is a point-in-time snapshot of a training session.
type Status struct {
	SessionID         string
	RegisteredClients int
	Round             int
	RoundOpen         bool
	PendingUpdates    int
	Exhausted         bool
	Report            engine.Report
}

// Coordinator drives rounds for one training session. Like the engine
// it is not thread-safe; the registry it holds is, so clients may join
// concurrently with an open round (they participate from the next one).
type Coordinator struct {
	sessionID  string
	registry   *Registry
	engine     *engine.Engine
	global     params.Parameters
	minClients int

	roundOpen bool
	roundID   string
	pending   map[string]aggregate.ClientUpdate
}

// Options contains the options necessary to initialize a Coordinator.
type Options struct {
	// InitialParams is the starting global model. Required.
	InitialParams params.Parameters
	// Engine performs the private aggregation. Required.
	Engine *engine.Engine
	// MinClients is the smallest number of registered clients a round
	// may start with. Defaults to 2: a "federation" of one client makes
	// its update the aggregate.
	MinClients int
	// Registry holds the client roster. Defaults to a fresh empty one.
	Registry *Registry
}

// New returns a Coordinator for a new training session.
func New(opt *Options) (*Coordinator, error) {
	if opt == nil {
		opt = &Options{} // Prevents panicking due to a nil pointer dereference.
	}
	if opt.Engine == nil {
		return nil, fmt.Errorf("coord.New: an Engine is required")
	}
	if len(opt.InitialParams) == 0 {
		return nil, fmt.Errorf("coord.New: initial parameters are required")
	}
	if err := opt.InitialParams.Validate(); err != nil {
		return nil, fmt.Errorf("coord.New: initial parameters: %w", err)
	}
	minClients := opt.MinClients
	if minClients == 0 {
		minClients = 2
	}
	if minClients < 1 {
		return nil, fmt.Errorf("coord.New: MinClients is %d, must be at least 1", minClients)
	}
	registry := opt.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	c := &Coordinator{
		sessionID:  uuid.NewString(),
		registry:   registry,
		engine:     opt.Engine,
		global:     opt.InitialParams.Clone(),
		minClients: minClients,
	}
	log.Infof("coord: session %s created, min clients %d", c.sessionID, minClients)
	return c, nil
}

// SessionID returns the session's unique id.
func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// RegisterClient adds a client to the session's roster. numExamples is
// the client's local dataset size; under weighted aggregation it is the
// client's weight.
func (c *Coordinator) RegisterClient(id string, numExamples int) error {
	if err := c.registry.Register(id, numExamples); err != nil {
		return fmt.Errorf("RegisterClient: %w", err)
	}
	log.Infof("coord: session %s registered client %q with %d examples", c.sessionID, id, numExamples)
	return nil
}

// GlobalParams returns a copy of the current global parameters.
func (c *Coordinator) GlobalParams() params.Parameters {
	return c.global.Clone()
}

// StartRound opens a new round and returns what to broadcast to the
// clients. It fails with ErrTooFewClients when the roster is below the
// configured minimum; the refusal happens before any update is accepted
// and costs no budget.
func (c *Coordinator) StartRound() (*RoundInfo, error) {
	if c.roundOpen {
		return nil, fmt.Errorf("StartRound: round %d is still open", c.engine.Round())
	}
	if n := c.registry.Size(); n < c.minClients {
		return nil, fmt.Errorf("StartRound: %d clients registered, need %d: %w", n, c.minClients, ErrTooFewClients)
	}
	if c.engine.Exhausted() {
		return nil, fmt.Errorf("StartRound: session %s: %w", c.sessionID, budget.ErrExhausted)
	}
	c.roundOpen = true
	c.roundID = uuid.NewString()
	c.pending = make(map[string]aggregate.ClientUpdate)
	log.Infof("coord: session %s opened round %d (%s) for %d clients",
		c.sessionID, c.engine.Round(), c.roundID, c.registry.Size())
	return &RoundInfo{
		SessionID: c.sessionID,
		RoundID:   c.roundID,
		Round:     c.engine.Round(),
		Params:    c.global.Clone(),
	}, nil
}

// SubmitUpdate accepts one client's trained parameters for the open
// round. The client must be registered; a second submission from the
// same client replaces the first. The update's aggregation weight is
// the dataset size the client declared at registration.
func (c *Coordinator) SubmitUpdate(clientID string, p params.Parameters) error {
	if !c.roundOpen {
		return fmt.Errorf("SubmitUpdate: from client %q: %w", clientID, ErrNoOpenRound)
	}
	info, ok := c.registry.Lookup(clientID)
	if !ok {
		return fmt.Errorf("SubmitUpdate: client %q is not registered", clientID)
	}
	if err := c.global.CheckSchema(p); err != nil {
		return fmt.Errorf("SubmitUpdate: from client %q: %w", clientID, err)
	}
	if _, ok := c.pending[clientID]; ok {
		log.Warningf("coord: session %s client %q resubmitted for round %d, replacing the earlier update",
			c.sessionID, clientID, c.engine.Round())
	}
	c.pending[clientID] = aggregate.ClientUpdate{
		ClientID: clientID,
		Params:   p.Clone(),
		Weight:   float64(info.NumExamples),
	}
	return nil
}

// CompleteRound closes the open round, runs the privacy engine over the
// collected updates and installs the result as the new global
// parameters. The collected updates are discarded whether or not the
// round succeeds; a failed round is not retried with the same updates.
func (c *Coordinator) CompleteRound() (*engine.RoundResult, error) {
	if !c.roundOpen {
		return nil, fmt.Errorf("CompleteRound: %w", ErrNoOpenRound)
	}
	updates := make([]aggregate.ClientUpdate, 0, len(c.pending))
	for _, id := range c.pendingIDs() {
		updates = append(updates, c.pending[id])
	}
	c.roundOpen = false
	c.pending = nil
	result, err := c.engine.ProcessRound(updates)
	if err != nil {
		return nil, fmt.Errorf("CompleteRound: %w", err)
	}
	c.global = result.Aggregation.Params.Clone()
	log.Infof("coord: session %s completed round %d with %d updates", c.sessionID, result.Report.Round, len(updates))
	return result, nil
}

// AbortRound discards the open round and its collected updates. No
// budget is spent: spends happen only in CompleteRound.
func (c *Coordinator) AbortRound() error {
	if !c.roundOpen {
		return fmt.Errorf("AbortRound: %w", ErrNoOpenRound)
	}
	n := len(c.pending)
	c.roundOpen = false
	c.pending = nil
	log.Warningf("coord: session %s aborted round %d, dropping %d collected updates", c.sessionID, c.engine.Round(), n)
	return nil
}

// Status returns a snapshot of the session.
func (c *Coordinator) Status() Status {
	return Status{
		SessionID:         c.sessionID,
		RegisteredClients: c.registry.Size(),
		Round:             c.engine.Round(),
		RoundOpen:         c.roundOpen,
		PendingUpdates:    len(c.pending),
		Exhausted:         c.engine.Exhausted(),
		Report:            c.engine.Report(),
	}
}

// pendingIDs returns the ids of the collected updates in lexicographic
// order, so aggregation input order is deterministic.
func (c *Coordinator) pendingIDs() []string {
	ids := make([]string, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
