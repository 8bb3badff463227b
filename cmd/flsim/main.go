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

// This is a command line utility which runs a local federated training
// simulation: a set of synthetic clients trains a toy model for a number
// of rounds while the privacy engine noises each round's aggregate and
// accounts for the budget spend.
// Usage example:
// flsim --clients=10 --rounds=5 --byzantine=2 --config=session.yaml
package main

import (
	"flag"
	"fmt"
	"math/rand"

	log "github.com/golang/glog"
	"github.com/google/federated-privacy/go/config"
	"github.com/google/federated-privacy/go/coord"
	"github.com/google/federated-privacy/go/engine"
	"github.com/google/federated-privacy/go/params"
)

var (
	configFile = flag.String("config", "", "Optional YAML session configuration. Unset fields keep their defaults.")
	numClients = flag.Int("clients", 10, "Number of simulated clients.")
	numRounds  = flag.Int("rounds", 5, "Number of training rounds to run.")
	dim        = flag.Int("dim", 16, "Model parameter vector length.")
	byzantine  = flag.Int("byzantine", 0, "Number of clients submitting corrupted updates.")
	seed       = flag.Int64("seed", 1, "Seed for the synthetic client data.")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			log.Exitf("Loading configuration: %v", err)
		}
	}
	if *numClients < 1 {
		log.Exitf("--clients is %d, must be at least 1", *numClients)
	}
	if *byzantine >= *numClients {
		log.Exitf("--byzantine is %d, must be fewer than the %d clients", *byzantine, *numClients)
	}

	opt, err := cfg.EngineOptions()
	if err != nil {
		log.Exitf("Translating configuration: %v", err)
	}
	e, err := engine.New(opt)
	if err != nil {
		log.Exitf("Creating engine: %v", err)
	}
	c, err := coord.New(&coord.Options{
		InitialParams: params.Parameters{"w": params.Tensor{Shape: []int{*dim}, Values: make([]float64, *dim)}},
		Engine:        e,
		MinClients:    cfg.Session.MinClients,
	})
	if err != nil {
		log.Exitf("Creating coordinator: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	for i := 0; i < *numClients; i++ {
		if err := c.RegisterClient(fmt.Sprintf("client-%02d", i), 50+rng.Intn(200)); err != nil {
			log.Exitf("Registering client: %v", err)
		}
	}

	log.Infof("flsim: session %s, %d clients (%d byzantine), %d rounds, strategy %q",
		c.SessionID(), *numClients, *byzantine, *numRounds, cfg.Aggregation.Strategy)

	for round := 0; round < *numRounds; round++ {
		info, err := c.StartRound()
		if err != nil {
			log.Exitf("Starting round %d: %v", round, err)
		}
		for i := 0; i < *numClients; i++ {
			update := trainClient(rng, info.Params, i < *byzantine)
			if err := c.SubmitUpdate(fmt.Sprintf("client-%02d", i), update); err != nil {
				log.Exitf("Submitting update: %v", err)
			}
		}
		result, err := c.CompleteRound()
		if err != nil {
			log.Exitf("Completing round %d: %v", round, err)
		}
		report := result.Report
		fmt.Printf("round %d: used %d, rejected %d, consumed %.4f, remaining %.4f, state %s\n",
			report.Round, report.ParticipantsUsed, report.ParticipantsRejected,
			report.Consumed, report.Remaining, report.State)
	}
}

// trainClient fabricates one client's round contribution: a small step
// toward an all-ones model with client-local jitter, or a wildly scaled
// vector for a corrupted client.
func trainClient(rng *rand.Rand, global params.Parameters, corrupted bool) params.Parameters {
	update := global.Clone()
	for _, name := range update.Names() {
		values := update[name].Values
		for i := range values {
			step := 0.1*(1-values[i]) + 0.02*rng.NormFloat64()
			if corrupted {
				step = 100 * rng.NormFloat64()
			}
			values[i] += step
		}
	}
	return update
}
