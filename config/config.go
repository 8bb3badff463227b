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

// Package config loads a training session's settings from YAML and
// translates them into the option structs the privacy packages take.
// Fields left unset in the file keep their documented defaults;
// validation of the values themselves stays with the packages that own
// them.
package config

import (
	"fmt"
	"os"

	"github.com/google/federated-privacy/go/aggregate"
	"github.com/google/federated-privacy/go/budget"
	"github.com/google/federated-privacy/go/engine"
	"github.com/google/federated-privacy/go/noise"
	"github.com/google/federated-privacy/go/secure"
	"gopkg.in/yaml.v3"
)

// Privacy configures the noise mechanism and the session budget.
type Privacy struct {
	Epsilon      float64 `yaml:"epsilon"`       // Defaults to 1.0.
	Delta        float64 `yaml:"delta"`         // Defaults to 1e-5.
	Sensitivity  float64 `yaml:"sensitivity"`   // Defaults to 1.0.
	Noise        string  `yaml:"noise"`         // "gaussian" or "laplace". Defaults to "gaussian".
	Adaptive     bool    `yaml:"adaptive"`      // Defaults to false.
	Policy       string  `yaml:"policy"`        // "strict" or "degrade". Defaults to "strict".
	DisableNoise bool    `yaml:"disable_noise"` // Calibration runs only. Defaults to false.
}

// Aggregation configures the combining strategy and its knobs. The
// ratio knobs apply only to the strategies that read them.
type Aggregation struct {
	Strategy           string  `yaml:"strategy"`            // Defaults to "mean".
	TrimRatio          float64 `yaml:"trim_ratio"`          // Defaults to 0.1.
	KeepFraction       float64 `yaml:"keep_fraction"`       // Defaults to 0.7.
	DetectionThreshold float64 `yaml:"detection_threshold"` // Defaults to 2.5.
}

// Session configures the coordinator.
type Session struct {
	MinClients int `yaml:"min_clients"` // Defaults to 2.
	// MaskKey, when set, enables the simulated masking channel with
	// this key. Defaults to off (passthrough).
	MaskKey   string  `yaml:"mask_key"`
	MaskScale float64 `yaml:"mask_scale"` // Defaults to 10.0 when masking is on.
}

// Config is the root of the YAML configuration file.
type Config struct {
	Privacy     Privacy     `yaml:"privacy"`
	Aggregation Aggregation `yaml:"aggregation"`
	Session     Session     `yaml:"session"`
}

// Default returns a Config with every field at its documented default.
func Default() *Config {
	return &Config{
		Privacy: Privacy{
			Epsilon:     1.0,
			Delta:       1e-5,
			Sensitivity: 1.0,
			Noise:       "gaussian",
			Policy:      "strict",
		},
		Aggregation: Aggregation{
			Strategy:           "mean",
			TrimRatio:          0.1,
			KeepFraction:       0.7,
			DetectionThreshold: 2.5,
		},
		Session: Session{
			MinClients: 2,
			MaskScale:  10.0,
		},
	}
}

// Parse unmarshals YAML over the defaults and resolves the named
// mechanism, strategy and policy. Values the option structs validate
// themselves (ε, δ, the ratio knobs) are checked at construction, not
// here.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}
	if _, err := noise.ParseKind(c.Privacy.Noise); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if _, err := budget.ParsePolicy(c.Privacy.Policy); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if _, err := aggregate.ParseStrategy(c.Aggregation.Strategy); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %s: %w", path, err)
	}
	return Parse(data)
}

// EngineOptions translates the configuration into engine options.
func (c *Config) EngineOptions() (*engine.Options, error) {
	kind, err := noise.ParseKind(c.Privacy.Noise)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	policy, err := budget.ParsePolicy(c.Privacy.Policy)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	strategy, err := aggregate.ParseStrategy(c.Aggregation.Strategy)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	opt := &engine.Options{
		Epsilon:      c.Privacy.Epsilon,
		Delta:        c.Privacy.Delta,
		Sensitivity:  c.Privacy.Sensitivity,
		NoiseKind:    kind,
		Adaptive:     c.Privacy.Adaptive,
		DisableNoise: c.Privacy.DisableNoise,
		Policy:       policy,
		Aggregation: &aggregate.AggregatorOptions{
			Strategy:           strategy,
			TrimRatio:          c.Aggregation.TrimRatio,
			KeepFraction:       c.Aggregation.KeepFraction,
			DetectionThreshold: c.Aggregation.DetectionThreshold,
		},
	}
	if c.Session.MaskKey != "" {
		channel, err := secure.Masking([]byte(c.Session.MaskKey), c.Session.MaskScale)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		opt.Channel = channel
	}
	return opt, nil
}
