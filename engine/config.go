// Copyright 2024 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"github.com/stockparfait/errors"
	"github.com/stockparfait/stochastic/message"
	"github.com/stockparfait/stochastic/mixture"
)

// BayesConfig configures the Bayesian-network process: a Metropolis-
// Hastings jump kernel plus Dirichlet conditional tables over the parent
// sets.
type BayesConfig struct {
	States int     `json:"states" required:"true"`
	Net    [][]int `json:"net"`                   // parent sets per node
	Alpha  float64 `json:"alpha" default:"1.0"`   // Dirichlet prior count
	P      interface{} `json:"p"`                 // proposal matrix: dense rows or upper-triangular list
}

var _ message.Message = &BayesConfig{}

func (c *BayesConfig) InitMessage(js interface{}) error {
	if err := message.Init(c, js); err != nil {
		return errors.Annotate(err, "failed to init BayesConfig")
	}
	if c.States < 1 {
		return errors.Reason("states=%d must be >= 1", c.States)
	}
	return nil
}

// GaussConfig configures the Karhunen-Loeve intensity generator.
type GaussConfig struct {
	Values  []float64   `json:"values" required:"true"`  // eigenvalues
	Vectors [][]float64 `json:"vectors" required:"true"` // eigenvectors
	Ref     float64     `json:"ref" default:"1.0"`       // reference eigenvalue
	Dim     int         `json:"dim" required:"true"`     // temporal dimension
	Mean    float64     `json:"mean" required:"true"`    // expected events
}

var _ message.Message = &GaussConfig{}

func (c *GaussConfig) InitMessage(js interface{}) error {
	if err := message.Init(c, js); err != nil {
		return errors.Annotate(err, "failed to init GaussConfig")
	}
	if len(c.Vectors) != len(c.Values) {
		return errors.Reason("%d eigenvectors for %d eigenvalues",
			len(c.Vectors), len(c.Values))
	}
	for i, v := range c.Vectors {
		if len(v) < c.Dim {
			return errors.Reason("eigenvector %d has %d elements, dim=%d",
				i, len(v), c.Dim)
		}
	}
	if c.Ref == 0 {
		return errors.Reason("ref eigenvalue must be non-zero")
	}
	return nil
}

// WienerConfig configures the Brownian walk.
type WienerConfig struct {
	M float64 `json:"m" default:"1.0"` // walk steps per unit time
}

var _ message.Message = &WienerConfig{}

func (c *WienerConfig) InitMessage(js interface{}) error {
	if err := message.Init(c, js); err != nil {
		return errors.Annotate(err, "failed to init WienerConfig")
	}
	if c.M <= 0 {
		return errors.Reason("m=%f must be positive", c.M)
	}
	return nil
}

// OrnsteinConfig configures the Ornstein-Uhlenbeck walk.
type OrnsteinConfig struct {
	Theta float64 `json:"theta" default:"1.0"`
	Sigma float64 `json:"sigma" default:"1.0"`
}

var _ message.Message = &OrnsteinConfig{}

func (c *OrnsteinConfig) InitMessage(js interface{}) error {
	if err := message.Init(c, js); err != nil {
		return errors.Annotate(err, "failed to init OrnsteinConfig")
	}
	if c.Theta <= 0 || c.Sigma <= 0 {
		return errors.Reason("theta=%f and sigma=%f must be positive",
			c.Theta, c.Sigma)
	}
	return nil
}

// EmissionConfig configures the per-state observation mixing: either a grid
// spec (dims + weights) or explicit moments (mu + sigma).
type EmissionConfig struct {
	Dims    []int         `json:"dims"`
	Weights []float64     `json:"weights"`
	Mu      [][]float64   `json:"mu"`
	Sigma   [][][]float64 `json:"sigma"`
}

var _ message.Message = &EmissionConfig{}

func (c *EmissionConfig) InitMessage(js interface{}) error {
	if err := message.Init(c, js); err != nil {
		return errors.Annotate(err, "failed to init EmissionConfig")
	}
	if len(c.Mu) > 0 {
		if len(c.Sigma) != len(c.Mu) {
			return errors.Reason("%d sigma matrices for %d mu vectors",
				len(c.Sigma), len(c.Mu))
		}
		return nil
	}
	if len(c.Dims) == 0 {
		return errors.Reason("emission requires either dims or mu+sigma")
	}
	if len(c.Weights) != len(c.Dims) {
		return errors.Reason("%d weights for %d grid dimensions",
			len(c.Weights), len(c.Dims))
	}
	return nil
}

// Config is the full engine configuration. Exactly one process selector
// must be set: alpha, p, markov, bayes, gillespie, gauss, wiener or
// ornstein. The non-JSON fields are injected programmatically.
type Config struct {
	N      int     `json:"N" default:"1"`     // ensemble size
	Steps  int     `json:"steps" default:"100"`
	DT     float64 `json:"dt" default:"1.0"`  // time increment per step
	CTMode bool    `json:"ctmode"`            // continuous-time jump holding
	Batch  int     `json:"batch"`             // batch event period; 0 = off
	Seed   uint64  `json:"seed"`              // 0 = time-based

	// Symbols: a state count, a label -> index map, or a label array.
	Symbols interface{} `json:"symbols"`
	Keys    Keys        `json:"keys"`

	Alpha     []float64       `json:"alpha"`  // jump-rate amplitudes
	P         []float64       `json:"p"`      // upper-triangular probabilities
	Markov    interface{}     `json:"markov"` // dense rows or sparse dict
	Bayes     *BayesConfig    `json:"bayes"`
	Gillespie int             `json:"gillespie"` // number of states
	Gauss     *GaussConfig    `json:"gauss"`
	Wiener    *WienerConfig   `json:"wiener"`
	Ornstein  *OrnsteinConfig `json:"ornstein"`

	EmP   *EmissionConfig   `json:"emP"`
	Learn bool              `json:"learn"`
	EM    *mixture.EMConfig `json:"em"`

	Filter Filter `json:"-"`
	Sink   Sink   `json:"-"`
}

var _ message.Message = &Config{}

func (c *Config) InitMessage(js interface{}) error {
	if err := message.Init(c, js); err != nil {
		return errors.Annotate(err, "failed to init Config")
	}
	if c.N < 1 {
		return errors.Reason("N=%d must be >= 1", c.N)
	}
	if c.Steps < 0 {
		return errors.Reason("steps=%d must be >= 0", c.Steps)
	}
	if c.DT <= 0 {
		return errors.Reason("dt=%f must be positive", c.DT)
	}
	if c.Batch < 0 {
		return errors.Reason("batch=%d must be >= 0", c.Batch)
	}
	selectors := 0
	if len(c.Alpha) > 0 {
		selectors++
	}
	if len(c.P) > 0 {
		selectors++
	}
	if c.Markov != nil {
		selectors++
	}
	if c.Bayes != nil {
		selectors++
	}
	if c.Gillespie > 0 {
		selectors++
	}
	if c.Gauss != nil {
		selectors++
	}
	if c.Wiener != nil {
		selectors++
	}
	if c.Ornstein != nil {
		selectors++
	}
	if selectors != 1 {
		return errors.Reason("exactly one process selector required, got %d",
			selectors)
	}
	if (c.Wiener != nil || c.Ornstein != nil || c.Gauss != nil) && c.Symbols != nil {
		// Stateless kernels have no discrete state space to label.
		return errors.Reason("symbols cannot be used with a stateless process")
	}
	return nil
}

// Stateless reports whether the selected process has no discrete states.
func (c *Config) Stateless() bool {
	return c.Gauss != nil || c.Wiener != nil || c.Ornstein != nil
}
