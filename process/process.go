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

// Package process implements the per-variant state-transition kernels. A
// categorical kernel draws the next state of one ensemble member; a
// stateless kernel produces the member's next value. Every kernel owns its
// random source and supports Seed for deterministic tests.
package process

import (
	"time"

	"golang.org/x/exp/rand"
)

// Kernel draws the next state of a member currently in state `from` at
// time t. Implementations are pure in the engine state: they only mutate
// their own internals.
type Kernel interface {
	Next(from int, t float64) int
	Seed(uint64)
}

// Intensity produces the next value of a stateless member n at step s and
// time t.
type Intensity interface {
	Value(n, s int, t float64) float64
	Seed(uint64)
}

func newRand() *rand.Rand {
	return rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
}

// drawRow samples the smallest index j with cum[j] > u, clamped to the last
// index (inverse-CDF sampling).
func drawRow(cum []float64, u float64) int {
	for j, c := range cum {
		if c > u {
			return j
		}
	}
	return len(cum) - 1
}
