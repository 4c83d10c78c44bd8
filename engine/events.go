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

// EventKind is an enum of the event kinds the engine emits.
type EventKind uint8

const (
	ConfigEvent EventKind = iota
	StepEvent
	JumpEvent
	BatchEvent
	EndEvent
	ErrorEvent
)

func (k EventKind) String() string {
	switch k {
	case ConfigEvent:
		return "config"
	case StepEvent:
		return "step"
	case JumpEvent:
		return "jump"
	case BatchEvent:
		return "batch"
	case EndEvent:
		return "end"
	case ErrorEvent:
		return "error"
	}
	return "unknown"
}

// Event is one record of the engine's outgoing stream. All events emitted
// within a single step carry the same T and At; steps are strictly monotone
// in both.
type Event struct {
	Kind   EventKind
	T      float64 // simulation time
	At     int     // step index
	Member int     // jump: ensemble index
	State  int     // jump: destination state
	Hold   float64 // jump: drawn holding time (continuous-time mode)
	Obs    []float64
	Gamma  float64 // step: autocorrelation value
	Walk   float64 // step: current stateless value of member 0
	Batch  *BatchStats
	Stats  *RunStats
	Err    string
}

// BatchStats is the periodic report attached to a batch event.
type BatchStats struct {
	CountFreq []int               // count-frequency histogram
	CountProb []float64           // histogram normalized by ensemble size
	RelError  float64             // relative error of the P[0][0] MLE
	EMEvents  []mixture.Component // emission mixture fitted so far
	TrProbs   [][]float64         // transition-probability MLE
	StatCorr  float64             // current correlation statistic
}

// RunStats is the final statistics block attached to the end event.
type RunStats struct {
	HoldingTimes       [][]float64 // holding-time MLE per (from, to)
	RelError           float64
	CountFreq          []int
	EMProbs            []mixture.Component
	TrProbs            [][]float64
	TrCounts           [][]int
	MeanCount          float64 // Kbar
	CoherenceTime      float64 // Tc
	CoherenceIntervals float64 // M = T / Tc
	Corr0              float64 // gamma[0]
	MeanIntensity      float64 // Kbar / T
	Degeneracy         float64 // delta = Kbar / M
	SNR                float64
}

// Filter decides whether an outgoing event reaches the sink. A nil Filter
// accepts everything.
type Filter func(ev *Event) bool

// Sink consumes accepted events, e.g. a stream writer. The engine retains
// no references to pushed events.
type Sink interface {
	Push(ev Event) error
}

// Keys maps the field names of externally supplied learning events.
type Keys struct {
	N string `json:"n" default:"n"` // ensemble index
	U string `json:"u" default:"u"` // state symbol or value
	K string `json:"k" default:"k"` // accumulated count
	X string `json:"x" default:"x"`
	Y string `json:"y" default:"y"`
	Z string `json:"z" default:"z"`
	T string `json:"t" default:"t"` // event time
}

var _ message.Message = &Keys{}

func (k *Keys) InitMessage(js interface{}) error {
	return errors.Annotate(message.Init(k, js), "failed to init Keys")
}

// Observation is one externally supplied event consumed in learning mode.
type Observation struct {
	Member int
	Symbol string  // categorical state label; "" when hidden
	Value  float64 // stateless increment
	X      float64
	Y      float64
	Z      float64
	T      float64
}

// ParseObservations converts a raw JSON array of event objects into
// observations using the configured field names.
func ParseObservations(js interface{}, keys *Keys) ([]Observation, error) {
	arr, ok := js.([]interface{})
	if !ok {
		return nil, errors.Reason("events are not an array: %v", js)
	}
	res := make([]Observation, len(arr))
	for i, jv := range arr {
		m, ok := jv.(map[string]interface{})
		if !ok {
			return nil, errors.Reason("event %d is not an object: %v", i, jv)
		}
		var obs Observation
		if v, ok := m[keys.N].(float64); ok {
			obs.Member = int(v)
		}
		switch v := m[keys.U].(type) {
		case string:
			obs.Symbol = v
		case float64:
			obs.Value = v
		}
		if v, ok := m[keys.X].(float64); ok {
			obs.X = v
		}
		if v, ok := m[keys.Y].(float64); ok {
			obs.Y = v
		}
		if v, ok := m[keys.Z].(float64); ok {
			obs.Z = v
		}
		if v, ok := m[keys.T].(float64); ok {
			obs.T = v
		}
		res[i] = obs
	}
	return res, nil
}
