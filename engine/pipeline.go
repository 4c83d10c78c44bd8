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
	"github.com/stockparfait/iterator"
	"github.com/stockparfait/logging"
)

// Run drives the generative loop synchronously: a config event, one step at
// a time until the configured number of steps, then the end event. It
// returns the complete in-memory event list.
func (e *Engine) Run() ([]Event, error) {
	if e.config.Learn {
		return nil, errors.Reason("Run is for generative mode; see Supervisor")
	}
	if e.finished {
		return nil, errors.Reason("engine has already finished")
	}
	e.record(Event{Kind: ConfigEvent, T: e.t, At: e.s})
	for e.s < e.config.Steps && !e.halt {
		e.advance()
	}
	e.finish()
	return e.store, nil
}

// Pipe is the pull-driven event stream of a generative run: each Next call
// delivers the next pending event, running one engine step at a time on
// demand. It implements iterator.Iterator[Event].
type Pipe struct {
	e *Engine
}

var _ iterator.Iterator[Event] = &Pipe{}

// Events creates the asynchronous pipe. The config event is pending
// immediately; everything else is produced lazily by Next.
func (e *Engine) Events() *Pipe {
	e.record(Event{Kind: ConfigEvent, T: e.t, At: e.s})
	return &Pipe{e: e}
}

// Next returns the next event of the run. Between pulls the engine is
// suspended; within one step all work completes without yielding.
func (p *Pipe) Next() (Event, bool) {
	e := p.e
	for len(e.out) == 0 {
		if e.finished {
			return Event{}, false
		}
		if e.s >= e.config.Steps || e.halt {
			e.finish()
			continue
		}
		e.advance()
	}
	ev := e.out[0]
	e.out = e.out[1:]
	return ev, true
}

// Supervisor is the learning-mode callback installed by the driver: an
// external event feeder invokes it with successive batches of time-ordered
// events, and with nil to signal the end of the stream.
type Supervisor func(batch []Observation)

// Supervisor switches the engine into its learning loop and returns the
// callback for the event feeder. When the feeder passes nil, or after
// Halt, the engine emits the end event with the final estimates.
func (e *Engine) Supervisor() Supervisor {
	e.record(Event{Kind: ConfigEvent, T: e.t, At: e.s})
	return func(batch []Observation) {
		if e.finished {
			return
		}
		if batch == nil || e.halt {
			e.finish()
			return
		}
		if err := e.learnBatch(batch); err != nil {
			logging.Errorf(e.ctx, "learning step failed: %s", err.Error())
			e.record(Event{Kind: ErrorEvent, T: e.t, At: e.s, Err: err.Error()})
			e.finish()
		}
	}
}

// Halt signals the supervisor loop (or a running pipe) to terminate. The
// next delivery point emits the end event.
func (e *Engine) Halt() { e.halt = true }

// Store returns all events recorded so far.
func (e *Engine) Store() []Event { return e.store }
