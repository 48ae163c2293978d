// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package coordinator implements the effect coordinator: a worker that
// turns triggers into replication-config API calls under a latest-wins
// discipline. For each trigger kind at most one task is current; when a
// new trigger of a kind is accepted, any in-flight task of that kind is
// permanently silenced, whichever resolves first over the wire. The
// network request of a silenced task is not aborted, only its result is
// kept from observers.
package coordinator

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"

	"github.com/tapwise/streamflow/core/stream"
)

// Facade abstracts the replication-config API client.
type Facade interface {
	// ListStreams returns the streams the given tap exposes.
	ListStreams(ctx context.Context, targetID, tapID string) ([]stream.Stream, error)

	// UpdateStream applies a partial update to one stream and returns
	// the updated descriptor.
	UpdateStream(ctx context.Context, targetID, tapID, streamID string, params stream.UpdateParams) (stream.Stream, error)
}

// Config holds the dependencies for the coordinator worker.
type Config struct {
	// Facade performs the actual API calls.
	Facade Facade

	// Triggers delivers the user's requests, newest last.
	Triggers <-chan Trigger

	// Outcomes receives the terminal event for every trigger that was
	// not superseded.
	Outcomes chan<- Outcome

	// Logger for trace output.
	Logger loggo.Logger
}

// Validate checks the config is complete.
func (config Config) Validate() error {
	if config.Facade == nil {
		return errors.NotValidf("nil Facade")
	}
	if config.Triggers == nil {
		return errors.NotValidf("nil Triggers")
	}
	if config.Outcomes == nil {
		return errors.NotValidf("nil Outcomes")
	}
	return nil
}

// result carries a finished task's outcome back to the loop, stamped
// with the generation the task was started under.
type result struct {
	kind       Kind
	generation uint64
	outcome    Outcome
}

// Worker is the effect coordinator.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config
}

// NewWorker returns a coordinator running the latest-wins scheduling
// loop until killed.
func NewWorker(config Config) (worker.Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Worker{config: config}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

// loop owns all scheduling state. Each kind's current generation is
// bumped when a trigger is accepted; a completing task may emit its
// outcome only while it still holds the current generation. Only this
// goroutine touches the generation map, so no locking is needed.
func (w *Worker) loop() error {
	ctx, cancel := w.scopedContext()
	defer cancel()

	generations := make(map[Kind]uint64)
	results := make(chan result)
	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()

		case trigger := <-w.config.Triggers:
			generations[trigger.Kind]++
			w.config.Logger.Debugf("accepted %s trigger %s (generation %d)",
				trigger.Kind, trigger.ID, generations[trigger.Kind])
			go w.run(ctx, trigger, generations[trigger.Kind], results)

		case res := <-results:
			if res.generation != generations[res.kind] {
				w.config.Logger.Tracef("dropping superseded %s outcome for trigger %s (generation %d, current %d)",
					res.kind, res.outcome.TriggerID, res.generation, generations[res.kind])
				continue
			}
			select {
			case w.config.Outcomes <- res.outcome:
			case <-w.catacomb.Dying():
				return w.catacomb.ErrDying()
			}
		}
	}
}

// scopedContext returns a context that is cancelled when the worker
// starts dying, so in-flight requests do not outlive the worker.
func (w *Worker) scopedContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		select {
		case <-w.catacomb.Dying():
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// run performs one task. An invalid trigger still claims its
// generation; it resolves immediately into a failure outcome without a
// network call.
func (w *Worker) run(ctx context.Context, trigger Trigger, generation uint64, results chan<- result) {
	outcome := Outcome{
		TriggerID: trigger.ID,
		Kind:      trigger.Kind,
	}
	if err := trigger.Validate(); err != nil {
		outcome.Err = errors.Trace(err)
	} else {
		switch trigger.Kind {
		case LoadStreams:
			streams, err := w.config.Facade.ListStreams(ctx, trigger.TargetID, trigger.TapID)
			if err != nil {
				outcome.Err = errors.Trace(err)
			} else {
				outcome.Streams = streams
			}
		case UpdateStream:
			updated, err := w.config.Facade.UpdateStream(ctx, trigger.TargetID, trigger.TapID, trigger.StreamID, trigger.Params)
			if err != nil {
				outcome.Err = errors.Trace(err)
			} else {
				outcome.Updated = &updated
			}
		}
	}
	select {
	case results <- result{kind: trigger.Kind, generation: generation, outcome: outcome}:
	case <-w.catacomb.Dying():
	}
}
