// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package coordinator

import (
	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/tapwise/streamflow/core/stream"
)

// Kind identifies the operation a trigger requests. Supersession is
// keyed by kind: accepting a trigger silences any in-flight task of the
// same kind, and kinds never interfere with each other.
type Kind string

const (
	// LoadStreams reloads the list of streams a tap exposes.
	LoadStreams Kind = "load-streams"

	// UpdateStream applies a partial update to one stream's
	// replication settings.
	UpdateStream Kind = "update-stream"
)

// Trigger is a single user request for an operation. Triggers are
// immutable once created.
type Trigger struct {
	// ID identifies the trigger in outcomes and logs.
	ID uuid.UUID

	// Kind is the operation requested.
	Kind Kind

	// TargetID and TapID name the connector the operation applies to.
	// Required for both kinds.
	TargetID string
	TapID    string

	// StreamID names the stream being edited. UpdateStream only.
	StreamID string

	// Params holds the replication-setting fields being changed.
	// UpdateStream only.
	Params stream.UpdateParams
}

// NewLoadStreams creates a trigger requesting a reload of the streams
// exposed by the given tap.
func NewLoadStreams(targetID, tapID string) Trigger {
	return Trigger{
		ID:       uuid.New(),
		Kind:     LoadStreams,
		TargetID: targetID,
		TapID:    tapID,
	}
}

// NewUpdateStream creates a trigger requesting an edit of a single
// stream's replication settings.
func NewUpdateStream(targetID, tapID, streamID string, params stream.UpdateParams) Trigger {
	return Trigger{
		ID:       uuid.New(),
		Kind:     UpdateStream,
		TargetID: targetID,
		TapID:    tapID,
		StreamID: streamID,
		Params:   params,
	}
}

// Validate checks the trigger carries the fields its kind requires.
func (t Trigger) Validate() error {
	if t.TargetID == "" {
		return errors.NotValidf("empty TargetID")
	}
	if t.TapID == "" {
		return errors.NotValidf("empty TapID")
	}
	switch t.Kind {
	case LoadStreams:
	case UpdateStream:
		if t.StreamID == "" {
			return errors.NotValidf("empty StreamID")
		}
		if err := t.Params.Validate(); err != nil {
			return errors.Trace(err)
		}
	default:
		return errors.NotValidf("trigger kind %q", t.Kind)
	}
	return nil
}

// Outcome is the terminal event for a trigger that ran to completion
// without being superseded. Exactly one of the result fields or Err is
// set, according to the trigger kind.
type Outcome struct {
	// TriggerID is the ID of the trigger this outcome resolves.
	TriggerID uuid.UUID

	// Kind is the operation kind of that trigger.
	Kind Kind

	// Streams holds the loaded descriptors for a successful LoadStreams.
	Streams []stream.Stream

	// Updated holds the new descriptor for a successful UpdateStream.
	Updated *stream.Stream

	// Err is set if the operation failed.
	Err error
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o.Err != nil
}
