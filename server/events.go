// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package server

import (
	"github.com/tapwise/streamflow/core/stream"
	"github.com/tapwise/streamflow/worker/coordinator"
)

// Event types pushed over the websocket feed, one per terminal outcome
// the coordinator can emit.
const (
	EventStreamsLoaded    = "streams-loaded"
	EventStreamsLoadError = "streams-load-error"
	EventUpdateDone       = "update-done"
	EventUpdateError      = "update-error"
)

// Event is the wire form of a coordinator outcome as seen by connected
// UI clients.
type Event struct {
	Type      string          `json:"type"`
	TriggerID string          `json:"trigger_id"`
	Streams   []stream.Stream `json:"streams,omitempty"`
	Stream    *stream.Stream  `json:"stream,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func makeEvent(outcome coordinator.Outcome) Event {
	event := Event{TriggerID: outcome.TriggerID.String()}
	switch outcome.Kind {
	case coordinator.LoadStreams:
		if outcome.Failed() {
			event.Type = EventStreamsLoadError
			event.Error = outcome.Err.Error()
		} else {
			event.Type = EventStreamsLoaded
			event.Streams = outcome.Streams
		}
	case coordinator.UpdateStream:
		if outcome.Failed() {
			event.Type = EventUpdateError
			event.Error = outcome.Err.Error()
		} else {
			event.Type = EventUpdateDone
			event.Stream = outcome.Updated
		}
	}
	return event
}
