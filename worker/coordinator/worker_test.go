// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package coordinator_test

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/tapwise/streamflow/core/stream"
	"github.com/tapwise/streamflow/worker/coordinator"
)

const (
	longWait  = 10 * time.Second
	shortWait = 50 * time.Millisecond
)

var errBoom = errors.New("boom")

type WorkerSuite struct {
	testing.IsolationSuite

	facade   *fakeFacade
	triggers chan coordinator.Trigger
	outcomes chan coordinator.Outcome
}

var _ = gc.Suite(&WorkerSuite{})

func (s *WorkerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.facade = &fakeFacade{calls: make(chan facadeCall, 10)}
	s.triggers = make(chan coordinator.Trigger)
	s.outcomes = make(chan coordinator.Outcome)
}

func (s *WorkerSuite) startWorker(c *gc.C) {
	w, err := coordinator.NewWorker(coordinator.Config{
		Facade:   s.facade,
		Triggers: s.triggers,
		Outcomes: s.outcomes,
		Logger:   loggo.GetLogger("test.coordinator"),
	})
	c.Assert(err, jc.ErrorIsNil)
	s.AddCleanup(func(c *gc.C) {
		workertest.CleanKill(c, w)
	})
}

func (s *WorkerSuite) send(c *gc.C, trigger coordinator.Trigger) {
	select {
	case s.triggers <- trigger:
	case <-time.After(longWait):
		c.Fatalf("timed out sending %s trigger", trigger.Kind)
	}
}

func (s *WorkerSuite) expectCall(c *gc.C) facadeCall {
	select {
	case call := <-s.facade.calls:
		return call
	case <-time.After(longWait):
		c.Fatalf("timed out waiting for facade call")
	}
	panic("unreachable")
}

func (s *WorkerSuite) expectOutcome(c *gc.C) coordinator.Outcome {
	select {
	case outcome := <-s.outcomes:
		return outcome
	case <-time.After(longWait):
		c.Fatalf("timed out waiting for outcome")
	}
	panic("unreachable")
}

func (s *WorkerSuite) expectNoOutcome(c *gc.C) {
	select {
	case outcome := <-s.outcomes:
		c.Fatalf("unexpected %s outcome for trigger %s", outcome.Kind, outcome.TriggerID)
	case <-time.After(shortWait):
	}
}

func (s *WorkerSuite) expectNoCall(c *gc.C) {
	select {
	case call := <-s.facade.calls:
		c.Fatalf("unexpected %s facade call", call.kind)
	case <-time.After(shortWait):
	}
}

func (s *WorkerSuite) TestConfigValidate(c *gc.C) {
	_, err := coordinator.NewWorker(coordinator.Config{
		Triggers: s.triggers,
		Outcomes: s.outcomes,
	})
	c.Check(err, gc.ErrorMatches, "nil Facade not valid")

	_, err = coordinator.NewWorker(coordinator.Config{
		Facade:   s.facade,
		Outcomes: s.outcomes,
	})
	c.Check(err, gc.ErrorMatches, "nil Triggers not valid")

	_, err = coordinator.NewWorker(coordinator.Config{
		Facade:   s.facade,
		Triggers: s.triggers,
	})
	c.Check(err, gc.ErrorMatches, "nil Outcomes not valid")
}

func (s *WorkerSuite) TestCleanStartStop(c *gc.C) {
	s.startWorker(c)
}

func (s *WorkerSuite) TestLoadStreams(c *gc.C) {
	s.startWorker(c)

	trigger := coordinator.NewLoadStreams("t1", "tp1")
	s.send(c, trigger)

	call := s.expectCall(c)
	c.Check(call.kind, gc.Equals, coordinator.LoadStreams)
	c.Check(call.targetID, gc.Equals, "t1")
	c.Check(call.tapID, gc.Equals, "tp1")
	call.resolve(facadeReply{streams: []stream.Stream{{TableName: "address"}}})

	outcome := s.expectOutcome(c)
	c.Check(outcome.TriggerID, gc.Equals, trigger.ID)
	c.Check(outcome.Kind, gc.Equals, coordinator.LoadStreams)
	c.Check(outcome.Failed(), jc.IsFalse)
	c.Check(outcome.Streams, gc.DeepEquals, []stream.Stream{{TableName: "address"}})
}

func (s *WorkerSuite) TestLoadStreamsError(c *gc.C) {
	s.startWorker(c)

	s.send(c, coordinator.NewLoadStreams("t1", "tp1"))
	s.expectCall(c).resolve(facadeReply{err: errBoom})

	outcome := s.expectOutcome(c)
	c.Check(outcome.Failed(), jc.IsTrue)
	c.Check(outcome.Err, gc.ErrorMatches, "boom")
	c.Check(outcome.Streams, gc.IsNil)
}

func (s *WorkerSuite) TestLatestWins(c *gc.C) {
	s.startWorker(c)

	s.send(c, coordinator.NewLoadStreams("t1", "tp1"))
	first := s.expectCall(c)

	second := coordinator.NewLoadStreams("t1", "tp1")
	s.send(c, second)
	secondCall := s.expectCall(c)

	// The newer call resolves first; its outcome is the only one
	// observable.
	secondCall.resolve(facadeReply{streams: []stream.Stream{{TableName: "b"}}})
	outcome := s.expectOutcome(c)
	c.Check(outcome.TriggerID, gc.Equals, second.ID)
	c.Check(outcome.Streams, gc.DeepEquals, []stream.Stream{{TableName: "b"}})

	// The older call resolving afterwards produces nothing.
	first.resolve(facadeReply{streams: []stream.Stream{{TableName: "a"}}})
	s.expectNoOutcome(c)
}

func (s *WorkerSuite) TestLatestWinsWhenOlderResolvesFirst(c *gc.C) {
	s.startWorker(c)

	s.send(c, coordinator.NewLoadStreams("t1", "tp1"))
	first := s.expectCall(c)

	second := coordinator.NewLoadStreams("t1", "tp1")
	s.send(c, second)
	secondCall := s.expectCall(c)

	// The older call wins the race over the wire but was already
	// superseded when the second trigger was accepted.
	first.resolve(facadeReply{streams: []stream.Stream{{TableName: "a"}}})
	s.expectNoOutcome(c)

	secondCall.resolve(facadeReply{streams: []stream.Stream{{TableName: "b"}}})
	outcome := s.expectOutcome(c)
	c.Check(outcome.TriggerID, gc.Equals, second.ID)
	c.Check(outcome.Streams, gc.DeepEquals, []stream.Stream{{TableName: "b"}})
}

func (s *WorkerSuite) TestSupersededFailureIsSilenced(c *gc.C) {
	s.startWorker(c)

	s.send(c, coordinator.NewLoadStreams("t1", "tp1"))
	first := s.expectCall(c)

	second := coordinator.NewLoadStreams("t1", "tp1")
	s.send(c, second)
	secondCall := s.expectCall(c)

	first.resolve(facadeReply{err: errBoom})
	s.expectNoOutcome(c)

	secondCall.resolve(facadeReply{streams: []stream.Stream{}})
	outcome := s.expectOutcome(c)
	c.Check(outcome.TriggerID, gc.Equals, second.ID)
	c.Check(outcome.Failed(), jc.IsFalse)
}

func (s *WorkerSuite) TestUpdateStream(c *gc.C) {
	s.startWorker(c)

	trigger := coordinator.NewUpdateStream("t1", "tp1", "s1", stream.UpdateParams{
		"replication_method": "INCREMENTAL",
	})
	s.send(c, trigger)

	call := s.expectCall(c)
	c.Check(call.kind, gc.Equals, coordinator.UpdateStream)
	c.Check(call.streamID, gc.Equals, "s1")
	c.Check(call.params, gc.DeepEquals, stream.UpdateParams{"replication_method": "INCREMENTAL"})
	call.resolve(facadeReply{updated: stream.Stream{ID: "s1", ReplicationMethod: stream.Incremental}})

	outcome := s.expectOutcome(c)
	c.Check(outcome.TriggerID, gc.Equals, trigger.ID)
	c.Check(outcome.Kind, gc.Equals, coordinator.UpdateStream)
	c.Check(outcome.Updated, gc.DeepEquals, &stream.Stream{ID: "s1", ReplicationMethod: stream.Incremental})
}

func (s *WorkerSuite) TestUpdateStreamError(c *gc.C) {
	s.startWorker(c)

	s.send(c, coordinator.NewUpdateStream("t1", "tp1", "s1", stream.UpdateParams{
		"replication_method": "INCREMENTAL",
	}))
	s.expectCall(c).resolve(facadeReply{err: errors.New("server returned status 500")})

	outcome := s.expectOutcome(c)
	c.Check(outcome.Failed(), jc.IsTrue)
	c.Check(outcome.Err, gc.ErrorMatches, "server returned status 500")
	c.Check(outcome.Updated, gc.IsNil)
}

func (s *WorkerSuite) TestKindsAreIndependent(c *gc.C) {
	s.startWorker(c)

	load := coordinator.NewLoadStreams("t1", "tp1")
	s.send(c, load)
	loadCall := s.expectCall(c)

	update := coordinator.NewUpdateStream("t1", "tp1", "s1", stream.UpdateParams{"selected": true})
	s.send(c, update)
	updateCall := s.expectCall(c)

	// The update resolving does not supersede the in-flight load.
	updateCall.resolve(facadeReply{updated: stream.Stream{ID: "s1"}})
	outcome := s.expectOutcome(c)
	c.Check(outcome.TriggerID, gc.Equals, update.ID)

	loadCall.resolve(facadeReply{streams: []stream.Stream{{TableName: "address"}}})
	outcome = s.expectOutcome(c)
	c.Check(outcome.TriggerID, gc.Equals, load.ID)
}

func (s *WorkerSuite) TestUpdateSupersededAcrossStreams(c *gc.C) {
	// Supersession is keyed by trigger kind, not by stream: a newer
	// edit of s2 silences an in-flight edit of s1.
	s.startWorker(c)

	s.send(c, coordinator.NewUpdateStream("t1", "tp1", "s1", stream.UpdateParams{"selected": true}))
	first := s.expectCall(c)

	second := coordinator.NewUpdateStream("t1", "tp1", "s2", stream.UpdateParams{"selected": false})
	s.send(c, second)
	secondCall := s.expectCall(c)

	first.resolve(facadeReply{updated: stream.Stream{ID: "s1"}})
	s.expectNoOutcome(c)

	secondCall.resolve(facadeReply{updated: stream.Stream{ID: "s2"}})
	outcome := s.expectOutcome(c)
	c.Check(outcome.TriggerID, gc.Equals, second.ID)
}

func (s *WorkerSuite) TestInvalidTriggerFailsWithoutCall(c *gc.C) {
	s.startWorker(c)

	trigger := coordinator.NewLoadStreams("t1", "")
	s.send(c, trigger)

	outcome := s.expectOutcome(c)
	c.Check(outcome.TriggerID, gc.Equals, trigger.ID)
	c.Check(outcome.Err, gc.ErrorMatches, "empty TapID not valid")
	s.expectNoCall(c)
}

func (s *WorkerSuite) TestInvalidTriggerSupersedesInFlight(c *gc.C) {
	// An invalid trigger is still the user's most recent request of
	// its kind, so it claims the generation.
	s.startWorker(c)

	s.send(c, coordinator.NewLoadStreams("t1", "tp1"))
	first := s.expectCall(c)

	invalid := coordinator.NewLoadStreams("t1", "")
	s.send(c, invalid)

	outcome := s.expectOutcome(c)
	c.Check(outcome.TriggerID, gc.Equals, invalid.ID)
	c.Check(outcome.Failed(), jc.IsTrue)

	first.resolve(facadeReply{streams: []stream.Stream{{TableName: "a"}}})
	s.expectNoOutcome(c)
}

func (s *WorkerSuite) TestInFlightCallEndsOnKill(c *gc.C) {
	w, err := coordinator.NewWorker(coordinator.Config{
		Facade:   s.facade,
		Triggers: s.triggers,
		Outcomes: s.outcomes,
		Logger:   loggo.GetLogger("test.coordinator"),
	})
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.DirtyKill(c, w)

	s.send(c, coordinator.NewLoadStreams("t1", "tp1"))
	call := s.expectCall(c)

	// Killing the worker cancels the task context; the facade call
	// unblocks without the test resolving it.
	workertest.CleanKill(c, w)
	select {
	case <-call.ctx.Done():
	case <-time.After(longWait):
		c.Fatalf("facade call context not cancelled")
	}
}

// fakeFacade records each call and blocks it until the test resolves
// the reply, so tests control wire resolution order exactly.
type fakeFacade struct {
	calls chan facadeCall
}

type facadeReply struct {
	streams []stream.Stream
	updated stream.Stream
	err     error
}

type facadeCall struct {
	ctx      context.Context
	kind     coordinator.Kind
	targetID string
	tapID    string
	streamID string
	params   stream.UpdateParams
	reply    chan facadeReply
}

func (call facadeCall) resolve(reply facadeReply) {
	call.reply <- reply
}

func (f *fakeFacade) ListStreams(ctx context.Context, targetID, tapID string) ([]stream.Stream, error) {
	call := facadeCall{
		ctx:      ctx,
		kind:     coordinator.LoadStreams,
		targetID: targetID,
		tapID:    tapID,
		reply:    make(chan facadeReply, 1),
	}
	f.calls <- call
	select {
	case reply := <-call.reply:
		return reply.streams, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeFacade) UpdateStream(ctx context.Context, targetID, tapID, streamID string, params stream.UpdateParams) (stream.Stream, error) {
	call := facadeCall{
		ctx:      ctx,
		kind:     coordinator.UpdateStream,
		targetID: targetID,
		tapID:    tapID,
		streamID: streamID,
		params:   params,
		reply:    make(chan facadeReply, 1),
	}
	f.calls <- call
	select {
	case reply := <-call.reply:
		return reply.updated, reply.err
	case <-ctx.Done():
		return stream.Stream{}, ctx.Err()
	}
}
