// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package server exposes the console's HTTP surface to the UI: trigger
// endpoints that forward requests to the coordinator, and a websocket
// feed pushing every outcome to connected clients. The server owns no
// replication state and applies no supersession of its own; that
// discipline lives entirely in the coordinator.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4/catacomb"

	"github.com/tapwise/streamflow/core/stream"
	"github.com/tapwise/streamflow/worker/coordinator"
)

const (
	outcomeTopic = "streamflow.outcome"

	// sessionBacklog bounds the per-session event buffer; a client that
	// cannot keep up loses events rather than stalling the hub.
	sessionBacklog = 16

	pingInterval     = 30 * time.Second
	pingWriteTimeout = 10 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// Config holds the dependencies for the server worker.
type Config struct {
	// ListenAddr is the address to serve the UI API on.
	ListenAddr string

	// Triggers is the coordinator's inbound trigger channel.
	Triggers chan<- coordinator.Trigger

	// Outcomes is the coordinator's outbound outcome channel; the
	// server drains it into the websocket feed.
	Outcomes <-chan coordinator.Outcome

	// Clock drives the websocket ping loop.
	Clock clock.Clock

	// Logger for the server.
	Logger loggo.Logger
}

// Validate checks the config is complete.
func (config Config) Validate() error {
	if config.ListenAddr == "" {
		return errors.NotValidf("empty ListenAddr")
	}
	if config.Triggers == nil {
		return errors.NotValidf("nil Triggers")
	}
	if config.Outcomes == nil {
		return errors.NotValidf("nil Outcomes")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Worker serves the UI API until killed.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config

	listener net.Listener
	server   *http.Server
	hub      *pubsub.SimpleHub
	upgrader websocket.Upgrader
}

// NewWorker binds the listen address and starts serving.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	listener, err := net.Listen("tcp", config.ListenAddr)
	if err != nil {
		return nil, errors.Annotatef(err, "listening on %q", config.ListenAddr)
	}
	w := &Worker{
		config:   config,
		listener: listener,
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: config.Logger,
		}),
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/targets/{target}/taps/{tap}/streams/load", w.handleLoadStreams).Methods("POST")
	router.HandleFunc("/api/targets/{target}/taps/{tap}/streams/{stream}", w.handleUpdateStream).Methods("POST")
	router.HandleFunc("/api/events", w.handleEvents).Methods("GET")
	w.server = &http.Server{Handler: router}

	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		_ = listener.Close()
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

// Addr returns the address the server is listening on.
func (w *Worker) Addr() string {
	return w.listener.Addr().String()
}

func (w *Worker) loop() error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- w.server.Serve(w.listener)
	}()

	for {
		select {
		case <-w.catacomb.Dying():
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := w.server.Shutdown(ctx); err != nil {
				w.config.Logger.Debugf("shutdown: %s", err)
			}
			return w.catacomb.ErrDying()

		case err := <-serveErr:
			if err == http.ErrServerClosed {
				return w.catacomb.ErrDying()
			}
			return errors.Trace(err)

		case outcome := <-w.config.Outcomes:
			w.config.Logger.Tracef("publishing %s outcome for trigger %s", outcome.Kind, outcome.TriggerID)
			_ = w.hub.Publish(outcomeTopic, makeEvent(outcome))
		}
	}
}

func (w *Worker) handleLoadStreams(rw http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	trigger := coordinator.NewLoadStreams(vars["target"], vars["tap"])
	w.submit(rw, req, trigger)
}

func (w *Worker) handleUpdateStream(rw http.ResponseWriter, req *http.Request) {
	var params stream.UpdateParams
	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(&params); err != nil {
		w.sendError(rw, http.StatusBadRequest, errors.Annotate(err, "decoding update params"))
		return
	}
	vars := mux.Vars(req)
	trigger := coordinator.NewUpdateStream(vars["target"], vars["tap"], vars["stream"], params)
	w.submit(rw, req, trigger)
}

// submit forwards the trigger to the coordinator. Validation is the
// coordinator's business; an invalid trigger is still accepted here and
// resolves into an error event on the feed.
func (w *Worker) submit(rw http.ResponseWriter, req *http.Request, trigger coordinator.Trigger) {
	select {
	case w.config.Triggers <- trigger:
		w.sendJSON(rw, http.StatusAccepted, map[string]string{
			"trigger_id": trigger.ID.String(),
		})
	case <-req.Context().Done():
	case <-w.catacomb.Dying():
		w.sendError(rw, http.StatusServiceUnavailable, errors.New("server shutting down"))
	}
}

func (w *Worker) handleEvents(rw http.ResponseWriter, req *http.Request) {
	// Subscribe before upgrading so that a client sees every outcome
	// published after the handshake completed.
	events := make(chan Event, sessionBacklog)
	unsubscribe := w.hub.Subscribe(outcomeTopic, func(_ string, data interface{}) {
		event, ok := data.(Event)
		if !ok {
			return
		}
		select {
		case events <- event:
		default:
			// Slow client; it loses this event rather than
			// stalling every other session.
		}
	})
	defer unsubscribe()

	conn, err := w.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		w.config.Logger.Debugf("websocket upgrade failed: %s", err)
		return
	}
	defer func() { _ = conn.Close() }()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	timer := w.config.Clock.NewTimer(pingInterval)
	defer timer.Stop()
	for {
		select {
		case <-w.catacomb.Dying():
			return
		case <-closed:
			return
		case event := <-events:
			if err := conn.WriteJSON(event); err != nil {
				w.config.Logger.Debugf("dropping event session: %s", err)
				return
			}
		case <-timer.Chan():
			deadline := w.config.Clock.Now().Add(pingWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
			timer.Reset(pingInterval)
		}
	}
}

func (w *Worker) sendJSON(rw http.ResponseWriter, status int, value interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(value); err != nil {
		w.config.Logger.Debugf("writing response: %s", err)
	}
}

func (w *Worker) sendError(rw http.ResponseWriter, status int, err error) {
	w.sendJSON(rw, status, map[string]string{"error": err.Error()})
}
