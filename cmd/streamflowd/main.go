// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// streamflowd serves the stream-replication console: it accepts trigger
// requests from the UI, runs them against the remote replication-config
// API under the coordinator's latest-wins discipline, and pushes the
// outcomes back out over a websocket feed.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/tapwise/streamflow/api/streams"
	"github.com/tapwise/streamflow/config"
	"github.com/tapwise/streamflow/server"
	"github.com/tapwise/streamflow/worker/coordinator"
)

var logger = loggo.GetLogger("streamflow.cmd")

func main() {
	os.Exit(Main(os.Args[1:]))
}

// Main runs the daemon, returning the process exit code.
func Main(args []string) int {
	flags := gnuflag.NewFlagSet("streamflowd", gnuflag.ContinueOnError)
	configPath := flags.String("config", "streamflow.yaml", "path to the daemon config file")
	logConfig := flags.String("log-config", "", "loggo config, overrides the config file")
	if err := flags.Parse(true, args); err != nil {
		if err == gnuflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.Read(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *logConfig != "" {
		cfg.LogConfig = *logConfig
	}
	if cfg.LogConfig != "" {
		if err := loggo.ConfigureLoggers(cfg.LogConfig); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	if err := run(cfg); err != nil {
		logger.Errorf("%s", err)
		return 1
	}
	return 0
}

func run(cfg config.Config) error {
	client, err := streams.NewClient(streams.Config{
		URL:    cfg.APIURL,
		Logger: loggo.GetLogger("streamflow.api"),
	})
	if err != nil {
		return errors.Trace(err)
	}

	triggers := make(chan coordinator.Trigger)
	outcomes := make(chan coordinator.Outcome)

	coord, err := coordinator.NewWorker(coordinator.Config{
		Facade:   client,
		Triggers: triggers,
		Outcomes: outcomes,
		Logger:   loggo.GetLogger("streamflow.coordinator"),
	})
	if err != nil {
		return errors.Trace(err)
	}

	srv, err := server.NewWorker(server.Config{
		ListenAddr: cfg.ListenAddr,
		Triggers:   triggers,
		Outcomes:   outcomes,
		Clock:      clock.WallClock,
		Logger:     loggo.GetLogger("streamflow.server"),
	})
	if err != nil {
		coord.Kill()
		_ = coord.Wait()
		return errors.Trace(err)
	}
	logger.Infof("serving UI API on %s for %s", srv.Addr(), cfg.APIURL)

	coordDone := make(chan error, 1)
	go func() { coordDone <- coord.Wait() }()
	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Wait() }()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	var cause error
	select {
	case sig := <-signals:
		logger.Infof("received %s, shutting down", sig)
	case cause = <-coordDone:
		coordDone = nil
		cause = errors.Annotate(cause, "coordinator failed")
	case cause = <-srvDone:
		srvDone = nil
		cause = errors.Annotate(cause, "server failed")
	}

	srv.Kill()
	coord.Kill()
	if srvDone != nil {
		if err := <-srvDone; err != nil && cause == nil {
			cause = errors.Annotate(err, "server failed")
		}
	}
	if coordDone != nil {
		if err := <-coordDone; err != nil && cause == nil {
			cause = errors.Annotate(err, "coordinator failed")
		}
	}
	return cause
}
