// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package streams implements the client for the remote
// replication-configuration API: listing the streams a tap exposes and
// patching a single stream's replication settings.
package streams

import (
	"context"
	"net/url"

	"github.com/juju/errors"

	"github.com/tapwise/streamflow/core/stream"
)

// Config holds the configuration for creating a client.
type Config struct {
	// URL is the base URL of the replication-config API, including any
	// path prefix, e.g. "https://config.internal/api/v1".
	URL string

	// Transport to use for requests. If nil a default transport built
	// from the Logger is used.
	Transport Transport

	// Logger to use during the requests.
	Logger Logger
}

// Validate checks the config is sane.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.NotValidf("empty URL")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Client wraps the underlying REST client, exposing the two operations
// the console performs against the replication-config API.
type Client struct {
	base   Path
	client RESTClient
	logger Logger
}

// NewClient creates a client from the config.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	base, err := url.Parse(config.URL)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing url %q", config.URL)
	}
	transport := config.Transport
	if transport == nil {
		transport = DefaultHTTPTransport(config.Logger)
	}
	return &Client{
		base:   MakePath(base),
		client: NewHTTPRESTClient(NewAPIRequester(transport, config.Logger)),
		logger: config.Logger,
	}, nil
}

// ListStreams returns the streams the given tap exposes for the given
// target, with their current replication configuration.
func (c *Client) ListStreams(ctx context.Context, targetID, tapID string) ([]stream.Stream, error) {
	path, err := c.base.Join("targets", targetID, "taps", tapID, "streams")
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.logger.Tracef("listing streams %q", path.String())
	var streams []stream.Stream
	if err := c.client.Get(ctx, path, &streams); err != nil {
		return nil, errors.Trace(err)
	}
	return streams, nil
}

// UpdateStream applies a partial update to a single stream's
// replication settings and returns the updated descriptor.
func (c *Client) UpdateStream(ctx context.Context, targetID, tapID, streamID string, params stream.UpdateParams) (stream.Stream, error) {
	path, err := c.base.Join("targets", targetID, "taps", tapID, "streams", streamID)
	if err != nil {
		return stream.Stream{}, errors.Trace(err)
	}
	c.logger.Tracef("updating stream %q", path.String())
	var updated stream.Stream
	if err := c.client.Patch(ctx, path, params, &updated); err != nil {
		return stream.Stream{}, errors.Trace(err)
	}
	return updated, nil
}
