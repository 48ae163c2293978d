// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package stream holds the domain types for replicable streams: the
// descriptors returned by the replication-configuration API and the
// replication settings a user may edit on a single stream.
package stream

import (
	"encoding/json"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
)

// ReplicationMethod is the policy controlling how changes to a stream
// are captured by the tap.
type ReplicationMethod string

const (
	// FullTable reloads the whole table on every run.
	FullTable ReplicationMethod = "FULL_TABLE"

	// Incremental captures rows whose replication key advanced since
	// the previous run.
	Incremental ReplicationMethod = "INCREMENTAL"

	// LogBased captures changes from the source's change log.
	LogBased ReplicationMethod = "LOG_BASED"
)

// ValidMethods holds every replication method the API accepts.
var ValidMethods = set.NewStrings(
	string(FullTable),
	string(Incremental),
	string(LogBased),
)

// ParseReplicationMethod returns the replication method named by value.
func ParseReplicationMethod(value string) (ReplicationMethod, error) {
	if !ValidMethods.Contains(value) {
		return "", errors.NotValidf("replication method %q", value)
	}
	return ReplicationMethod(value), nil
}

// Stream describes one replicable table exposed by a tap, together with
// its current replication configuration. Beyond identity the fields are
// owned by the remote API; Metadata in particular is carried opaquely.
type Stream struct {
	ID                string            `json:"id"`
	TableName         string            `json:"table_name"`
	Selected          bool              `json:"selected"`
	ReplicationMethod ReplicationMethod `json:"replication_method,omitempty"`
	ReplicationKey    string            `json:"replication_key,omitempty"`
	Metadata          json.RawMessage   `json:"metadata,omitempty"`
}
