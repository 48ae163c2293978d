// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package stream

import (
	"github.com/juju/errors"
	"github.com/juju/schema"
)

// UpdateParams is the partial-update body sent when editing a stream's
// replication settings. The remote API owns the full field set, so
// unknown keys are passed through untouched; the fields the console
// itself understands are checked before a request is made.
type UpdateParams map[string]interface{}

var updateChecker = schema.FieldMap(
	schema.Fields{
		"replication_method": schema.String(),
		"replication_key":    schema.NonEmptyString("replication_key"),
		"selected":           schema.Bool(),
	},
	schema.Defaults{
		"replication_method": schema.Omit,
		"replication_key":    schema.Omit,
		"selected":           schema.Omit,
	},
)

// Validate checks the fields this console understands. Empty params are
// rejected outright; a PATCH with no fields has no meaning.
func (p UpdateParams) Validate() error {
	if len(p) == 0 {
		return errors.NotValidf("empty update params")
	}
	coerced, err := updateChecker.Coerce(map[string]interface{}(p), nil)
	if err != nil {
		return errors.NewNotValid(err, "update params")
	}
	fields := coerced.(map[string]interface{})
	if method, ok := fields["replication_method"]; ok {
		if _, err := ParseReplicationMethod(method.(string)); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
