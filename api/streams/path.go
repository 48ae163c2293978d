// Copyright 2026 Tapwise Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package streams

import (
	"net/url"
	gopath "path"

	"github.com/juju/errors"
)

// Path is an immutable URL path on the replication-config API server.
// Joining returns a new Path, leaving the receiver untouched, so a base
// path can be shared between requests.
type Path struct {
	base *url.URL
}

// MakePath creates a Path from a base URL.
func MakePath(base *url.URL) Path {
	return Path{base: base}
}

// Join appends the given segments to the path, escaping each one.
func (p Path) Join(segments ...string) (Path, error) {
	if p.base == nil {
		return Path{}, errors.NotValidf("empty path")
	}
	next := *p.base
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, next.EscapedPath())
	for _, segment := range segments {
		if segment == "" {
			return Path{}, errors.NotValidf("empty path segment")
		}
		parts = append(parts, url.PathEscape(segment))
	}
	joined := gopath.Join(parts...)
	u, err := url.Parse(joined)
	if err != nil {
		return Path{}, errors.Trace(err)
	}
	resolved := next.ResolveReference(u)
	return Path{base: resolved}, nil
}

// String returns the full URL for the path.
func (p Path) String() string {
	if p.base == nil {
		return ""
	}
	return p.base.String()
}
