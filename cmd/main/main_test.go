package main

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestParseRoles(t *testing.T) {
	c := qt.New(t)

	testCases := []struct {
		name                                     string
		backend, noBackend, frontend, noFrontend bool
		want                                     roles
		wantErr                                  bool
	}{
		{name: "default runs both", want: roles{backend: true, frontend: true}},
		{name: "backend only", backend: true, want: roles{backend: true}},
		{name: "frontend only", frontend: true, want: roles{frontend: true}},
		{name: "both selected", backend: true, frontend: true, want: roles{backend: true, frontend: true}},
		{name: "no backend", noBackend: true, want: roles{frontend: true}},
		{name: "no frontend", noFrontend: true, want: roles{backend: true}},
		{name: "nothing", noBackend: true, noFrontend: true, wantErr: true},
		{name: "conflicting", backend: true, noBackend: true, wantErr: true},
	}

	for _, tc := range testCases {
		c.Run(tc.name, func(c *qt.C) {
			got, err := parseRoles(tc.backend, tc.noBackend, tc.frontend, tc.noFrontend)
			if tc.wantErr {
				c.Assert(err, qt.IsNotNil)
				return
			}
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.Equals, tc.want)
		})
	}
}
