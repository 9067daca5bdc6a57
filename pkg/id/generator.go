// Package id generates request and correlation identifiers.
package id

import "github.com/google/uuid"

// Generator creates unique IDs.
type Generator interface {
	New() string
}

// UUID issues random (version 4) UUIDs in canonical 8-4-4-4-12 form.
type UUID struct{}

func (UUID) New() string { return uuid.NewString() }

// Func adapts a plain function to Generator.
type Func func() string

func (f Func) New() string { return f() }
