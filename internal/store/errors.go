// Copyright 2025 ChaosChain

package store

import "errors"

// ErrNotFound is returned when a workflow or step lookup finds no row,
// translating sql.ErrNoRows to a local sentinel so callers never need to
// import database/sql.
var ErrNotFound = errors.New("store: record not found")

// ErrTerminalImmutable is returned when a caller attempts to mutate a
// workflow already in a terminal state.
var ErrTerminalImmutable = errors.New("store: workflow is terminal and immutable")
