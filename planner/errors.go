// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package planner

import "github.com/pkg/errors"

// Sentinel errors returned by the planner. Returned errors wrap these with a
// descriptive message; match them with errors.Is.
var (
	// ErrIndexOutOfRange is returned when an operator id or buffer index is
	// outside the bounds declared at construction or registration time.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrCapacityExceeded is returned by AddBuffer when the number of buffers
	// would exceed the capacity derived from the scratch region.
	ErrCapacityExceeded = errors.New("planner capacity exceeded")
)
