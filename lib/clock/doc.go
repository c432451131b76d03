// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Long-running loops take a [Clock] instead of calling time.Now or
// time.After directly. Binaries pass [Real]; tests pass [Fake] and
// drive time forward with [FakeClock.Advance]:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go loop.Run(ctx) // loop waits on c.After(interval)
//	c.WaitForTimers(1)
//	c.Advance(interval)
//
// WaitForTimers closes the race between a goroutine registering its
// wait and the test advancing the clock.
package clock
