// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Debug enables precondition assertions that are otherwise skipped on
// the hot path. Release behavior for a violated precondition is
// undefined; with Debug set, assertDebug panics instead.
var Debug = false

// assertDebug panics with a kinded, invalid-argument error if cond is
// false and Debug is enabled. It is a no-op otherwise, matching the
// "debug-time assert; release behavior undefined" contract for
// precondition violations.
func assertDebug(cond bool, format string, args ...any) {
	if !Debug || cond {
		return
	}
	panic(errors.E(errors.Invalid, fmt.Sprintf(format, args...)))
}

// fatalTransport wraps a transport error as fatal: the runtime has no
// defined recovery from a failed collective or one-sided operation.
func fatalTransport(err error) error {
	if err == nil {
		return nil
	}
	return errors.E(errors.Fatal, "dash: transport error", err)
}

// logEmptyReduction records that a reduction ran with no local
// elements on any participating unit; execution continues and init
// is returned unchanged.
func logEmptyReduction(team *Team) {
	log.Printf("dash: accumulate on team %v: no elements on any unit, returning init unchanged", team.ID())
}
