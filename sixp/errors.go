// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package sixp

import "errors"

// Builder errors, spec §4.1's contract: "NoBuffer if buffer pool is
// exhausted, Overflow if the composed frame exceeds the buffer window."
var (
	ErrNoBuffer = errors.New("sixp: no buffer available")
	ErrOverflow = errors.New("sixp: frame exceeds buffer window")
)

// Parser rejection reasons, spec §4.2.
var (
	ErrMalformed    = errors.New("sixp: malformed frame")
	ErrWrongIE      = errors.New("sixp: IE group/type or sub-IE id mismatch")
	ErrReservedType = errors.New("sixp: reserved packet type")
)
