// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package sf is the Scheduling Function dispatch interface of spec §4.4:
// the narrow capability surface the active SF registers so sixtop can ask
// it for an SFID, a metadata value, a metadata interpretation, and an error
// handler, without sixtop knowing anything about cell-selection policy.
package sf

import "sixtop/mac"

// MetadataKind is the responder's interpretation of an inbound request's
// metadata field (spec §4.4). Only MetadataFrameID is currently defined;
// anything else must cause the responder to answer RC_ERROR (spec §4.7).
type MetadataKind uint8

const (
	MetadataUnknown MetadataKind = iota
	MetadataFrameID
)

// Dispatch is the four-callback interface every Scheduling Function must
// implement (spec §4.4). All calls are synchronous, matching spec §5's
// cooperative, no-suspension-point task model.
type Dispatch interface {
	// GetSFID identifies which SF authored a request.
	GetSFID() byte
	// GetMetadata returns the current slotframe id, stamped into outbound
	// requests.
	GetMetadata() uint16
	// TranslateMetadata interprets an inbound request's metadata field.
	TranslateMetadata(metadata uint16) MetadataKind
	// HandleRCError is invoked when a response arrives with a non-success
	// code, letting the SF retry or reselect (e.g. issue a CLEAR).
	HandleRCError(code mac.ReturnCode, peer mac.Address)
}

// CandidateLister is the fifth, MSF-only callback (spec §4.4): producing
// candidate cells for the responder to propose in a 3-step ADD. Not every
// Dispatch implements it — sixtop must type-assert for it.
type CandidateLister interface {
	CandidateAddCellList(count int) (mac.CellList, bool)
}
