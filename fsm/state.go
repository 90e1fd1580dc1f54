// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package fsm is the TransactionFSM of spec §4.5: the single-slot finite
// state machine governing one in-flight 6P transaction, including the
// 3-step anycast variant. The transition function is table-driven per the
// design note in spec §9 ("better expressed as a table from
// (current_state, event) to (action, next_state)"); the 3-step anycast
// branch is the one explicit exception the design note calls out, handled
// as a guard in core.ResponseHandler rather than folded into this table.
package fsm

import "sixtop/mac"

// State is one of the 14 states named in spec §4.5: IDLE, a
// WAIT_<OP>_REQ_SENDDONE/WAIT_<OP>_RESPONSE pair for each of the six
// commands, and WAIT_ADDREQUEST (the 3-step anycast intermediate state).
type State byte

const (
	StateIdle State = iota

	StateWaitAddReqSendDone
	StateWaitAddResponse

	StateWaitDeleteReqSendDone
	StateWaitDeleteResponse

	StateWaitRelocateReqSendDone
	StateWaitRelocateResponse

	StateWaitCountReqSendDone
	StateWaitCountResponse

	StateWaitListReqSendDone
	StateWaitListResponse

	StateWaitClearReqSendDone
	StateWaitClearResponse

	StateWaitAddRequest
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWaitAddReqSendDone:
		return "WAIT_ADD_REQ_SENDDONE"
	case StateWaitAddResponse:
		return "WAIT_ADD_RESPONSE"
	case StateWaitDeleteReqSendDone:
		return "WAIT_DELETE_REQ_SENDDONE"
	case StateWaitDeleteResponse:
		return "WAIT_DELETE_RESPONSE"
	case StateWaitRelocateReqSendDone:
		return "WAIT_RELOCATE_REQ_SENDDONE"
	case StateWaitRelocateResponse:
		return "WAIT_RELOCATE_RESPONSE"
	case StateWaitCountReqSendDone:
		return "WAIT_COUNT_REQ_SENDDONE"
	case StateWaitCountResponse:
		return "WAIT_COUNT_RESPONSE"
	case StateWaitListReqSendDone:
		return "WAIT_LIST_REQ_SENDDONE"
	case StateWaitListResponse:
		return "WAIT_LIST_RESPONSE"
	case StateWaitClearReqSendDone:
		return "WAIT_CLEAR_REQ_SENDDONE"
	case StateWaitClearResponse:
		return "WAIT_CLEAR_RESPONSE"
	case StateWaitAddRequest:
		return "WAIT_ADDREQUEST"
	default:
		return "UNKNOWN"
	}
}

// Phase classifies a State for the purposes of the transition table: every
// non-idle, non-WAIT_ADDREQUEST state is either "waiting for our own request
// to finish sending" or "waiting for the peer's response."
type Phase byte

const (
	PhaseIdle Phase = iota
	PhaseReqSendDone
	PhaseResponse
	PhaseAddRequestIntermediate
)

var reqSendDoneStates = map[mac.Command]State{
	mac.CmdADD:      StateWaitAddReqSendDone,
	mac.CmdDELETE:   StateWaitDeleteReqSendDone,
	mac.CmdRELOCATE: StateWaitRelocateReqSendDone,
	mac.CmdCOUNT:    StateWaitCountReqSendDone,
	mac.CmdLIST:     StateWaitListReqSendDone,
	mac.CmdCLEAR:    StateWaitClearReqSendDone,
}

var responseStates = map[mac.Command]State{
	mac.CmdADD:      StateWaitAddResponse,
	mac.CmdDELETE:   StateWaitDeleteResponse,
	mac.CmdRELOCATE: StateWaitRelocateResponse,
	mac.CmdCOUNT:    StateWaitCountResponse,
	mac.CmdLIST:     StateWaitListResponse,
	mac.CmdCLEAR:    StateWaitClearResponse,
}

var stateCommand = func() map[State]mac.Command {
	m := make(map[State]mac.Command, len(reqSendDoneStates)+len(responseStates))
	for cmd, st := range reqSendDoneStates {
		m[st] = cmd
	}
	for cmd, st := range responseStates {
		m[st] = cmd
	}
	return m
}()

// Phase reports which phase s belongs to.
func (s State) Phase() Phase {
	switch {
	case s == StateIdle:
		return PhaseIdle
	case s == StateWaitAddRequest:
		return PhaseAddRequestIntermediate
	case isReqSendDoneState(s):
		return PhaseReqSendDone
	default:
		return PhaseResponse
	}
}

func isReqSendDoneState(s State) bool {
	for _, st := range reqSendDoneStates {
		if st == s {
			return true
		}
	}
	return false
}

// Command returns the transaction's command for any non-IDLE state.
// StateWaitAddRequest's implicit command is ADD (the 3-step anycast
// intermediate only ever arises for ADD).
func (s State) Command() (mac.Command, bool) {
	if s == StateWaitAddRequest {
		return mac.CmdADD, true
	}
	cmd, ok := stateCommand[s]
	return cmd, ok
}

// ReqSendDoneState returns the WAIT_<OP>_REQ_SENDDONE state for cmd.
func ReqSendDoneState(cmd mac.Command) (State, bool) {
	s, ok := reqSendDoneStates[cmd]
	return s, ok
}

// ResponseState returns the WAIT_<OP>_RESPONSE state for cmd.
func ResponseState(cmd mac.Command) (State, bool) {
	s, ok := responseStates[cmd]
	return s, ok
}
