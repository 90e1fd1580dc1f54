// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package fsm

import (
	"fmt"

	"sixtop/mac"
)

// Apply runs one step of the transaction FSM from current on event ev. op
// is only consulted for EventRequest fired from StateIdle (the new
// transaction's command); in every other state the command is implied by
// current itself (State.Command).
//
// This is the table from spec §9's design note, expressed as a switch over
// Phase rather than a literal map, since every WAIT_<OP>_* state pair obeys
// the exact same shape regardless of which of the six commands it is for —
// the per-state-pair scaffolding (ReqSendDoneState/ResponseState) captures
// the rest.
func Apply(current State, ev Event, op mac.Command) (Result, error) {
	switch current.Phase() {
	case PhaseIdle:
		return applyIdle(ev, op)
	case PhaseAddRequestIntermediate:
		return applyAddRequestIntermediate(ev)
	case PhaseReqSendDone:
		cmd, _ := current.Command()
		return applyReqSendDone(cmd, ev)
	case PhaseResponse:
		cmd, _ := current.Command()
		return applyResponse(cmd, ev)
	default:
		return Result{}, fmt.Errorf("fsm: unreachable phase for state %v", current)
	}
}

func applyIdle(ev Event, op mac.Command) (Result, error) {
	if ev != EventRequest {
		return Result{}, fmt.Errorf("fsm: event %v invalid in %v", ev, StateIdle)
	}
	next, ok := ReqSendDoneState(op)
	if !ok {
		return Result{}, fmt.Errorf("fsm: unknown command %v for sixtop_request", op)
	}
	return Result{Next: next}, nil
}

// applyAddRequestIntermediate handles WAIT_ADDREQUEST, the 3-step anycast
// intermediate node's state between relaying step 2 and receiving step 3
// (spec §4.5). Step 3's arrival itself -- installing the local half of the
// anycast pair and relaying step 4 to the initiator -- is core.ResponseHandler's
// job; it never reports back through Apply, since the cell install there
// differs enough from every other PhaseResponse case (both neighbors,
// flipped direction, anycast bit) that forcing it through this table's
// single ActionApplyChanges shape would obscure more than it'd share.
func applyAddRequestIntermediate(ev Event) (Result, error) {
	switch ev {
	case EventSendDoneOK:
		// The step-2 relay request left the node; stay in WAIT_ADDREQUEST
		// and (re)arm the response timer while step 3 is awaited.
		return Result{Next: StateWaitAddRequest, Actions: []Action{ActionArmTimeout}}, nil
	case EventTimeout, EventSendDoneFail:
		return Result{Next: StateIdle}, nil
	default:
		return Result{}, fmt.Errorf("fsm: event %v invalid in %v", ev, StateWaitAddRequest)
	}
}

func applyReqSendDone(cmd mac.Command, ev Event) (Result, error) {
	switch ev {
	case EventSendDoneOK:
		next, ok := ResponseState(cmd)
		if !ok {
			return Result{}, fmt.Errorf("fsm: no response state for command %v", cmd)
		}
		return Result{Next: next, Actions: []Action{ActionArmTimeout}}, nil
	case EventSendDoneFail:
		if cmd == mac.CmdCLEAR {
			// CLEAR is idempotent (spec §4.5's CLEAR fallback rule): if
			// delivery fails, unconditionally clear locally rather than
			// retry.
			return Result{Next: StateIdle, Actions: []Action{ActionClearFallback}}, nil
		}
		return Result{Next: StateIdle}, nil
	default:
		st, _ := ReqSendDoneState(cmd)
		return Result{}, fmt.Errorf("fsm: event %v invalid in %v", ev, st)
	}
}

func applyResponse(cmd mac.Command, ev Event) (Result, error) {
	switch ev {
	case EventResponseSuccess:
		return Result{Next: StateIdle, Actions: []Action{ActionApplyChanges, ActionCancelTimeout}}, nil
	case EventResponseOtherRC:
		return Result{Next: StateIdle, Actions: []Action{ActionInvokeRCError, ActionCancelTimeout}}, nil
	case EventTimeout:
		if cmd == mac.CmdCLEAR {
			return Result{Next: StateIdle, Actions: []Action{ActionClearFallback}}, nil
		}
		return Result{Next: StateIdle}, nil
	default:
		st, _ := ResponseState(cmd)
		return Result{}, fmt.Errorf("fsm: event %v invalid in %v", ev, st)
	}
}
