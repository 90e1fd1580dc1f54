// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package fsm

// Event is the input alphabet of the transition table (spec §4.5/§9).
type Event byte

const (
	// EventRequest is sixtop_request(OP) invoked from IDLE.
	EventRequest Event = iota
	// EventSendDoneOK is the MAC reporting our outbound request acked ok.
	EventSendDoneOK
	// EventSendDoneFail is the MAC reporting retries exhausted.
	EventSendDoneFail
	// EventResponseSuccess is a response arriving with SUCCESS or EOL.
	EventResponseSuccess
	// EventResponseOtherRC is a response arriving with any other code.
	EventResponseOtherRC
	// EventTimeout is the response-wait timer firing.
	EventTimeout
)

func (e Event) String() string {
	switch e {
	case EventRequest:
		return "request"
	case EventSendDoneOK:
		return "send-done-ok"
	case EventSendDoneFail:
		return "send-done-fail"
	case EventResponseSuccess:
		return "response-success"
	case EventResponseOtherRC:
		return "response-other-rc"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Action is emitted alongside a state transition; core.SixtopCore executes
// these against the schedule table, the timer service, and the SF.
type Action byte

const (
	ActionNone Action = iota
	// ActionArmTimeout arms the SIX2SIX_TIMEOUT_MS response timer.
	ActionArmTimeout
	// ActionCancelTimeout cancels the armed response timer.
	ActionCancelTimeout
	// ActionApplyChanges applies the transaction's pending schedule
	// mutation (add/remove/relocate/install-anycast).
	ActionApplyChanges
	// ActionInvokeRCError calls the SF's HandleRCError callback.
	ActionInvokeRCError
	// ActionClearFallback performs the CLEAR fallback rule: remove all
	// negotiated cells to the peer locally and reset the per-link seqnum.
	ActionClearFallback
)

func (a Action) String() string {
	switch a {
	case ActionArmTimeout:
		return "arm-timeout"
	case ActionCancelTimeout:
		return "cancel-timeout"
	case ActionApplyChanges:
		return "apply-changes"
	case ActionInvokeRCError:
		return "invoke-rc-error"
	case ActionClearFallback:
		return "clear-fallback"
	default:
		return "none"
	}
}

// Result is what Apply returns: the next state and the actions the caller
// must execute to realize that transition.
type Result struct {
	Next    State
	Actions []Action
}

func (r Result) Has(a Action) bool {
	for _, x := range r.Actions {
		if x == a {
			return true
		}
	}
	return false
}
