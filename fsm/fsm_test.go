// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sixtop/mac"
)

func TestIdleToReqSendDone(t *testing.T) {
	r, err := Apply(StateIdle, EventRequest, mac.CmdADD)
	require.NoError(t, err)
	assert.Equal(t, StateWaitAddReqSendDone, r.Next)
	assert.Empty(t, r.Actions)
}

func TestReqSendDoneToResponseArmsTimeout(t *testing.T) {
	r, err := Apply(StateWaitAddReqSendDone, EventSendDoneOK, mac.CmdNone)
	require.NoError(t, err)
	assert.Equal(t, StateWaitAddResponse, r.Next)
	assert.True(t, r.Has(ActionArmTimeout))
}

func TestReqSendDoneFailNonClearReturnsIdle(t *testing.T) {
	r, err := Apply(StateWaitDeleteReqSendDone, EventSendDoneFail, mac.CmdNone)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, r.Next)
	assert.False(t, r.Has(ActionClearFallback))
}

func TestClearReqSendDoneFailTriggersFallback(t *testing.T) {
	r, err := Apply(StateWaitClearReqSendDone, EventSendDoneFail, mac.CmdNone)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, r.Next)
	assert.True(t, r.Has(ActionClearFallback))
}

func TestClearResponseTimeoutTriggersFallback(t *testing.T) {
	r, err := Apply(StateWaitClearResponse, EventTimeout, mac.CmdNone)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, r.Next)
	assert.True(t, r.Has(ActionClearFallback))
}

func TestResponseSuccessAppliesAndCancels(t *testing.T) {
	r, err := Apply(StateWaitAddResponse, EventResponseSuccess, mac.CmdNone)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, r.Next)
	assert.True(t, r.Has(ActionApplyChanges))
	assert.True(t, r.Has(ActionCancelTimeout))
}

func TestResponseOtherRCInvokesHandler(t *testing.T) {
	r, err := Apply(StateWaitAddResponse, EventResponseOtherRC, mac.CmdNone)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, r.Next)
	assert.True(t, r.Has(ActionInvokeRCError))
	assert.False(t, r.Has(ActionApplyChanges))
}

func TestResponseTimeoutNoScheduleChange(t *testing.T) {
	r, err := Apply(StateWaitListResponse, EventTimeout, mac.CmdNone)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, r.Next)
	assert.False(t, r.Has(ActionApplyChanges))
}

func TestAddRequestIntermediateSendDoneOKStaysAndArms(t *testing.T) {
	r, err := Apply(StateWaitAddRequest, EventSendDoneOK, mac.CmdNone)
	require.NoError(t, err)
	assert.Equal(t, StateWaitAddRequest, r.Next)
	assert.True(t, r.Has(ActionArmTimeout))
}

func TestAddRequestIntermediateTimeoutReturnsIdle(t *testing.T) {
	r, err := Apply(StateWaitAddRequest, EventTimeout, mac.CmdNone)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, r.Next)
}

func TestInvalidEventInStateIsRejected(t *testing.T) {
	_, err := Apply(StateIdle, EventTimeout, mac.CmdNone)
	assert.Error(t, err)

	_, err = Apply(StateWaitAddResponse, EventRequest, mac.CmdADD)
	assert.Error(t, err)
}

func TestIdleInvariant(t *testing.T) {
	var txn TxnContext
	assert.True(t, txn.CheckIdleInvariant())

	txn.NeighborSecond = mac.Short16Address(4)
	assert.False(t, txn.CheckIdleInvariant())
}

func TestEveryCommandHasReqSendDoneAndResponseStates(t *testing.T) {
	for _, cmd := range []mac.Command{mac.CmdADD, mac.CmdDELETE, mac.CmdRELOCATE, mac.CmdCOUNT, mac.CmdLIST, mac.CmdCLEAR} {
		rs, ok := ReqSendDoneState(cmd)
		require.True(t, ok, "missing req-senddone state for %v", cmd)
		got, ok := rs.Command()
		require.True(t, ok)
		assert.Equal(t, cmd, got)

		resp, ok := ResponseState(cmd)
		require.True(t, ok, "missing response state for %v", cmd)
		got, ok = resp.Command()
		require.True(t, ok)
		assert.Equal(t, cmd, got)
	}
}
