// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"sixtop/mac"
)

func TestRecordResultIncrementsLabel(t *testing.T) {
	r := New()
	r.RecordResult(mac.RCSuccess)
	r.RecordResult(mac.RCSuccess)
	r.RecordResult(mac.RCSeqNumErr)

	if got := testutil.ToFloat64(r.TransactionsByResult.WithLabelValues(mac.RCSuccess.String())); got != 2 {
		t.Fatalf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.TransactionsByResult.WithLabelValues(mac.RCSeqNumErr.String())); got != 1 {
		t.Fatalf("seqnum-err count = %v, want 1", got)
	}
}

func TestRecordResultNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordResult(mac.RCSuccess)
}

func TestGaugesAndCountersStartAtZero(t *testing.T) {
	r := New()
	if got := testutil.ToFloat64(r.TransactionsStarted); got != 0 {
		t.Fatalf("transactions started = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.ScheduleFreeEntries); got != 0 {
		t.Fatalf("schedule free entries = %v, want 0", got)
	}
}
