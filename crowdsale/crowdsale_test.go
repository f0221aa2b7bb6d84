// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crowdsale_test

import (
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitmark-inc/logger"

	"github.com/metalayer-inc/metad/crowdsale"
	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/tally"
)

const testingDirName = "testing"

func setup(t *testing.T) {
	removeFiles()
	os.Mkdir(testingDirName, 0700)

	logging := logger.Configuration{
		Directory: testingDirName,
		File:      "testing.log",
		Size:      1048576,
		Count:     10,
		Console:   false,
		Levels: map[string]string{
			logger.DefaultTag: "critical",
		},
	}

	err := logger.Initialise(logging)
	if nil != err {
		t.Fatalf("logger initialise error: %s", err)
	}

	err = tally.Initialise()
	if nil != err {
		t.Fatalf("tally initialise error: %s", err)
	}

	err = crowdsale.Initialise()
	if nil != err {
		t.Fatalf("crowdsale initialise error: %s", err)
	}
}

func teardown(t *testing.T) {
	crowdsale.Finalise()
	tally.Finalise()
	logger.Finalise()
	removeFiles()
}

func removeFiles() {
	os.RemoveAll(testingDirName)
}

const day = int64(86400)

func makeSale(propertyID uint32, issuer string, deadline int64) *crowdsale.Crowdsale {
	return &crowdsale.Crowdsale{
		PropertyID:       propertyID,
		Issuer:           issuer,
		PropertyDesired:  1,
		NumTokens:        100,
		Deadline:         deadline,
		EarlyBirdBonus:   10,
		IssuerBonus:      5,
		Divisible:        false,
		DesiredDivisible: true,
		TxID:             digest.Digest{0x01},
	}
}

func TestStart(t *testing.T) {
	setup(t)
	defer teardown(t)

	assert.NoError(t, crowdsale.Start(makeSale(5, "issuer", 1000)), "start")
	assert.Equal(t, fault.CrowdsaleAlreadyActive,
		crowdsale.Start(makeSale(6, "issuer", 1000)), "second sale accepted")

	assert.True(t, crowdsale.IsActive(5), "active")
	assert.False(t, crowdsale.IsActive(6), "inactive")
	assert.True(t, crowdsale.IsCrowdsalePurchase("issuer", 1), "purchase check")
	assert.False(t, crowdsale.IsCrowdsalePurchase("issuer", 2), "wrong property")
	assert.False(t, crowdsale.IsCrowdsalePurchase("other", 1), "wrong recipient")
}

// one whole divisible unit sent 7 days before a 14 day deadline at
// 10%/week early bird and 5% issuer premine
func TestParticipateVesting(t *testing.T) {
	setup(t)
	defer teardown(t)

	deadline := 14 * day
	assert.NoError(t, crowdsale.Start(makeSale(5, "issuer", deadline)), "start")

	j := &tally.Journal{}
	result, err := crowdsale.Participate(j, "issuer", "contributor", digest.Digest{0xaa}, 100000000, 7*day)
	assert.NoError(t, err, "participate")
	assert.Equal(t, int64(110), result.UserTokens, "user tokens")
	assert.Equal(t, int64(5), result.IssuerTokens, "issuer tokens")
	assert.False(t, result.Closed, "closed")

	assert.Equal(t, int64(110), tally.Get("contributor", 5, tally.Balance), "contributor balance")
	assert.Equal(t, int64(5), tally.Get("issuer", 5, tally.Balance), "issuer balance")

	sale, ok := crowdsale.GetByIssuer("issuer")
	assert.True(t, ok, "get sale")
	assert.Equal(t, int64(110), sale.UserCreated, "user total")
	assert.Equal(t, int64(5), sale.IssuerCreated, "issuer total")
	assert.Equal(t, 1, len(sale.Participations), "participation recorded")
}

func TestParticipateOverflowingCreditRejected(t *testing.T) {
	setup(t)
	defer teardown(t)

	deadline := 14 * day
	assert.NoError(t, crowdsale.Start(makeSale(5, "issuer", deadline)), "start")

	// a contributor balance the minted tokens cannot fit into
	tally.Update("contributor", 5, math.MaxInt64, tally.Balance)

	j := &tally.Journal{}
	_, err := crowdsale.Participate(j, "issuer", "contributor", digest.Digest{0xae}, 100000000, 7*day)
	assert.Equal(t, fault.InvalidAmount, err, "overflowing credit accepted")
	j.Unwind()

	assert.Equal(t, int64(math.MaxInt64), tally.Get("contributor", 5, tally.Balance), "balance changed")

	// the created totals must not count tokens never credited
	sale, ok := crowdsale.GetByIssuer("issuer")
	assert.True(t, ok, "sale gone")
	assert.Equal(t, int64(0), sale.UserCreated, "user total")
	assert.Equal(t, int64(0), sale.IssuerCreated, "issuer total")
	assert.Equal(t, 0, len(sale.Participations), "participation recorded")
}

func TestParticipateAfterDeadlineNoBonus(t *testing.T) {
	setup(t)
	defer teardown(t)

	deadline := 14 * day
	crowdsale.Start(makeSale(5, "issuer", deadline))

	// past the deadline the bonus clamps to zero weeks
	j := &tally.Journal{}
	result, err := crowdsale.Participate(j, "issuer", "contributor", digest.Digest{0xab}, 100000000, deadline+day)
	assert.NoError(t, err, "participate")
	assert.Equal(t, int64(100), result.UserTokens, "user tokens without bonus")
}

func TestDivisibleKeepsFraction(t *testing.T) {
	setup(t)
	defer teardown(t)

	sale := makeSale(5, "issuer", 14*day)
	sale.Divisible = true
	crowdsale.Start(sale)

	// divisible sales mint in base units: amount × tokens × bonus
	j := &tally.Journal{}
	result, err := crowdsale.Participate(j, "issuer", "contributor", digest.Digest{0xac}, 100000000, 7*day)
	assert.NoError(t, err, "participate")
	assert.Equal(t, int64(11000000000), result.UserTokens, "user base units")
	assert.Equal(t, int64(550000000), result.IssuerTokens, "issuer base units")
}

func TestMaxOut(t *testing.T) {
	setup(t)
	defer teardown(t)

	sale := makeSale(5, "issuer", 14*day)
	sale.Divisible = true
	sale.NumTokens = math.MaxInt64 / 2
	crowdsale.Start(sale)

	j := &tally.Journal{}
	result, err := crowdsale.Participate(j, "issuer", "contributor", digest.Digest{0xad}, 100000000, 14*day)
	assert.NoError(t, err, "participate")
	assert.True(t, result.Closed, "sale not closed")
	assert.Equal(t, int64(math.MaxInt64), result.UserTokens+result.IssuerTokens, "clamped supply")

	sale2, ok := crowdsale.GetByIssuer("issuer")
	assert.True(t, ok, "still in map until closed")
	assert.True(t, sale2.MaxTokens, "max tokens flag")

	closed, err := crowdsale.Close("issuer")
	assert.NoError(t, err, "close")
	assert.True(t, closed.MaxTokens, "closed record flag")
	assert.False(t, crowdsale.IsActive(5), "active after close")
}

func TestManualClose(t *testing.T) {
	setup(t)
	defer teardown(t)

	crowdsale.Start(makeSale(5, "issuer", 14*day))

	closed, err := crowdsale.Close("issuer")
	assert.NoError(t, err, "close")
	assert.Equal(t, uint32(5), closed.PropertyID, "closed property")
	assert.False(t, crowdsale.IsActive(5), "still active")

	_, err = crowdsale.Close("issuer")
	assert.Equal(t, fault.CrowdsaleNotFound, err, "double close")
}

func TestExpiryMissedTokens(t *testing.T) {
	setup(t)
	defer teardown(t)

	deadline := 14 * day
	crowdsale.Start(makeSale(5, "issuer", deadline))
	crowdsale.Start(makeSale(6, "other", deadline*10))

	j := &tally.Journal{}

	// 10 participations of 0.1 units each: per-tx premine truncates
	// to zero but the recomputed total does not
	for i := 0; i < 10; i += 1 {
		txid := digest.Digest{byte(i + 1)}
		result, err := crowdsale.Participate(j, "issuer", "contributor", txid, 10000000, 7*day)
		assert.NoError(t, err, "participate")
		assert.Equal(t, int64(11), result.UserTokens, "user tokens")
		assert.Equal(t, int64(0), result.IssuerTokens, "per-tx premine")
	}

	expired := crowdsale.ExpireAll(j, deadline+1)
	assert.Equal(t, 1, len(expired), "expired count")
	assert.Equal(t, uint32(5), expired[0].PropertyID, "expired property")

	// 10 × 11 tokens × 5% = 5.5, truncated to 5
	assert.Equal(t, int64(5), expired[0].MissedTokens, "missed tokens")
	assert.Equal(t, int64(5), tally.Get("issuer", 5, tally.Balance), "issuer top-up")

	// the later sale is untouched
	assert.True(t, crowdsale.IsActive(6), "open sale expired")
	assert.False(t, crowdsale.IsActive(5), "expired sale active")
}
