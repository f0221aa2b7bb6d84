// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package dex_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitmark-inc/logger"

	"github.com/metalayer-inc/metad/dex"
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

	err = dex.Initialise()
	if nil != err {
		t.Fatalf("dex initialise error: %s", err)
	}
}

func teardown(t *testing.T) {
	dex.Finalise()
	tally.Finalise()
	logger.Finalise()
	removeFiles()
}

func removeFiles() {
	os.RemoveAll(testingDirName)
}

func makeOffer(tx byte, seller string, propertyID uint32, amount int64, coins int64) *dex.Offer {
	return &dex.Offer{
		TxID:           digest.Digest{tx},
		Seller:         seller,
		PropertyID:     propertyID,
		AmountOriginal: amount,
		CoinDesired:    coins,
		MinFee:         10,
		BlockTimeLimit: 10,
	}
}

func TestCreateOffer(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("alice", 1, 1000, tally.Balance)

	j := &tally.Journal{}
	amended, err := dex.CreateOffer(j, makeOffer(0x01, "alice", 1, 600, 3000))
	assert.NoError(t, err, "create")
	assert.Equal(t, int64(600), amended, "amount")
	assert.Equal(t, int64(400), tally.Get("alice", 1, tally.Balance), "available")
	assert.Equal(t, int64(600), tally.Get("alice", 1, tally.SellofferReserve), "reserve")

	// second offer on the same property is rejected
	_, err = dex.CreateOffer(j, makeOffer(0x02, "alice", 1, 100, 500))
	assert.Equal(t, fault.OfferAlreadyExists, err, "duplicate offer accepted")

	// an offer above the spendable balance is clamped to it
	tally.Update("bob", 1, 50, tally.Balance)
	amended, err = dex.CreateOffer(j, makeOffer(0x03, "bob", 1, 500, 2500))
	assert.NoError(t, err, "clamped create")
	assert.Equal(t, int64(50), amended, "amended amount")
	assert.Equal(t, int64(0), tally.Get("bob", 1, tally.Balance), "available")

	// no balance at all
	_, err = dex.CreateOffer(j, makeOffer(0x04, "carol", 1, 10, 100))
	assert.Equal(t, fault.InsufficientBalance, err, "empty offer accepted")
}

func TestCancelOffer(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("alice", 1, 1000, tally.Balance)

	j := &tally.Journal{}
	dex.CreateOffer(j, makeOffer(0x01, "alice", 1, 600, 3000))

	assert.NoError(t, dex.CancelOffer(j, "alice", 1), "cancel")
	assert.Equal(t, int64(1000), tally.Get("alice", 1, tally.Balance), "available restored")
	assert.Equal(t, int64(0), tally.Get("alice", 1, tally.SellofferReserve), "reserve cleared")
	assert.False(t, dex.HasOffer("alice", 1), "offer still present")

	assert.Equal(t, fault.OfferNotFound, dex.CancelOffer(j, "alice", 1), "cancel of nothing")
}

func TestAcceptAndPayment(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("alice", 1, 1000, tally.Balance)

	j := &tally.Journal{}
	dex.CreateOffer(j, makeOffer(0x01, "alice", 1, 600, 3000))

	accepted, err := dex.AcceptOffer(j, "alice", 1, "bob", 200, 100)
	assert.NoError(t, err, "accept")
	assert.Equal(t, int64(200), accepted, "accepted amount")
	assert.Equal(t, int64(400), tally.Get("alice", 1, tally.SellofferReserve), "offer reserve")
	assert.Equal(t, int64(200), tally.Get("alice", 1, tally.AcceptReserve), "accept reserve")

	_, err = dex.AcceptOffer(j, "alice", 1, "bob", 10, 100)
	assert.Equal(t, fault.AcceptAlreadyExists, err, "duplicate accept accepted")

	// 3000 coins buy 600 tokens, so 500 coins buy 100 tokens
	purchase, err := dex.ProcessPayment(j, "alice", "bob", 500, 101)
	assert.NoError(t, err, "payment")
	assert.Equal(t, int64(100), purchase.Amount, "purchased tokens")
	assert.Equal(t, uint32(1), purchase.PropertyID, "purchased property")
	assert.Equal(t, int64(100), tally.Get("bob", 1, tally.Balance), "buyer balance")
	assert.Equal(t, int64(100), tally.Get("alice", 1, tally.AcceptReserve), "accept reserve after payment")

	// pay off the rest, the accept disappears
	purchase, err = dex.ProcessPayment(j, "alice", "bob", 500, 102)
	assert.NoError(t, err, "second payment")
	assert.Equal(t, int64(100), purchase.Amount, "second purchase")
	_, ok := dex.GetAccept("alice", 1, "bob")
	assert.False(t, ok, "settled accept still present")

	_, err = dex.ProcessPayment(j, "alice", "bob", 500, 103)
	assert.Equal(t, fault.AcceptNotFound, err, "payment without accept")
}

func TestPaymentSameBlockAccepts(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("alice", 3, 100, tally.Balance)
	tally.Update("alice", 7, 100, tally.Balance)

	j := &tally.Journal{}
	dex.CreateOffer(j, makeOffer(0x01, "alice", 7, 100, 1000))
	dex.CreateOffer(j, makeOffer(0x02, "alice", 3, 100, 1000))
	dex.AcceptOffer(j, "alice", 7, "bob", 50, 20)
	dex.AcceptOffer(j, "alice", 3, "bob", 50, 20)

	// two accepts from the same block: the lower property id settles
	purchase, err := dex.ProcessPayment(j, "alice", "bob", 100, 21)
	assert.NoError(t, err, "payment")
	assert.Equal(t, uint32(3), purchase.PropertyID, "settled property")
	assert.Equal(t, int64(10), purchase.Amount, "purchased tokens")
	assert.Equal(t, int64(10), tally.Get("bob", 3, tally.Balance), "buyer balance")
	assert.Equal(t, int64(0), tally.Get("bob", 7, tally.Balance), "untouched property")
}

func TestAcceptClamp(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("alice", 1, 100, tally.Balance)

	j := &tally.Journal{}
	dex.CreateOffer(j, makeOffer(0x01, "alice", 1, 100, 1000))

	accepted, err := dex.AcceptOffer(j, "alice", 1, "bob", 500, 10)
	assert.NoError(t, err, "accept")
	assert.Equal(t, int64(100), accepted, "clamped accept")

	// offer is fully reserved now
	_, err = dex.AcceptOffer(j, "alice", 1, "carol", 10, 10)
	assert.Equal(t, fault.InsufficientBalance, err, "accept on empty offer")
}

func TestExpireAccepts(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("alice", 1, 1000, tally.Balance)

	j := &tally.Journal{}
	dex.CreateOffer(j, makeOffer(0x01, "alice", 1, 600, 3000)) // time limit 10
	dex.AcceptOffer(j, "alice", 1, "bob", 200, 100)

	// not yet expired
	assert.Equal(t, 0, dex.ExpireAccepts(j, 109), "early expiry")

	assert.Equal(t, 1, dex.ExpireAccepts(j, 110), "expiry")
	assert.Equal(t, int64(0), tally.Get("alice", 1, tally.AcceptReserve), "accept reserve returned")
	assert.Equal(t, int64(600), tally.Get("alice", 1, tally.SellofferReserve), "offer reserve restored")

	offer, ok := dex.GetOffer("alice", 1)
	assert.True(t, ok, "offer present")
	assert.Equal(t, int64(600), offer.AmountRemaining, "offer remainder restored")
}

func TestExpireAfterCancel(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("alice", 1, 1000, tally.Balance)

	j := &tally.Journal{}
	dex.CreateOffer(j, makeOffer(0x01, "alice", 1, 600, 3000))
	dex.AcceptOffer(j, "alice", 1, "bob", 200, 100)
	dex.CancelOffer(j, "alice", 1)

	// with the offer gone the reserve returns to the spendable balance
	assert.Equal(t, 1, dex.ExpireAccepts(j, 200), "expiry")
	assert.Equal(t, int64(1000), tally.Get("alice", 1, tally.Balance), "balance restored")
	assert.Equal(t, int64(0), tally.Get("alice", 1, tally.AcceptReserve), "accept reserve cleared")
}

func TestSortedEnumerations(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("alice", 1, 100, tally.Balance)
	tally.Update("bob", 1, 100, tally.Balance)

	j := &tally.Journal{}
	dex.CreateOffer(j, makeOffer(0x09, "bob", 1, 100, 1000))
	dex.CreateOffer(j, makeOffer(0x01, "alice", 1, 100, 1000))

	offers := dex.OffersSorted()
	assert.Equal(t, 2, len(offers), "offer count")
	assert.Equal(t, "alice", offers[0].Seller, "txid order")
	assert.Equal(t, "bob", offers[1].Seller, "txid order")

	dex.AcceptOffer(j, "bob", 1, "dave", 10, 5)
	dex.AcceptOffer(j, "bob", 1, "carol", 10, 5)

	accepts := dex.AcceptsSorted()
	assert.Equal(t, 2, len(accepts), "accept count")
	assert.Equal(t, "carol", accepts[0].Buyer, "buyer order")
	assert.Equal(t, "dave", accepts[1].Buyer, "buyer order")
}
