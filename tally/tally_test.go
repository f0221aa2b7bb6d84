// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package tally_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitmark-inc/logger"

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
}

func teardown(t *testing.T) {
	tally.Finalise()
	logger.Finalise()
	removeFiles()
}

func removeFiles() {
	os.RemoveAll(testingDirName)
}

func TestUpdate(t *testing.T) {
	setup(t)
	defer teardown(t)

	assert.True(t, tally.Update("addr-1", 1, 100, tally.Balance), "credit")
	assert.Equal(t, int64(100), tally.Get("addr-1", 1, tally.Balance), "balance")

	assert.True(t, tally.Update("addr-1", 1, -40, tally.Balance), "debit")
	assert.Equal(t, int64(60), tally.Get("addr-1", 1, tally.Balance), "balance after debit")

	// overdraw must be rejected and leave the bucket untouched
	assert.False(t, tally.Update("addr-1", 1, -61, tally.Balance), "overdraw accepted")
	assert.Equal(t, int64(60), tally.Get("addr-1", 1, tally.Balance), "balance after overdraw")

	// pending may go negative
	assert.True(t, tally.Update("addr-1", 1, -25, tally.Pending), "pending debit")
	assert.Equal(t, int64(-25), tally.Get("addr-1", 1, tally.Pending), "pending")

	// buckets are independent
	assert.True(t, tally.Update("addr-1", 1, 10, tally.SellofferReserve), "reserve")
	assert.Equal(t, int64(60), tally.Get("addr-1", 1, tally.Balance), "balance unchanged")
	assert.Equal(t, int64(10), tally.Get("addr-1", 1, tally.SellofferReserve), "reserve")
}

func TestFull(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("addr-1", 7, 100, tally.Balance)
	tally.Update("addr-1", 7, 20, tally.AcceptReserve)
	tally.Update("addr-1", 7, 5, tally.MetadexReserve)

	b := tally.Full("addr-1", 7)
	assert.Equal(t, int64(100), b.Available, "available")
	assert.Equal(t, int64(20), b.AcceptReserve, "accept reserve")
	assert.Equal(t, int64(5), b.MetadexReserve, "metadex reserve")
	assert.False(t, b.IsEmpty(), "non-empty record")

	assert.True(t, tally.Full("addr-2", 7).IsEmpty(), "missing record")
}

func TestCanonicalOrder(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("charlie", 3, 1, tally.Balance)
	tally.Update("alpha", 2, 1, tally.Balance)
	tally.Update("alpha", 9, 1, tally.Balance)
	tally.Update("bravo", 1, 1, tally.Balance)
	tally.Update("alpha", 5, 1, tally.Balance)

	// pending-only records do not appear
	tally.Update("delta", 4, -3, tally.Pending)

	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, tally.Addresses(), "addresses")
	assert.Equal(t, []uint32{2, 5, 9}, tally.IterateProperties("alpha"), "properties")

	type seen struct {
		address    string
		propertyID uint32
	}
	actual := []seen{}
	tally.IterateAll(func(address string, propertyID uint32, balances tally.Balances) {
		actual = append(actual, seen{address, propertyID})
	})
	expected := []seen{
		{"alpha", 2},
		{"alpha", 5},
		{"alpha", 9},
		{"bravo", 1},
		{"charlie", 3},
	}
	assert.Equal(t, expected, actual, "iteration order")
}

func TestTotalTokens(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("addr-1", 1, 100, tally.Balance)
	tally.Update("addr-1", 1, 30, tally.SellofferReserve)
	tally.Update("addr-2", 1, 50, tally.MetadexReserve)
	tally.Update("addr-3", 2, 999, tally.Balance)

	// pending is wallet-local and excluded from totals
	tally.Update("addr-4", 1, -10, tally.Pending)

	total, owners := tally.TotalTokens(1)
	assert.Equal(t, int64(180), total, "total")
	assert.Equal(t, int64(2), owners, "owners")

	total, owners = tally.TotalTokens(3)
	assert.Equal(t, int64(0), total, "missing property total")
	assert.Equal(t, int64(0), owners, "missing property owners")
}

func TestJournalUnwind(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("addr-1", 1, 100, tally.Balance)

	j := &tally.Journal{}
	assert.True(t, j.Update("addr-1", 1, -60, tally.Balance), "debit")
	assert.True(t, j.Update("addr-2", 1, 60, tally.Balance), "credit")
	assert.True(t, j.Update("addr-2", 1, -60, tally.Balance), "move to reserve")
	assert.True(t, j.Update("addr-2", 1, 60, tally.SellofferReserve), "reserve")
	assert.Equal(t, 4, j.Size(), "journal size")

	// a rejected update is not recorded
	assert.False(t, j.Update("addr-2", 1, -1, tally.Balance), "overdraw accepted")
	assert.Equal(t, 4, j.Size(), "journal size after rejection")

	j.Unwind()
	assert.Equal(t, int64(100), tally.Get("addr-1", 1, tally.Balance), "sender restored")
	assert.Equal(t, int64(0), tally.Get("addr-2", 1, tally.Balance), "receiver restored")
	assert.Equal(t, int64(0), tally.Get("addr-2", 1, tally.SellofferReserve), "reserve restored")
	assert.Equal(t, 0, j.Size(), "journal cleared")
}

func TestReset(t *testing.T) {
	setup(t)
	defer teardown(t)

	tally.Update("addr-1", 1, 100, tally.Balance)
	tally.Reset()
	assert.Equal(t, int64(0), tally.Get("addr-1", 1, tally.Balance), "balance survived reset")
	assert.Empty(t, tally.Addresses(), "addresses survived reset")
}
