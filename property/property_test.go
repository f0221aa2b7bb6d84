// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package property_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitmark-inc/logger"

	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/property"
	"github.com/metalayer-inc/metad/storage"
)

const (
	testingDirName   = "testing"
	databaseFileName = testingDirName + "/test"
)

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

	err = storage.Initialise(databaseFileName)
	if nil != err {
		t.Fatalf("storage initialise error: %s", err)
	}

	err = property.Initialise()
	if nil != err {
		t.Fatalf("property initialise error: %s", err)
	}
}

func teardown(t *testing.T) {
	property.Finalise()
	storage.Finalise()
	logger.Finalise()
	removeFiles()
}

func removeFiles() {
	os.RemoveAll(testingDirName)
}

func makeEntry(name string, issuer string, creationTx byte, block byte) *property.Entry {
	txid := digest.Digest{}
	txid[0] = creationTx
	blockHash := digest.Digest{}
	blockHash[0] = block
	return &property.Entry{
		Issuer:        issuer,
		PropertyType:  property.TypeIndivisible,
		Category:      "test",
		Subcategory:   "test",
		Name:          name,
		NumTokens:     1000,
		TxID:          txid,
		CreationBlock: blockHash,
		UpdateBlock:   blockHash,
		Fixed:         true,
	}
}

func TestImplied(t *testing.T) {
	setup(t)
	defer teardown(t)

	one, err := property.Get(nil, property.GenesisPropertyID)
	assert.NoError(t, err, "get genesis")
	assert.True(t, one.IsDivisible(), "genesis divisibility")

	two, err := property.Get(nil, property.TestGenesisPropertyID)
	assert.NoError(t, err, "get test genesis")
	assert.True(t, two.IsDivisible(), "test genesis divisibility")

	assert.True(t, property.Has(nil, 1), "has genesis")
	assert.True(t, property.Has(nil, 2), "has test genesis")
	assert.False(t, property.Has(nil, 3), "has unassigned id")
}

func TestPutAndCounters(t *testing.T) {
	setup(t)
	defer teardown(t)

	assert.Equal(t, uint32(3), property.PeekNextPropertyID(property.EcosystemMain), "first main id")
	assert.Equal(t, uint32(0x80000003), property.PeekNextPropertyID(property.EcosystemTest), "first test id")

	id, err := property.Put(nil, property.EcosystemMain, makeEntry("Alpha", "carol", 0x11, 0x01))
	assert.NoError(t, err, "put")
	assert.Equal(t, uint32(3), id, "first assigned id")

	id, err = property.Put(nil, property.EcosystemTest, makeEntry("Beta", "carol", 0x12, 0x01))
	assert.NoError(t, err, "put test")
	assert.Equal(t, uint32(0x80000003), id, "first test id")

	assert.Equal(t, uint32(4), property.PeekNextPropertyID(property.EcosystemMain), "next main id")
	assert.Equal(t, uint32(0x80000004), property.PeekNextPropertyID(property.EcosystemTest), "next test id")

	entry, err := property.Get(nil, 3)
	assert.NoError(t, err, "get")
	assert.Equal(t, "Alpha", entry.Name, "name")
	assert.Equal(t, "carol", entry.Issuer, "issuer")

	// counters must survive a registry restart
	property.Finalise()
	assert.NoError(t, property.Initialise(), "reinitialise")
	assert.Equal(t, uint32(4), property.PeekNextPropertyID(property.EcosystemMain), "main id after restart")
	assert.Equal(t, uint32(0x80000004), property.PeekNextPropertyID(property.EcosystemTest), "test id after restart")
}

func TestFindByTxID(t *testing.T) {
	setup(t)
	defer teardown(t)

	entry := makeEntry("Gamma", "dave", 0x21, 0x01)
	id, err := property.Put(nil, property.EcosystemMain, entry)
	assert.NoError(t, err, "put")

	found, err := property.FindByTxID(nil, entry.TxID)
	assert.NoError(t, err, "find")
	assert.Equal(t, id, found, "found id")

	_, err = property.FindByTxID(nil, digest.Digest{0xff})
	assert.Equal(t, fault.PropertyNotFound, err, "unknown txid")
}

func TestUpdateArchivesOnce(t *testing.T) {
	setup(t)
	defer teardown(t)

	entry := makeEntry("Delta", "erin", 0x31, 0x01)
	id, err := property.Put(nil, property.EcosystemMain, entry)
	assert.NoError(t, err, "put")

	blockTwo := digest.Digest{0x02}

	first := *entry
	first.Issuer = "frank"
	first.UpdateBlock = blockTwo
	assert.NoError(t, property.Update(nil, id, &first), "first update")

	// second touch in the same block must not displace the archive
	second := first
	second.Issuer = "grace"
	assert.NoError(t, property.Update(nil, id, &second), "second update")

	got, err := property.Get(nil, id)
	assert.NoError(t, err, "get")
	assert.Equal(t, "grace", got.Issuer, "current issuer")

	remaining, err := property.PopBlock(blockTwo)
	assert.NoError(t, err, "pop block")
	assert.Equal(t, 1, remaining, "remaining entries")

	got, err = property.Get(nil, id)
	assert.NoError(t, err, "get after pop")
	assert.Equal(t, "erin", got.Issuer, "restored issuer")
}

func TestPopBlockRemovesCreated(t *testing.T) {
	setup(t)
	defer teardown(t)

	popBlock := digest.Digest{0x02}

	_, err := property.Put(nil, property.EcosystemMain, makeEntry("Keep", "x", 0x41, 0x01))
	assert.NoError(t, err, "put kept")

	created := makeEntry("Drop", "y", 0x42, 0x02)
	id, err := property.Put(nil, property.EcosystemMain, created)
	assert.NoError(t, err, "put dropped")
	assert.Equal(t, uint32(4), id, "second id")

	remaining, err := property.PopBlock(popBlock)
	assert.NoError(t, err, "pop block")
	assert.Equal(t, 1, remaining, "remaining entries")

	assert.False(t, property.Has(nil, id), "created entry survived pop")
	_, err = property.FindByTxID(nil, created.TxID)
	assert.Equal(t, fault.PropertyNotFound, err, "tx index survived pop")

	// the id is free again
	assert.Equal(t, uint32(4), property.PeekNextPropertyID(property.EcosystemMain), "id reclaimed")
}

func TestPopBlockRemovesMultipleCreated(t *testing.T) {
	setup(t)
	defer teardown(t)

	popBlock := digest.Digest{0x05}

	idA, err := property.Put(nil, property.EcosystemMain, makeEntry("First", "x", 0x51, 0x05))
	assert.NoError(t, err, "put first")
	assert.Equal(t, uint32(3), idA, "first id")

	idB, err := property.Put(nil, property.EcosystemMain, makeEntry("Second", "y", 0x52, 0x05))
	assert.NoError(t, err, "put second")
	assert.Equal(t, uint32(4), idB, "second id")

	remaining, err := property.PopBlock(popBlock)
	assert.NoError(t, err, "pop block")
	assert.Equal(t, 0, remaining, "remaining entries")

	assert.False(t, property.Has(nil, idA), "first entry survived pop")
	assert.False(t, property.Has(nil, idB), "second entry survived pop")

	// both allocations are retracted, not just the topmost
	assert.Equal(t, uint32(3), property.PeekNextPropertyID(property.EcosystemMain), "ids reclaimed")
}

func TestValidate(t *testing.T) {
	setup(t)
	defer teardown(t)

	bad := makeEntry("Bad", "x", 0x51, 0x01)
	bad.PropertyType = 7
	_, err := property.Put(nil, property.EcosystemMain, bad)
	assert.Equal(t, fault.InvalidPropertyType, err, "bad type accepted")

	replacing := makeEntry("Replacing", "x", 0x52, 0x01)
	replacing.PropertyType = property.TypeIndivisible | property.FlagReplacing
	_, err = property.Put(nil, property.EcosystemMain, replacing)
	assert.Equal(t, fault.PreviousPropertyRequired, err, "replacing without previous accepted")

	long := makeEntry("Long", "x", 0x53, 0x01)
	long.Data = string(make([]byte, 257))
	_, err = property.Put(nil, property.EcosystemMain, long)
	assert.Equal(t, fault.DataTooLong, err, "overlong data accepted")

	_, err = property.Put(nil, 9, makeEntry("Eco", "x", 0x54, 0x01))
	assert.Equal(t, fault.InvalidEcosystem, err, "bad ecosystem accepted")
}

func TestWatermark(t *testing.T) {
	setup(t)
	defer teardown(t)

	_, err := property.GetWatermark()
	assert.Equal(t, fault.WatermarkNotFound, err, "missing watermark")

	mark := digest.NewDigest([]byte("block"))
	property.SetWatermark(nil, mark)

	got, err := property.GetWatermark()
	assert.NoError(t, err, "get watermark")
	assert.Equal(t, mark, got, "watermark")
}

func TestEcosystemHelpers(t *testing.T) {
	setup(t)
	defer teardown(t)

	assert.False(t, property.IsTestEcosystem(1), "genesis")
	assert.True(t, property.IsTestEcosystem(2), "test genesis")
	assert.False(t, property.IsTestEcosystem(3), "main")
	assert.True(t, property.IsTestEcosystem(0x80000003), "test")
	assert.True(t, property.SameEcosystem(1, 3), "main pair")
	assert.False(t, property.SameEcosystem(1, 2), "cross pair")
}
