// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package property

import (
	"encoding/binary"

	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/storage"
)

// watermark key in the globals pool
var watermarkKey = []byte("watermark")

func propertyKey(propertyID uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, propertyID)
	return key
}

func historyKey(block digest.Digest, propertyID uint32) []byte {
	key := make([]byte, digest.Length+4)
	copy(key, block[:])
	binary.BigEndian.PutUint32(key[digest.Length:], propertyID)
	return key
}

// Implied - the compiled-in genesis token entries
//
// ids 1 and 2 are never stored; every lookup returns a fresh copy
func Implied(propertyID uint32) *Entry {
	switch propertyID {
	case GenesisPropertyID:
		return &Entry{
			Issuer:       "",
			PropertyType: TypeDivisible,
			Category:     "N/A",
			Subcategory:  "N/A",
			Name:         "Meta",
			URL:          "",
			Data:         "main ecosystem genesis token",
			Fixed:        true,
		}
	case TestGenesisPropertyID:
		return &Entry{
			Issuer:       "",
			PropertyType: TypeDivisible,
			Category:     "N/A",
			Subcategory:  "N/A",
			Name:         "Test Meta",
			URL:          "",
			Data:         "test ecosystem genesis token",
			Fixed:        true,
		}
	default:
		return nil
	}
}

// raw read through the transaction overlay when one is active
func readEntry(trx *storage.Transaction, propertyID uint32) []byte {
	key := propertyKey(propertyID)
	if nil != trx {
		return trx.Get(storage.Pool.Properties, key)
	}
	return storage.Pool.Properties.Get(key)
}

// Put - store a new entry, allocating the next id in the ecosystem
//
// the creation tx index is written with it; on any later error in the
// same transaction the caller aborts the whole batch and the id
// allocation is retracted by the abort path in the ledger
func Put(trx *storage.Transaction, ecosystem uint8, entry *Entry) (uint32, error) {
	err := entry.Validate()
	if nil != err {
		return 0, err
	}

	globalData.Lock()
	propertyID, err := allocatePropertyID(ecosystem)
	globalData.Unlock()
	if nil != err {
		return 0, err
	}

	packed := entry.pack()
	key := propertyKey(propertyID)

	// the tx index value is the same 4 byte big endian id
	if nil != trx {
		trx.Put(storage.Pool.Properties, key, packed)
		trx.Put(storage.Pool.PropertyTxIndex, entry.TxID[:], key)
	} else {
		storage.Pool.Properties.Put(key, packed)
		storage.Pool.PropertyTxIndex.Put(entry.TxID[:], key)
	}

	globalData.log.Infof("created property: %d  name: %q", propertyID, entry.Name)
	return propertyID, nil
}

// Unput - retract the most recent Put after a rejected payload
//
// only valid while the enclosing transaction is still uncommitted
func Unput(trx *storage.Transaction, propertyID uint32, entry *Entry) {
	key := propertyKey(propertyID)
	if nil != trx {
		trx.Delete(storage.Pool.Properties, key)
		trx.Delete(storage.Pool.PropertyTxIndex, entry.TxID[:])
	} else {
		storage.Pool.Properties.Delete(key)
		storage.Pool.PropertyTxIndex.Delete(entry.TxID[:])
	}
	globalData.Lock()
	unallocatePropertyID(propertyID)
	globalData.Unlock()
}

// Update - overwrite an entry, archiving the displaced version
//
// the archive key is the new entry's update block; only the first
// mutation in a block archives, so a rollback of that block restores
// the pre-block version
func Update(trx *storage.Transaction, propertyID uint32, entry *Entry) error {
	if nil != Implied(propertyID) {
		return fault.NotPropertyIssuer
	}

	packed := readEntry(trx, propertyID)
	if nil == packed {
		return fault.PropertyNotFound
	}
	current, err := unpack(packed)
	if nil != err {
		return err
	}

	key := propertyKey(propertyID)
	if current.UpdateBlock != entry.UpdateBlock {
		archive := historyKey(entry.UpdateBlock, propertyID)
		if nil != trx {
			trx.Put(storage.Pool.PropertyHistory, archive, packed)
		} else {
			storage.Pool.PropertyHistory.Put(archive, packed)
		}
	}

	if nil != trx {
		trx.Put(storage.Pool.Properties, key, entry.pack())
	} else {
		storage.Pool.Properties.Put(key, entry.pack())
	}
	return nil
}

// Get - fetch an entry by id
func Get(trx *storage.Transaction, propertyID uint32) (*Entry, error) {
	if entry := Implied(propertyID); nil != entry {
		return entry, nil
	}
	packed := readEntry(trx, propertyID)
	if nil == packed {
		return nil, fault.PropertyNotFound
	}
	return unpack(packed)
}

// Has - check an id exists
func Has(trx *storage.Transaction, propertyID uint32) bool {
	if nil != Implied(propertyID) {
		return true
	}
	return nil != readEntry(trx, propertyID)
}

// FindByTxID - map a creation transaction back to its property id
func FindByTxID(trx *storage.Transaction, txid digest.Digest) (uint32, error) {
	var value []byte
	if nil != trx {
		value = trx.Get(storage.Pool.PropertyTxIndex, txid[:])
	} else {
		value = storage.Pool.PropertyTxIndex.Get(txid[:])
	}
	if 4 != len(value) {
		return 0, fault.PropertyNotFound
	}
	return binary.BigEndian.Uint32(value), nil
}

// IterateAll - run a function over every stored entry, id ascending
//
// the implied genesis entries are not included
func IterateAll(f func(propertyID uint32, entry *Entry) error) error {
	cursor := storage.Pool.Properties.NewFetchCursor()
	return cursor.Map(func(key []byte, value []byte) error {
		if 4 != len(key) {
			return fault.PropertyNotFound
		}
		entry, err := unpack(value)
		if nil != err {
			return err
		}
		return f(binary.BigEndian.Uint32(key), entry)
	})
}

// PopBlock - restore every entry the given block touched
//
// an entry created in the block is deleted outright; one updated in
// the block is replaced by its archived version; an entry whose
// archive row is missing means the store cannot be rolled back and a
// full reparse is required
//
// returns the number of stored entries remaining
func PopBlock(blockHash digest.Digest) (int, error) {
	type affected struct {
		propertyID uint32
		entry      *Entry
	}

	remaining := 0
	touched := []affected{}

	err := IterateAll(func(propertyID uint32, entry *Entry) error {
		remaining += 1
		if entry.UpdateBlock == blockHash {
			touched = append(touched, affected{propertyID, entry})
		}
		return nil
	})
	if nil != err {
		return 0, err
	}

	globalData.Lock()
	defer globalData.Unlock()

	// highest id first: entries created in the block must be retracted
	// topmost first or the id counters cannot step back over them
	for i := len(touched) - 1; i >= 0; i -= 1 {
		a := touched[i]
		key := propertyKey(a.propertyID)
		archive := historyKey(blockHash, a.propertyID)

		previous := storage.Pool.PropertyHistory.Get(archive)
		if nil != previous {
			storage.Pool.Properties.Put(key, previous)
			storage.Pool.PropertyHistory.Delete(archive)
			globalData.log.Infof("rolled back property: %d", a.propertyID)
			continue
		}

		if a.entry.CreationBlock == blockHash {
			storage.Pool.Properties.Delete(key)
			storage.Pool.PropertyTxIndex.Delete(a.entry.TxID[:])
			unallocatePropertyID(a.propertyID)
			remaining -= 1
			globalData.log.Infof("removed property created in popped block: %d", a.propertyID)
			continue
		}

		globalData.log.Criticalf("no archived version for property: %d  block: %s", a.propertyID, blockHash)
		return remaining, fault.MissingPreviousProperty
	}

	return remaining, nil
}

// SetWatermark - record the hash of the last fully applied block
func SetWatermark(trx *storage.Transaction, blockHash digest.Digest) {
	if nil != trx {
		trx.Put(storage.Pool.Globals, watermarkKey, blockHash[:])
	} else {
		storage.Pool.Globals.Put(watermarkKey, blockHash[:])
	}
}

// ClearWatermark - forget the watermark, forcing a full reparse
func ClearWatermark() {
	storage.Pool.Globals.Delete(watermarkKey)
}

// GetWatermark - the hash of the last fully applied block
func GetWatermark() (digest.Digest, error) {
	var blockHash digest.Digest
	value := storage.Pool.Globals.Get(watermarkKey)
	if digest.Length != len(value) {
		return blockHash, fault.WatermarkNotFound
	}
	copy(blockHash[:], value)
	return blockHash, nil
}
