// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package property - the smart-property registry
//
// current entries are stored one per property id; every mutation
// archives the prior version under the mutating block's hash so a
// chain reorganisation can restore it
package property

import (
	"encoding/binary"
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/storage"
)

// globals for this module
type globalDataType struct {
	sync.RWMutex
	log      *logger.L
	nextMain uint32
	nextTest uint32

	// set once during initialise
	initialised bool
}

var globalData globalDataType

// Initialise - rebuild the id counters from the stored entries
//
// storage must already be initialised
func Initialise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}

	globalData.log = logger.New("property")
	globalData.log.Info("starting…")

	globalData.nextMain = FirstMainPropertyID
	globalData.nextTest = FirstTestPropertyID

	cursor := storage.Pool.Properties.NewFetchCursor()
	err := cursor.Map(func(key []byte, value []byte) error {
		if 4 != len(key) {
			globalData.log.Criticalf("corrupt property key: %x", key)
			return fault.PropertyNotFound
		}
		id := binary.BigEndian.Uint32(key)
		if id >= FirstTestPropertyID {
			if id >= globalData.nextTest {
				globalData.nextTest = id + 1
			}
		} else if id >= FirstMainPropertyID && id < 0x80000000 {
			if id >= globalData.nextMain {
				globalData.nextMain = id + 1
			}
		}
		return nil
	})
	if nil != err {
		return err
	}

	globalData.log.Infof("next ids: main: %d  test: %d", globalData.nextMain, globalData.nextTest)

	globalData.initialised = true
	return nil
}

// Finalise - shut down the registry
func Finalise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}

	globalData.log.Info("shutting down…")
	globalData.log.Flush()

	globalData.initialised = false
	return nil
}

// Wipe - erase every stored entry and archive, resetting the counters
//
// a replay from genesis must not see properties from the previous
// pass or it would assign different ids
func Wipe() {
	globalData.Lock()
	defer globalData.Unlock()

	storage.Pool.Properties.Wipe()
	storage.Pool.PropertyHistory.Wipe()
	storage.Pool.PropertyTxIndex.Wipe()

	globalData.nextMain = FirstMainPropertyID
	globalData.nextTest = FirstTestPropertyID

	globalData.log.Warn("registry wiped")
}

// PeekNextPropertyID - the id the next create in an ecosystem will get
func PeekNextPropertyID(ecosystem uint8) uint32 {
	globalData.RLock()
	defer globalData.RUnlock()

	if EcosystemTest == ecosystem {
		return globalData.nextTest
	}
	return globalData.nextMain
}

// allocate the next id, caller must hold the write lock
func allocatePropertyID(ecosystem uint8) (uint32, error) {
	switch ecosystem {
	case EcosystemMain:
		id := globalData.nextMain
		if id >= 0x80000000 {
			return 0, fault.PropertyIDAlreadyExists
		}
		globalData.nextMain = id + 1
		return id, nil
	case EcosystemTest:
		id := globalData.nextTest
		globalData.nextTest = id + 1
		return id, nil
	default:
		return 0, fault.InvalidEcosystem
	}
}

// undo the most recent allocation, caller must hold the write lock
func unallocatePropertyID(propertyID uint32) {
	if propertyID >= FirstTestPropertyID {
		if propertyID+1 == globalData.nextTest {
			globalData.nextTest = propertyID
		}
	} else if propertyID+1 == globalData.nextMain {
		globalData.nextMain = propertyID
	}
}
