// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledger - the block application pipeline
//
// the host feeds decoded payloads in chain order between BlockBegin
// and BlockEnd; one lock serialises every state mutation, matching the
// single-writer discipline of block processing
//
// storage and logger must be initialised by the host first
package ledger

import (
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/metalayer-inc/metad/crowdsale"
	"github.com/metalayer-inc/metad/dex"
	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/mdex"
	"github.com/metalayer-inc/metad/mode"
	"github.com/metalayer-inc/metad/property"
	"github.com/metalayer-inc/metad/snapshot"
	"github.com/metalayer-inc/metad/storage"
	"github.com/metalayer-inc/metad/tally"
	"github.com/metalayer-inc/metad/txindex"
	"github.com/metalayer-inc/metad/uniquetoken"
)

// globals for this module
type globalDataType struct {
	sync.RWMutex
	log *logger.L
	trx *storage.Transaction

	// the block currently being applied
	height    uint32
	blockHash digest.Digest
	blockTime int64
	txIndex   uint32
	inBlock   bool

	// current protocol alert, empty message when none
	alertType    uint32
	alertExpiry  uint32
	alertMessage string

	// set once during initialise
	initialised bool
}

var globalData globalDataType

// Initialise - start every state engine and reload the newest usable
// checkpoint
//
// a checkpoint that fails verification is discarded and the next older
// one is tried; with no usable checkpoint the state starts empty and
// the watermark is cleared so the host reparses from genesis
func Initialise(snapshotDirectory string) error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}

	globalData.log = logger.New("ledger")
	globalData.log.Info("starting…")

	for _, initialise := range []func() error{
		mode.Initialise,
		property.Initialise,
		tally.Initialise,
		dex.Initialise,
		mdex.Initialise,
		crowdsale.Initialise,
	} {
		err := initialise()
		if nil != err {
			return err
		}
	}
	err := snapshot.Initialise(snapshotDirectory)
	if nil != err {
		return err
	}

	globalData.trx = storage.NewTransaction()

	heights := snapshot.List()
	loaded := false
	for i := len(heights) - 1; i >= 0; i -= 1 {
		blockHash, err := snapshot.Load(heights[i])
		if nil == err {
			property.SetWatermark(nil, blockHash)
			mode.Set(mode.Normal)
			loaded = true
			break
		}
		globalData.log.Errorf("discarding unusable checkpoint: height: %d  error: %s", heights[i], err)
		snapshot.Remove(heights[i])
	}
	if !loaded {
		property.Wipe()
		uniquetoken.Wipe()
		txindex.Wipe()
		property.ClearWatermark()
		globalData.log.Warn("no usable checkpoint, full reparse required")
	}

	globalData.initialised = true
	return nil
}

// Finalise - shut down every state engine
func Finalise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}

	globalData.log.Info("shutting down…")
	globalData.log.Flush()

	snapshot.Finalise()
	crowdsale.Finalise()
	mdex.Finalise()
	dex.Finalise()
	tally.Finalise()
	property.Finalise()
	mode.Finalise()

	globalData.trx = nil
	globalData.initialised = false
	return nil
}

// GetAlert - the live protocol alert, if any
func GetAlert() (uint32, uint32, string, bool) {
	globalData.RLock()
	defer globalData.RUnlock()

	if 0 == len(globalData.alertMessage) {
		return 0, 0, "", false
	}
	return globalData.alertType, globalData.alertExpiry, globalData.alertMessage, true
}
