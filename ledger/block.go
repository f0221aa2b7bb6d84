// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"github.com/metalayer-inc/metad/crowdsale"
	"github.com/metalayer-inc/metad/dex"
	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/mdex"
	"github.com/metalayer-inc/metad/mode"
	"github.com/metalayer-inc/metad/property"
	"github.com/metalayer-inc/metad/snapshot"
	"github.com/metalayer-inc/metad/tally"
	"github.com/metalayer-inc/metad/txindex"
	"github.com/metalayer-inc/metad/uniquetoken"
)

// BlockBegin - open a block for transaction application
//
// the stored watermark must name the parent block; a mismatch means
// the store and the chain have diverged and the host must reparse
func BlockBegin(height uint32, blockHash digest.Digest, previousHash digest.Digest, blockTime int64) error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}
	if globalData.inBlock {
		return fault.AlreadyInitialised
	}

	watermark, err := property.GetWatermark()
	if nil == err && watermark != previousHash {
		globalData.log.Criticalf("watermark: %s  expected parent: %s", watermark, previousHash)
		mode.Set(mode.Reparse)
		return fault.WatermarkMismatch
	}

	err = globalData.trx.Begin()
	if nil != err {
		return err
	}

	globalData.height = height
	globalData.blockHash = blockHash
	globalData.blockTime = blockTime
	globalData.txIndex = 0
	globalData.inBlock = true
	return nil
}

// ProcessPayment - settle an observed native-coin payment
//
// payments are not payloads; a successful settlement is recorded as a
// purchase receipt under the matched offer's transaction
func ProcessPayment(seller string, buyer string, amountPaid int64) error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.inBlock {
		return fault.NotInitialised
	}

	journal := &tally.Journal{}
	purchase, err := dex.ProcessPayment(journal, seller, buyer, amountPaid, globalData.height)
	if nil != err {
		journal.Unwind()
		return err
	}

	txindex.RecordPurchase(globalData.trx, purchase.OfferTxID, txindex.Purchase{
		Buyer:      purchase.Buyer,
		Seller:     purchase.Seller,
		PropertyID: purchase.PropertyID,
		Amount:     purchase.Amount,
		Block:      globalData.height,
	})
	return nil
}

// flush a closed crowdsale into its property entry
//
// the active-map record buffers in-flight participations; the property
// entry is the authoritative version once the sale ends
func flushClosedSale(c *crowdsale.Crowdsale, txidClose digest.Digest, closeEarly bool, timeClosed int64) error {
	entry, err := property.Get(globalData.trx, c.PropertyID)
	if nil != err {
		return err
	}

	entry.CloseEarly = closeEarly
	entry.MaxTokens = c.MaxTokens
	entry.MissedTokens = c.MissedTokens
	entry.TimeClosed = timeClosed
	entry.TxIDClose = txidClose
	for txid, p := range c.Participations {
		t, err := digest.FromHexString(txid)
		if nil != err {
			continue
		}
		entry.AddParticipation(t, p[0], p[1], p[2], p[3])
	}
	entry.UpdateBlock = globalData.blockHash

	return property.Update(globalData.trx, c.PropertyID, entry)
}

// BlockEnd - run the block-end expiries and commit the block durably
//
// any due checkpoint is written before the watermark advances
func BlockEnd(height uint32, blockHash digest.Digest) error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.inBlock {
		return fault.NotInitialised
	}
	if height != globalData.height || blockHash != globalData.blockHash {
		return fault.WatermarkMismatch
	}

	// block-end effects are final, the journal is never unwound
	journal := &tally.Journal{}

	for _, c := range crowdsale.ExpireAll(journal, globalData.blockTime) {
		err := flushClosedSale(c, digest.Digest{}, false, c.Deadline)
		if nil != err {
			return err
		}
	}

	dex.ExpireAccepts(journal, height)

	if 0 != len(globalData.alertMessage) && height >= globalData.alertExpiry {
		globalData.log.Infof("alert expired: %q", globalData.alertMessage)
		globalData.alertType = 0
		globalData.alertExpiry = 0
		globalData.alertMessage = ""
	}

	if 0 == height%snapshot.MaxStateHistory {
		err := snapshot.Save(height, blockHash)
		if nil != err {
			return err
		}
	}

	property.SetWatermark(globalData.trx, blockHash)

	err := globalData.trx.Commit()
	globalData.inBlock = false
	if nil != err {
		globalData.log.Criticalf("block commit failed: %s", err)
		return err
	}

	mode.Set(mode.Normal)
	globalData.log.Infof("block applied: height: %d  transactions: %d", height, globalData.txIndex)
	return nil
}

// AbortBlock - throw away a partially applied block
//
// the in-memory engines cannot be rewound mid-block, so the caller
// must reload a checkpoint (or reparse) before continuing
func AbortBlock() {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.inBlock {
		globalData.trx.Abort()
		globalData.inBlock = false
	}
}

// Disconnect - roll back one block after a chain reorganisation
//
// the transaction index entries of the block are dropped and the
// property registry is restored from its archive; replay-derived state
// is rebuilt from the newest checkpoint below the block
//
// returns the height the state now represents; the host replays the
// chain from the following block
func Disconnect(height uint32, blockHash digest.Digest) (uint32, error) {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return 0, fault.NotInitialised
	}
	if globalData.inBlock {
		globalData.trx.Abort()
		globalData.inBlock = false
	}

	dropped := txindex.DeleteBlock(height)
	globalData.log.Infof("disconnect: height: %d  transactions dropped: %d", height, dropped)

	_, err := property.PopBlock(blockHash)
	if nil != err {
		return 0, err
	}

	for {
		checkpoint, ok := snapshot.LatestAtOrBelow(height - 1)
		if !ok {
			break
		}
		loadedHash, err := snapshot.Load(checkpoint)
		if nil == err {
			property.SetWatermark(nil, loadedHash)
			return checkpoint, nil
		}
		globalData.log.Errorf("discarding unusable checkpoint: height: %d  error: %s", checkpoint, err)
		snapshot.Remove(checkpoint)
	}

	// nothing usable below the fork point: reparse from genesis; the
	// replay must not see stored state from this pass or it would
	// assign different property ids
	property.Wipe()
	uniquetoken.Wipe()
	txindex.Wipe()
	tally.Reset()
	dex.Reset()
	mdex.Reset()
	crowdsale.Reset()
	property.ClearWatermark()
	mode.Set(mode.Reparse)
	return 0, nil
}

// SaveState - write an explicit checkpoint of the current state
func SaveState(height uint32, blockHash digest.Digest) error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}
	return snapshot.Save(height, blockHash)
}
