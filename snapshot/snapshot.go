// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package snapshot - flat-file checkpoints of the in-memory state
//
// one file per category per checkpointed block; each file carries a
// header naming the category, height and block hash and ends with the
// consensus hash of the whole state, so a load can prove it rebuilt
// exactly what was saved
package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/metalayer-inc/metad/consensushash"
	"github.com/metalayer-inc/metad/crowdsale"
	"github.com/metalayer-inc/metad/dex"
	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/mdex"
	"github.com/metalayer-inc/metad/property"
	"github.com/metalayer-inc/metad/tally"
)

// MaxStateHistory - blocks between automatic checkpoints
const MaxStateHistory = 50

// checkpoints kept on disk before pruning
const retainedSnapshots = 3

// category tags, also the file name stems
const (
	tagBalances   = "BALANCES"
	tagOffers     = "OFFERS"
	tagAccepts    = "ACCEPTS"
	tagGlobals    = "GLOBALS"
	tagCrowdsales = "CROWDSALES"
	tagMdexOrders = "MDEXORDERS"
)

var allTags = []string{
	tagBalances,
	tagOffers,
	tagAccepts,
	tagGlobals,
	tagCrowdsales,
	tagMdexOrders,
}

// globals for this module
type globalDataType struct {
	sync.RWMutex
	log       *logger.L
	directory string

	// set once during initialise
	initialised bool
}

var globalData globalDataType

// Initialise - set the checkpoint directory
func Initialise(directory string) error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}

	globalData.log = logger.New("snapshot")
	globalData.log.Info("starting…")

	err := os.MkdirAll(directory, 0700)
	if nil != err {
		return err
	}

	globalData.directory = directory
	globalData.initialised = true
	return nil
}

// Finalise - shut down
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

func fileName(tag string, height uint32) string {
	globalData.RLock()
	defer globalData.RUnlock()
	return filepath.Join(globalData.directory, fmt.Sprintf("%s-%09d.dat", strings.ToLower(tag), height))
}

// write one category file durably: records to a temporary file, fsync,
// then rename into place
func writeCategory(tag string, height uint32, blockHash digest.Digest, stateHash digest.Digest, records func(w io.Writer)) error {
	name := fileName(tag, height)
	temporary := name + ".tmp"

	f, err := os.OpenFile(temporary, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if nil != err {
		return err
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s,%d,%s\n", tag, height, blockHash)
	records(w)
	fmt.Fprintf(w, "%s\n", stateHash)

	err = w.Flush()
	if nil == err {
		err = f.Sync()
	}
	if nil != err {
		f.Close()
		os.Remove(temporary)
		return err
	}
	err = f.Close()
	if nil != err {
		os.Remove(temporary)
		return err
	}
	return os.Rename(temporary, name)
}

// Save - checkpoint the whole state at one block
//
// the caller must hold the engine lock so the categories and the
// trailing consensus hash describe one consistent state
func Save(height uint32, blockHash digest.Digest) error {
	stateHash := consensushash.Hash()

	err := writeCategory(tagBalances, height, blockHash, stateHash, func(w io.Writer) {
		tally.IterateAll(func(address string, propertyID uint32, b tally.Balances) {
			fmt.Fprintf(w, "%s,%d,%d,%d,%d,%d\n",
				address, propertyID, b.Available, b.SellofferReserve, b.AcceptReserve, b.MetadexReserve)
		})
	})
	if nil != err {
		return err
	}

	err = writeCategory(tagOffers, height, blockHash, stateHash, func(w io.Writer) {
		for _, offer := range dex.OffersSorted() {
			fmt.Fprintf(w, "%s,%s,%d,%d,%d,%d,%d,%d\n",
				offer.TxID, offer.Seller, offer.PropertyID, offer.AmountOriginal,
				offer.AmountRemaining, offer.CoinDesired, offer.MinFee, offer.BlockTimeLimit)
		}
	})
	if nil != err {
		return err
	}

	err = writeCategory(tagAccepts, height, blockHash, stateHash, func(w io.Writer) {
		for _, accept := range dex.AcceptsSorted() {
			fmt.Fprintf(w, "%s,%s,%d,%s,%d,%d,%d,%d\n",
				accept.OfferTxID, accept.Seller, accept.PropertyID, accept.Buyer,
				accept.Amount, accept.AmountRemaining, accept.AcceptBlock, accept.BlockTimeLimit)
		}
	})
	if nil != err {
		return err
	}

	err = writeCategory(tagGlobals, height, blockHash, stateHash, func(w io.Writer) {
		fmt.Fprintf(w, "%d,%d\n",
			property.PeekNextPropertyID(property.EcosystemMain),
			property.PeekNextPropertyID(property.EcosystemTest))
	})
	if nil != err {
		return err
	}

	err = writeCategory(tagCrowdsales, height, blockHash, stateHash, func(w io.Writer) {
		for _, sale := range crowdsale.ActiveSorted() {
			fmt.Fprintf(w, "%d,%s,%d,%d,%d,%d,%d,%d,%d,%s,%d,%d",
				sale.PropertyID, sale.Issuer, sale.PropertyDesired, sale.NumTokens,
				sale.Deadline, sale.EarlyBirdBonus, sale.IssuerBonus,
				boolValue(sale.Divisible), boolValue(sale.DesiredDivisible),
				sale.TxID, sale.UserCreated, sale.IssuerCreated)

			txids := make([]string, 0, len(sale.Participations))
			for txid := range sale.Participations {
				txids = append(txids, txid)
			}
			sort.Strings(txids)
			for _, txid := range txids {
				p := sale.Participations[txid]
				fmt.Fprintf(w, ",participation_%s=%d;%d;%d;%d", txid, p[0], p[1], p[2], p[3])
			}
			fmt.Fprintf(w, "\n")
		}
	})
	if nil != err {
		return err
	}

	err = writeCategory(tagMdexOrders, height, blockHash, stateHash, func(w io.Writer) {
		for _, order := range mdex.OpenOrders() {
			fmt.Fprintf(w, "%s,%s,%d,%d,%d,%d,%d,%d,%d\n",
				order.TxID, order.Address, order.Block, order.Idx,
				order.PropertyForSale, order.AmountForSale,
				order.PropertyDesired, order.AmountDesired, order.AmountRemaining)
		}
	})
	if nil != err {
		return err
	}

	globalData.log.Infof("checkpoint written: height: %d  hash: %s", height, stateHash)

	prune()
	return nil
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}

// List - heights with a complete set of category files, ascending
func List() []uint32 {
	globalData.RLock()
	directory := globalData.directory
	globalData.RUnlock()

	counts := make(map[uint32]int)
	entries, err := ioutil.ReadDir(directory)
	if nil != err {
		return nil
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".dat") {
			continue
		}
		parts := strings.SplitN(strings.TrimSuffix(name, ".dat"), "-", 2)
		if 2 != len(parts) {
			continue
		}
		height, err := strconv.ParseUint(parts[1], 10, 32)
		if nil != err {
			continue
		}
		counts[uint32(height)] += 1
	}

	heights := []uint32{}
	for height, n := range counts {
		if len(allTags) == n {
			heights = append(heights, height)
		}
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights
}

// LatestAtOrBelow - the newest complete checkpoint not above a height
func LatestAtOrBelow(height uint32) (uint32, bool) {
	found := uint32(0)
	ok := false
	for _, h := range List() {
		if h <= height {
			found = h
			ok = true
		}
	}
	return found, ok
}

// drop checkpoints beyond the retention count, oldest first
func prune() {
	heights := List()
	for len(heights) > retainedSnapshots {
		height := heights[0]
		heights = heights[1:]
		for _, tag := range allTags {
			os.Remove(fileName(tag, height))
		}
		globalData.log.Infof("pruned checkpoint: height: %d", height)
	}
}

// Remove - delete one checkpoint's files
func Remove(height uint32) {
	for _, tag := range allTags {
		os.Remove(fileName(tag, height))
	}
}
