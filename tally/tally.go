// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package tally

import (
	"sort"
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/metalayer-inc/metad/fault"
)

// Type - the balance bucket selector
type Type int

// bucket ordinals are part of the snapshot format, do not renumber
const (
	Balance          Type = 0
	SellofferReserve Type = 1
	AcceptReserve    Type = 2
	Pending          Type = 3
	MetadexReserve   Type = 4
	typeCount             = 5
)

// Balances - one full balance vector
type Balances struct {
	Available        int64
	SellofferReserve int64
	AcceptReserve    int64
	Pending          int64
	MetadexReserve   int64
}

// one record per (address, property)
type record [typeCount]int64

// globals for this module
type globalDataType struct {
	sync.RWMutex
	log     *logger.L
	tallies map[string]map[uint32]*record

	// set once during initialise
	initialised bool
}

var globalData globalDataType

// Initialise - set up the in-memory tally map
func Initialise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}

	globalData.log = logger.New("tally")
	globalData.log.Info("starting…")

	globalData.tallies = make(map[string]map[uint32]*record)
	globalData.initialised = true
	return nil
}

// Finalise - shut down the tally map
func Finalise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.initialised {
		return fault.NotInitialised
	}

	globalData.log.Info("shutting down…")
	globalData.log.Flush()

	globalData.tallies = nil
	globalData.initialised = false
	return nil
}

// Reset - drop all balances
//
// used when reloading state from a snapshot
func Reset() {
	globalData.Lock()
	globalData.tallies = make(map[string]map[uint32]*record)
	globalData.Unlock()
}

// Update - add a signed amount to one bucket
//
// returns false and leaves the bucket untouched if the result would be
// negative, except for the pending bucket which may go negative
func Update(address string, propertyID uint32, amount int64, which Type) bool {
	if which < 0 || which >= typeCount {
		return false
	}

	globalData.Lock()
	defer globalData.Unlock()

	props := globalData.tallies[address]
	if nil == props {
		props = make(map[uint32]*record)
		globalData.tallies[address] = props
	}
	rec := props[propertyID]
	if nil == rec {
		rec = &record{}
		props[propertyID] = rec
	}

	now := rec[which] + amount
	if Pending != which && now < 0 {
		return false
	}
	rec[which] = now
	return true
}

// Get - read one bucket, zero if absent
func Get(address string, propertyID uint32, which Type) int64 {
	if which < 0 || which >= typeCount {
		return 0
	}

	globalData.RLock()
	defer globalData.RUnlock()

	if props := globalData.tallies[address]; nil != props {
		if rec := props[propertyID]; nil != rec {
			return rec[which]
		}
	}
	return 0
}

// Full - read the whole balance vector for an (address, property)
func Full(address string, propertyID uint32) Balances {
	globalData.RLock()
	defer globalData.RUnlock()

	if props := globalData.tallies[address]; nil != props {
		if rec := props[propertyID]; nil != rec {
			return asBalances(rec)
		}
	}
	return Balances{}
}

func asBalances(rec *record) Balances {
	return Balances{
		Available:        rec[Balance],
		SellofferReserve: rec[SellofferReserve],
		AcceptReserve:    rec[AcceptReserve],
		Pending:          rec[Pending],
		MetadexReserve:   rec[MetadexReserve],
	}
}

// IsEmpty - true when every bucket except pending is zero
func (b Balances) IsEmpty() bool {
	return 0 == b.Available &&
		0 == b.SellofferReserve &&
		0 == b.AcceptReserve &&
		0 == b.MetadexReserve
}

// IterateProperties - property ids held by an address, ascending
func IterateProperties(address string) []uint32 {
	globalData.RLock()
	defer globalData.RUnlock()

	props := globalData.tallies[address]
	ids := make([]uint32, 0, len(props))
	for id := range props {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Addresses - all addresses with any record, lexicographic order
func Addresses() []string {
	globalData.RLock()
	defer globalData.RUnlock()

	addresses := make([]string, 0, len(globalData.tallies))
	for address := range globalData.tallies {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)
	return addresses
}

// IterateAll - run a function over every non-empty balance vector in
// canonical order: addresses lexicographic, properties ascending
//
// the pending bucket does not make a record non-empty
func IterateAll(f func(address string, propertyID uint32, balances Balances)) {
	for _, address := range Addresses() {
		for _, propertyID := range IterateProperties(address) {
			balances := Full(address, propertyID)
			if balances.IsEmpty() {
				continue
			}
			f(address, propertyID, balances)
		}
	}
}

// TotalTokens - sum of available and all reserves over every address
//
// also returns the number of distinct holding addresses
func TotalTokens(propertyID uint32) (int64, int64) {
	globalData.RLock()
	defer globalData.RUnlock()

	total := int64(0)
	owners := int64(0)
	for _, props := range globalData.tallies {
		rec := props[propertyID]
		if nil == rec {
			continue
		}
		sum := rec[Balance] + rec[SellofferReserve] + rec[AcceptReserve] + rec[MetadexReserve]
		if 0 == sum {
			continue
		}
		total += sum
		owners += 1
	}
	return total, owners
}
