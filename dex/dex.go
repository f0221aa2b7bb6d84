// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package dex - the token-for-native-coin market
//
// a seller publishes at most one offer per property; a buyer reserves
// part of it with an accept and settles by paying native coin on the
// base chain within the offer's block time limit
package dex

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/tally"
)

// Offer - one open sell offer
type Offer struct {
	TxID            digest.Digest
	Seller          string
	PropertyID      uint32
	AmountOriginal  int64
	CoinDesired     int64
	MinFee          int64
	BlockTimeLimit  uint8
	AmountRemaining int64
}

// Accept - one buyer's reservation against an offer
type Accept struct {
	OfferTxID       digest.Digest
	Seller          string
	PropertyID      uint32
	Buyer           string
	Amount          int64
	AmountRemaining int64
	AcceptBlock     uint32
	BlockTimeLimit  uint8
}

// Purchase - the result of one settled native-coin payment
type Purchase struct {
	OfferTxID  digest.Digest
	Seller     string
	Buyer      string
	PropertyID uint32
	Amount     int64
}

// globals for this module
type globalDataType struct {
	sync.RWMutex
	log     *logger.L
	offers  map[string]*Offer
	accepts map[string]*Accept

	// set once during initialise
	initialised bool
}

var globalData globalDataType

func offerKey(seller string, propertyID uint32) string {
	return fmt.Sprintf("%s_%d", seller, propertyID)
}

func acceptKey(seller string, propertyID uint32, buyer string) string {
	return fmt.Sprintf("%s_%d+%s", seller, propertyID, buyer)
}

// Initialise - set up the offer and accept maps
func Initialise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}

	globalData.log = logger.New("dex")
	globalData.log.Info("starting…")

	globalData.offers = make(map[string]*Offer)
	globalData.accepts = make(map[string]*Accept)
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

	globalData.offers = nil
	globalData.accepts = nil
	globalData.initialised = false
	return nil
}

// Reset - drop all offers and accepts
//
// used when reloading state from a snapshot
func Reset() {
	globalData.Lock()
	globalData.offers = make(map[string]*Offer)
	globalData.accepts = make(map[string]*Accept)
	globalData.Unlock()
}

// floor(a*b/c) without intermediate overflow
func mulDiv(a int64, b int64, c int64) int64 {
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Quo(r, big.NewInt(c))
	return r.Int64()
}

// CreateOffer - publish a sell offer, reserving the offered tokens
//
// an offer above the seller's spendable balance is clamped to it; the
// possibly amended amount is returned for the transaction index
func CreateOffer(journal *tally.Journal, offer *Offer) (int64, error) {
	globalData.Lock()
	defer globalData.Unlock()

	key := offerKey(offer.Seller, offer.PropertyID)
	if _, ok := globalData.offers[key]; ok {
		return 0, fault.OfferAlreadyExists
	}

	available := tally.Get(offer.Seller, offer.PropertyID, tally.Balance)
	amount := offer.AmountOriginal
	if amount > available {
		amount = available
	}
	if amount <= 0 {
		return 0, fault.InsufficientBalance
	}

	if !journal.Update(offer.Seller, offer.PropertyID, -amount, tally.Balance) {
		return 0, fault.InsufficientBalance
	}
	journal.Update(offer.Seller, offer.PropertyID, amount, tally.SellofferReserve)

	stored := *offer
	stored.AmountOriginal = amount
	stored.AmountRemaining = amount
	globalData.offers[key] = &stored

	globalData.log.Infof("offer created: %s  property: %d  amount: %d", offer.Seller, offer.PropertyID, amount)
	return amount, nil
}

// UpdateOffer - replace an existing offer
//
// the unaccepted remainder of the old offer is released first, then
// the replacement is reserved like a fresh offer
func UpdateOffer(journal *tally.Journal, offer *Offer) (int64, error) {
	err := CancelOffer(journal, offer.Seller, offer.PropertyID)
	if nil != err {
		return 0, err
	}
	return CreateOffer(journal, offer)
}

// CancelOffer - withdraw an offer, releasing its remaining reserve
//
// tokens already locked by open accepts stay in the accept reserve
func CancelOffer(journal *tally.Journal, seller string, propertyID uint32) error {
	globalData.Lock()
	defer globalData.Unlock()

	key := offerKey(seller, propertyID)
	offer, ok := globalData.offers[key]
	if !ok {
		return fault.OfferNotFound
	}

	if offer.AmountRemaining > 0 {
		journal.Update(seller, propertyID, -offer.AmountRemaining, tally.SellofferReserve)
		journal.Update(seller, propertyID, offer.AmountRemaining, tally.Balance)
	}
	delete(globalData.offers, key)
	return nil
}

// AcceptOffer - reserve part of an offer for one buyer
//
// the accepted amount is clamped to the offer's remainder and moved
// from the seller's offer reserve to the accept reserve; one accept
// per buyer and offer
func AcceptOffer(journal *tally.Journal, seller string, propertyID uint32, buyer string, amount int64, block uint32) (int64, error) {
	globalData.Lock()
	defer globalData.Unlock()

	if amount <= 0 {
		return 0, fault.InvalidAmount
	}

	offer, ok := globalData.offers[offerKey(seller, propertyID)]
	if !ok {
		return 0, fault.OfferNotFound
	}

	key := acceptKey(seller, propertyID, buyer)
	if _, ok := globalData.accepts[key]; ok {
		return 0, fault.AcceptAlreadyExists
	}

	if amount > offer.AmountRemaining {
		amount = offer.AmountRemaining
	}
	if amount <= 0 {
		return 0, fault.InsufficientBalance
	}

	journal.Update(seller, propertyID, -amount, tally.SellofferReserve)
	journal.Update(seller, propertyID, amount, tally.AcceptReserve)
	offer.AmountRemaining -= amount

	globalData.accepts[key] = &Accept{
		OfferTxID:       offer.TxID,
		Seller:          seller,
		PropertyID:      propertyID,
		Buyer:           buyer,
		Amount:          amount,
		AmountRemaining: amount,
		AcceptBlock:     block,
		BlockTimeLimit:  offer.BlockTimeLimit,
	}
	return amount, nil
}

// ProcessPayment - settle a native-coin payment from buyer to seller
//
// the payment is matched against the buyer's oldest live accept for
// that seller; purchased tokens move from the seller's accept reserve
// to the buyer's spendable balance
func ProcessPayment(journal *tally.Journal, seller string, buyer string, amountPaid int64, block uint32) (*Purchase, error) {
	globalData.Lock()
	defer globalData.Unlock()

	if amountPaid <= 0 {
		return nil, fault.InvalidAmount
	}

	// same-block ties break on property id so every node settles the
	// same accept
	var accept *Accept
	for _, a := range globalData.accepts {
		if a.Seller != seller || a.Buyer != buyer {
			continue
		}
		if isExpired(a, block) {
			continue
		}
		if nil == accept || a.AcceptBlock < accept.AcceptBlock ||
			(a.AcceptBlock == accept.AcceptBlock && a.PropertyID < accept.PropertyID) {
			accept = a
		}
	}
	if nil == accept {
		return nil, fault.AcceptNotFound
	}

	offer, ok := globalData.offers[offerKey(seller, accept.PropertyID)]
	var units int64
	if ok && offer.CoinDesired > 0 {
		units = mulDiv(amountPaid, offer.AmountOriginal, offer.CoinDesired)
	} else {
		// offer already withdrawn: settle the whole reservation
		units = accept.AmountRemaining
	}
	if units > accept.AmountRemaining {
		units = accept.AmountRemaining
	}
	if units <= 0 {
		return nil, fault.InvalidAmount
	}

	journal.Update(seller, accept.PropertyID, -units, tally.AcceptReserve)
	journal.Update(buyer, accept.PropertyID, units, tally.Balance)

	accept.AmountRemaining -= units
	if 0 == accept.AmountRemaining {
		delete(globalData.accepts, acceptKey(seller, accept.PropertyID, buyer))
	}

	globalData.log.Infof("purchase: %s from %s  property: %d  amount: %d", buyer, seller, accept.PropertyID, units)
	return &Purchase{
		OfferTxID:  accept.OfferTxID,
		Seller:     seller,
		Buyer:      buyer,
		PropertyID: accept.PropertyID,
		Amount:     units,
	}, nil
}

func isExpired(a *Accept, block uint32) bool {
	return block > a.AcceptBlock && block-a.AcceptBlock >= uint32(a.BlockTimeLimit)
}

// ExpireAccepts - drop accepts past their block time limit
//
// the unsettled reserve returns to the offer when it still exists,
// otherwise to the seller's spendable balance
func ExpireAccepts(journal *tally.Journal, block uint32) int {
	globalData.Lock()
	defer globalData.Unlock()

	expired := 0
	for key, a := range globalData.accepts {
		if !isExpired(a, block) {
			continue
		}
		if a.AmountRemaining > 0 {
			journal.Update(a.Seller, a.PropertyID, -a.AmountRemaining, tally.AcceptReserve)
			offer, ok := globalData.offers[offerKey(a.Seller, a.PropertyID)]
			if ok {
				journal.Update(a.Seller, a.PropertyID, a.AmountRemaining, tally.SellofferReserve)
				offer.AmountRemaining += a.AmountRemaining
			} else {
				journal.Update(a.Seller, a.PropertyID, a.AmountRemaining, tally.Balance)
			}
		}
		delete(globalData.accepts, key)
		expired += 1
	}
	if expired > 0 {
		globalData.log.Infof("expired accepts: %d", expired)
	}
	return expired
}

// GetOffer - fetch one offer
func GetOffer(seller string, propertyID uint32) (Offer, bool) {
	globalData.RLock()
	defer globalData.RUnlock()

	offer, ok := globalData.offers[offerKey(seller, propertyID)]
	if !ok {
		return Offer{}, false
	}
	return *offer, true
}

// HasOffer - check a seller has an open offer on a property
func HasOffer(seller string, propertyID uint32) bool {
	_, ok := GetOffer(seller, propertyID)
	return ok
}

// GetAccept - fetch one accept
func GetAccept(seller string, propertyID uint32, buyer string) (Accept, bool) {
	globalData.RLock()
	defer globalData.RUnlock()

	accept, ok := globalData.accepts[acceptKey(seller, propertyID, buyer)]
	if !ok {
		return Accept{}, false
	}
	return *accept, true
}

// OffersSorted - all open offers ordered by txid ascending
func OffersSorted() []Offer {
	globalData.RLock()
	defer globalData.RUnlock()

	offers := make([]Offer, 0, len(globalData.offers))
	for _, offer := range globalData.offers {
		offers = append(offers, *offer)
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].TxID.Cmp(offers[j].TxID) < 0
	})
	return offers
}

// AcceptsSorted - all open accepts ordered by (offer txid, buyer)
func AcceptsSorted() []Accept {
	globalData.RLock()
	defer globalData.RUnlock()

	accepts := make([]Accept, 0, len(globalData.accepts))
	for _, accept := range globalData.accepts {
		accepts = append(accepts, *accept)
	}
	sort.Slice(accepts, func(i, j int) bool {
		c := accepts[i].OfferTxID.Cmp(accepts[j].OfferTxID)
		if 0 != c {
			return c < 0
		}
		return accepts[i].Buyer < accepts[j].Buyer
	})
	return accepts
}

// Restore - insert records directly, for snapshot load
func Restore(offers []Offer, accepts []Accept) {
	globalData.Lock()
	defer globalData.Unlock()

	for i := range offers {
		offer := offers[i]
		globalData.offers[offerKey(offer.Seller, offer.PropertyID)] = &offer
	}
	for i := range accepts {
		accept := accepts[i]
		globalData.accepts[acceptKey(accept.Seller, accept.PropertyID, accept.Buyer)] = &accept
	}
}
