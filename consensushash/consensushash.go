// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package consensushash - canonical fingerprint of the whole state
//
// the serialization is a fixed contract shared with other
// implementations, so every format string and sort order here is
// consensus critical; records are fed to SHA-256 back to back with no
// delimiter between them
//
// stages, in order:
//  1. balances        "address|propertyid|balance|selloffer_reserve|accept_reserve|metadex_reserve"
//  2. sell offers     "txid|address|propertyid|offeramount|coindesired|minfee|timelimit"
//  3. accepts         "matchedselloffertxid|buyer|acceptamount|acceptamountremaining|acceptblock"
//  4. open orders     "txid|address|propertyidforsale|amountforsale|propertyiddesired|amountdesired|amountremaining"
//  5. crowdsales      "propertyid|propertyiddesired|deadline|usertokens|issuertokens"
//  6. id counters     "nextavailablepropertyidmaineco|nextavailablepropertyidtesteco"
package consensushash

import (
	"crypto/sha256"
	"fmt"

	"github.com/metalayer-inc/metad/crowdsale"
	"github.com/metalayer-inc/metad/dex"
	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/mdex"
	"github.com/metalayer-inc/metad/property"
	"github.com/metalayer-inc/metad/tally"
)

// Hash - compute the consensus hash over the current state
//
// the caller must hold the engine lock so no mutation interleaves
// with the staged iteration
func Hash() digest.Digest {
	h := sha256.New()

	// stage 1: addresses lexicographic, properties ascending, empty
	// records and the pending bucket excluded
	tally.IterateAll(func(address string, propertyID uint32, b tally.Balances) {
		fmt.Fprintf(h, "%s|%d|%d|%d|%d|%d",
			address, propertyID, b.Available, b.SellofferReserve, b.AcceptReserve, b.MetadexReserve)
	})

	// stage 2: txid ascending
	for _, offer := range dex.OffersSorted() {
		fmt.Fprintf(h, "%s|%s|%d|%d|%d|%d|%d",
			offer.TxID, offer.Seller, offer.PropertyID, offer.AmountOriginal,
			offer.CoinDesired, offer.MinFee, offer.BlockTimeLimit)
	}

	// stage 3: (offer txid, buyer) ascending
	for _, accept := range dex.AcceptsSorted() {
		fmt.Fprintf(h, "%s|%s|%d|%d|%d",
			accept.OfferTxID, accept.Buyer, accept.Amount,
			accept.AmountRemaining, accept.AcceptBlock)
	}

	// stage 4: txid ascending
	for _, order := range mdex.OpenOrders() {
		fmt.Fprintf(h, "%s|%s|%d|%d|%d|%d|%d",
			order.TxID, order.Address, order.PropertyForSale, order.AmountForSale,
			order.PropertyDesired, order.AmountDesired, order.AmountRemaining)
	}

	// stage 5: property id ascending
	for _, sale := range crowdsale.ActiveSorted() {
		fmt.Fprintf(h, "%d|%d|%d|%d|%d",
			sale.PropertyID, sale.PropertyDesired, sale.Deadline,
			sale.UserCreated, sale.IssuerCreated)
	}

	// stage 6: once
	fmt.Fprintf(h, "%d|%d",
		property.PeekNextPropertyID(property.EcosystemMain),
		property.PeekNextPropertyID(property.EcosystemTest))

	var result digest.Digest
	copy(result[:], h.Sum(nil))
	return result
}
