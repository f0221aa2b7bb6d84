// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"math"
	"math/big"
	"sort"

	"github.com/metalayer-inc/metad/crowdsale"
	"github.com/metalayer-inc/metad/dex"
	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/mdex"
	"github.com/metalayer-inc/metad/payload"
	"github.com/metalayer-inc/metad/property"
	"github.com/metalayer-inc/metad/tally"
	"github.com/metalayer-inc/metad/txindex"
	"github.com/metalayer-inc/metad/uniquetoken"
)

// ApplyTransaction - apply one decoded payload to the state
//
// every payload is indexed, valid or not; a rejected payload unwinds
// any partial balance updates so the state is exactly as before it
func ApplyTransaction(txid digest.Digest, intent payload.Payload) error {
	globalData.Lock()
	defer globalData.Unlock()

	if !globalData.inBlock {
		return fault.NotInitialised
	}

	idx := globalData.txIndex
	globalData.txIndex += 1

	journal := &tally.Journal{}
	var amount int64
	var err error

	if !payload.IsAllowed(globalData.height, intent.Type()) {
		err = fault.TransactionNotAllowedYet
	} else {
		amount, err = apply(journal, txid, idx, intent)
	}

	if nil != err {
		journal.Unwind()
		txindex.RecordTransaction(globalData.trx, txid, txindex.Record{
			Valid: false,
			Block: globalData.height,
			Type:  intent.Type(),
		})
		globalData.log.Infof("rejected tx: %s  type: %d  error: %s", txid, intent.Type(), err)
		return err
	}

	txindex.RecordTransaction(globalData.trx, txid, txindex.Record{
		Valid:  true,
		Block:  globalData.height,
		Type:   intent.Type(),
		Amount: amount,
	})
	return nil
}

// dispatch on the payload type, returning the possibly amended amount
func apply(journal *tally.Journal, txid digest.Digest, idx uint32, intent payload.Payload) (int64, error) {
	switch p := intent.(type) {
	case *payload.SimpleSendPayload:
		return applySimpleSend(journal, txid, p)
	case *payload.SendToOwnersPayload:
		return applySendToOwners(journal, txid, p)
	case *payload.TradeOfferPayload:
		return applyTradeOffer(journal, txid, p)
	case *payload.DExAcceptPayload:
		return applyDExAccept(journal, p)
	case *payload.MetaDExTradePayload:
		return applyMetaDExTrade(journal, txid, idx, p)
	case *payload.MetaDExCancelPricePayload:
		cancelled, err := mdex.CancelAtPrice(journal, p.Address, p.PropertyForSale, p.AmountForSale, p.PropertyDesired, p.AmountDesired)
		return recordCancellations(txid, cancelled, err)
	case *payload.MetaDExCancelPairPayload:
		cancelled, err := mdex.CancelPair(journal, p.Address, p.PropertyForSale, p.PropertyDesired)
		return recordCancellations(txid, cancelled, err)
	case *payload.MetaDExCancelEcosystemPayload:
		cancelled, err := mdex.CancelEverything(journal, p.Address, property.EcosystemTest == p.Ecosystem)
		return recordCancellations(txid, cancelled, err)
	case *payload.CreateFixedPayload:
		return applyCreateFixed(journal, txid, p)
	case *payload.CreateVariablePayload:
		return applyCreateVariable(txid, p)
	case *payload.CloseCrowdsalePayload:
		return applyCloseCrowdsale(txid, p)
	case *payload.CreateManualPayload:
		return applyCreateManual(txid, p)
	case *payload.GrantPayload:
		return applyGrant(journal, txid, p)
	case *payload.RevokePayload:
		return applyRevoke(journal, txid, p)
	case *payload.UniqueSendPayload:
		return applyUniqueSend(journal, p)
	case *payload.ChangeIssuerPayload:
		return applyChangeIssuer(p)
	case *payload.AlertPayload:
		return applyAlert(p)
	default:
		return 0, fault.TransactionNotAllowedYet
	}
}

// floor(a*b/c) without intermediate overflow
func mulDiv(a int64, b int64, c int64) int64 {
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Quo(r, big.NewInt(c))
	return r.Int64()
}

// 1 + (a*b - 1)/c without intermediate overflow
func ceilMulDiv(a int64, b int64, c int64) int64 {
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Sub(r, big.NewInt(1))
	r.Quo(r, big.NewInt(c))
	return r.Int64() + 1
}

func applySimpleSend(journal *tally.Journal, txid digest.Digest, p *payload.SimpleSendPayload) (int64, error) {
	if p.Amount <= 0 {
		return 0, fault.InvalidAmount
	}
	if !property.Has(globalData.trx, p.PropertyID) {
		return 0, fault.PropertyNotFound
	}
	if !journal.Update(p.Sender, p.PropertyID, -p.Amount, tally.Balance) {
		return 0, fault.InsufficientBalance
	}
	if !journal.Update(p.Receiver, p.PropertyID, p.Amount, tally.Balance) {
		return 0, fault.InvalidAmount
	}

	// a send of the desired property to a crowdsale issuer participates
	// in the sale instead of being a plain transfer
	if crowdsale.IsCrowdsalePurchase(p.Receiver, p.PropertyID) {
		result, err := crowdsale.Participate(journal, p.Receiver, p.Sender, txid, p.Amount, globalData.blockTime)
		if nil != err {
			return 0, err
		}
		if result.Closed {
			c, err := crowdsale.Close(p.Receiver)
			if nil != err {
				return 0, err
			}
			err = flushClosedSale(c, txid, false, globalData.blockTime)
			if nil != err {
				return 0, err
			}
		}
	}
	return p.Amount, nil
}

func applySendToOwners(journal *tally.Journal, txid digest.Digest, p *payload.SendToOwnersPayload) (int64, error) {
	if p.Amount <= 0 {
		return 0, fault.InvalidAmount
	}
	if !property.Has(globalData.trx, p.PropertyID) {
		return 0, fault.PropertyNotFound
	}

	type ownerShare struct {
		address string
		held    int64
		share   int64
	}

	owners := []ownerShare{}
	total := int64(0)
	for _, address := range tally.Addresses() {
		if address == p.Sender {
			continue
		}
		b := tally.Full(address, p.PropertyID)
		held := b.Available + b.SellofferReserve + b.AcceptReserve + b.MetadexReserve
		if held <= 0 {
			continue
		}
		owners = append(owners, ownerShare{address: address, held: held})
		total += held
	}
	if 0 == len(owners) {
		return 0, fault.InvalidCount
	}

	// largest holders first, ties by address; each gets the ceiling of
	// its pro-rata piece capped by what is still undistributed, so the
	// smallest holders may receive nothing
	sort.Slice(owners, func(i, j int) bool {
		if owners[i].held != owners[j].held {
			return owners[i].held > owners[j].held
		}
		return owners[i].address < owners[j].address
	})

	sent := int64(0)
	for i := range owners {
		share := ceilMulDiv(owners[i].held, p.Amount, total)
		if share > p.Amount-sent {
			share = p.Amount - sent
		}
		if share <= 0 {
			break
		}
		owners[i].share = share
		sent += share
	}

	// one base unit of the ecosystem token per receiving owner, burnt
	feeProperty := property.GenesisPropertyID
	if property.IsTestEcosystem(p.PropertyID) {
		feeProperty = property.TestGenesisPropertyID
	}
	fee := int64(0)
	for _, owner := range owners {
		if owner.share > 0 {
			fee += 1
		}
	}
	if !journal.Update(p.Sender, feeProperty, -fee, tally.Balance) {
		return 0, fault.InsufficientBalance
	}
	if !journal.Update(p.Sender, p.PropertyID, -p.Amount, tally.Balance) {
		return 0, fault.InsufficientBalance
	}

	for _, owner := range owners {
		if 0 == owner.share {
			continue
		}
		journal.Update(owner.address, p.PropertyID, owner.share, tally.Balance)
		txindex.RecordSTO(globalData.trx, txid, txindex.STOReceipt{
			Address:    owner.address,
			PropertyID: p.PropertyID,
			Amount:     owner.share,
			Block:      globalData.height,
		})
	}
	return p.Amount, nil
}

func applyTradeOffer(journal *tally.Journal, txid digest.Digest, p *payload.TradeOfferPayload) (int64, error) {
	if !property.Has(globalData.trx, p.PropertyID) {
		return 0, fault.PropertyNotFound
	}

	offer := &dex.Offer{
		TxID:           txid,
		Seller:         p.Seller,
		PropertyID:     p.PropertyID,
		AmountOriginal: p.Amount,
		CoinDesired:    p.CoinDesired,
		MinFee:         p.MinFee,
		BlockTimeLimit: p.BlockTimeLimit,
	}

	switch p.Subaction {
	case payload.SubactionNew:
		return dex.CreateOffer(journal, offer)
	case payload.SubactionUpdate:
		return dex.UpdateOffer(journal, offer)
	case payload.SubactionCancel:
		return 0, dex.CancelOffer(journal, p.Seller, p.PropertyID)
	default:
		return 0, fault.InvalidSubaction
	}
}

func applyDExAccept(journal *tally.Journal, p *payload.DExAcceptPayload) (int64, error) {
	return dex.AcceptOffer(journal, p.Seller, p.PropertyID, p.Buyer, p.Amount, globalData.height)
}

func applyMetaDExTrade(journal *tally.Journal, txid digest.Digest, idx uint32, p *payload.MetaDExTradePayload) (int64, error) {
	if !property.Has(globalData.trx, p.PropertyForSale) || !property.Has(globalData.trx, p.PropertyDesired) {
		return 0, fault.PropertyNotFound
	}

	order := &mdex.Order{
		TxID:            txid,
		Address:         p.Address,
		Block:           globalData.height,
		Idx:             idx,
		PropertyForSale: p.PropertyForSale,
		AmountForSale:   p.AmountForSale,
		PropertyDesired: p.PropertyDesired,
		AmountDesired:   p.AmountDesired,
	}
	trades, err := mdex.Add(journal, order)
	if nil != err {
		return 0, err
	}

	for _, trade := range trades {
		txindex.RecordTrade(globalData.trx, trade.MakerTxID, trade.TakerTxID, txindex.TradeRecord{
			Address1:  trade.Maker,
			Address2:  trade.Taker,
			Property1: trade.MakerSold,
			Amount1:   trade.MakerAmount,
			Property2: trade.TakerSold,
			Amount2:   trade.TakerAmount,
			Block:     trade.Block,
		})
	}
	return p.AmountForSale, nil
}

func recordCancellations(txid digest.Digest, cancelled []mdex.Cancelled, err error) (int64, error) {
	if nil != err {
		return 0, err
	}
	refunded := int64(0)
	for _, c := range cancelled {
		refunded += c.Refunded
		txindex.RecordCancellation(globalData.trx, txid, txindex.Cancellation{
			OrderTxID:  c.TxID,
			PropertyID: c.Property,
			Refunded:   c.Refunded,
		})
	}
	return refunded, nil
}

func applyCreateFixed(journal *tally.Journal, txid digest.Digest, p *payload.CreateFixedPayload) (int64, error) {
	if p.Amount <= 0 {
		return 0, fault.InvalidAmount
	}

	entry := &property.Entry{
		Issuer:         p.Issuer,
		PropertyType:   p.PropertyType,
		PrevPropertyID: p.PrevPropertyID,
		Category:       p.Category,
		Subcategory:    p.Subcategory,
		Name:           p.Name,
		URL:            p.URL,
		Data:           p.Data,
		NumTokens:      p.Amount,
		TxID:           txid,
		CreationBlock:  globalData.blockHash,
		UpdateBlock:    globalData.blockHash,
		Fixed:          true,
	}

	propertyID, err := property.Put(globalData.trx, p.Ecosystem, entry)
	if nil != err {
		return 0, err
	}

	if entry.IsUnique() {
		_, _, err = uniquetoken.Create(propertyID, p.Amount, p.Issuer)
		if nil != err {
			property.Unput(globalData.trx, propertyID, entry)
			return 0, err
		}
	}

	journal.Update(p.Issuer, propertyID, p.Amount, tally.Balance)
	return p.Amount, nil
}

func applyCreateVariable(txid digest.Digest, p *payload.CreateVariablePayload) (int64, error) {
	if p.TokensPerUnit <= 0 {
		return 0, fault.InvalidAmount
	}
	if property.IsTestEcosystem(p.PropertyDesired) != (property.EcosystemTest == p.Ecosystem) {
		return 0, fault.EcosystemMismatch
	}
	desired, err := property.Get(globalData.trx, p.PropertyDesired)
	if nil != err {
		return 0, err
	}

	entry := &property.Entry{
		Issuer:          p.Issuer,
		PropertyType:    p.PropertyType,
		PrevPropertyID:  p.PrevPropertyID,
		Category:        p.Category,
		Subcategory:     p.Subcategory,
		Name:            p.Name,
		URL:             p.URL,
		Data:            p.Data,
		NumTokens:       p.TokensPerUnit,
		PropertyDesired: p.PropertyDesired,
		Deadline:        p.Deadline,
		EarlyBirdBonus:  p.EarlyBirdBonus,
		IssuerBonus:     p.IssuerBonus,
		TxID:            txid,
		CreationBlock:   globalData.blockHash,
		UpdateBlock:     globalData.blockHash,
	}

	propertyID, err := property.Put(globalData.trx, p.Ecosystem, entry)
	if nil != err {
		return 0, err
	}

	err = crowdsale.Start(&crowdsale.Crowdsale{
		PropertyID:       propertyID,
		Issuer:           p.Issuer,
		PropertyDesired:  p.PropertyDesired,
		NumTokens:        p.TokensPerUnit,
		Deadline:         p.Deadline,
		EarlyBirdBonus:   p.EarlyBirdBonus,
		IssuerBonus:      p.IssuerBonus,
		Divisible:        entry.IsDivisible(),
		DesiredDivisible: desired.IsDivisible(),
		TxID:             txid,
	})
	if nil != err {
		property.Unput(globalData.trx, propertyID, entry)
		return 0, err
	}
	return 0, nil
}

func applyCloseCrowdsale(txid digest.Digest, p *payload.CloseCrowdsalePayload) (int64, error) {
	c, err := crowdsale.Close(p.Issuer)
	if nil != err {
		return 0, err
	}
	return 0, flushClosedSale(c, txid, true, globalData.blockTime)
}

func applyCreateManual(txid digest.Digest, p *payload.CreateManualPayload) (int64, error) {
	entry := &property.Entry{
		Issuer:         p.Issuer,
		PropertyType:   p.PropertyType,
		PrevPropertyID: p.PrevPropertyID,
		Category:       p.Category,
		Subcategory:    p.Subcategory,
		Name:           p.Name,
		URL:            p.URL,
		Data:           p.Data,
		TxID:           txid,
		CreationBlock:  globalData.blockHash,
		UpdateBlock:    globalData.blockHash,
		Manual:         true,
	}

	_, err := property.Put(globalData.trx, p.Ecosystem, entry)
	return 0, err
}

func applyGrant(journal *tally.Journal, txid digest.Digest, p *payload.GrantPayload) (int64, error) {
	if p.Amount <= 0 {
		return 0, fault.InvalidAmount
	}
	entry, err := property.Get(globalData.trx, p.PropertyID)
	if nil != err {
		return 0, err
	}
	if !entry.Manual {
		return 0, fault.NotManagedProperty
	}
	if entry.Issuer != p.Issuer {
		return 0, fault.NotPropertyIssuer
	}

	// total supply must stay within 63 bits
	if p.Amount > math.MaxInt64-entry.NumTokens {
		return 0, fault.InvalidAmount
	}

	receiver := p.Receiver
	if 0 == len(receiver) {
		receiver = p.Issuer
	}

	if entry.IsUnique() {
		_, _, err = uniquetoken.Create(p.PropertyID, p.Amount, receiver)
		if nil != err {
			return 0, err
		}
	}

	if !journal.Update(receiver, p.PropertyID, p.Amount, tally.Balance) {
		return 0, fault.InvalidAmount
	}

	entry.AddIssuance(txid, p.Amount, 0)
	entry.NumTokens += p.Amount
	entry.UpdateBlock = globalData.blockHash
	return p.Amount, property.Update(globalData.trx, p.PropertyID, entry)
}

func applyRevoke(journal *tally.Journal, txid digest.Digest, p *payload.RevokePayload) (int64, error) {
	if p.Amount <= 0 {
		return 0, fault.InvalidAmount
	}
	entry, err := property.Get(globalData.trx, p.PropertyID)
	if nil != err {
		return 0, err
	}
	if !entry.Manual {
		return 0, fault.NotManagedProperty
	}
	if entry.Issuer != p.Issuer {
		return 0, fault.NotPropertyIssuer
	}
	if entry.IsUnique() {
		// token ranges cannot be burnt
		return 0, fault.InvalidPropertyType
	}

	if !journal.Update(p.Issuer, p.PropertyID, -p.Amount, tally.Balance) {
		return 0, fault.InsufficientBalance
	}

	entry.AddIssuance(txid, 0, p.Amount)
	entry.NumTokens -= p.Amount
	entry.UpdateBlock = globalData.blockHash
	return p.Amount, property.Update(globalData.trx, p.PropertyID, entry)
}

func applyUniqueSend(journal *tally.Journal, p *payload.UniqueSendPayload) (int64, error) {
	entry, err := property.Get(globalData.trx, p.PropertyID)
	if nil != err {
		return 0, err
	}
	if !entry.IsUnique() {
		return 0, fault.NotUniqueProperty
	}

	amount := p.TokenEnd - p.TokenStart + 1
	if tally.Get(p.Sender, p.PropertyID, tally.Balance) < amount {
		return 0, fault.InsufficientBalance
	}

	err = uniquetoken.Move(p.PropertyID, p.TokenStart, p.TokenEnd, p.Sender, p.Receiver)
	if nil != err {
		return 0, err
	}

	journal.Update(p.Sender, p.PropertyID, -amount, tally.Balance)
	journal.Update(p.Receiver, p.PropertyID, amount, tally.Balance)
	return amount, nil
}

func applyChangeIssuer(p *payload.ChangeIssuerPayload) (int64, error) {
	entry, err := property.Get(globalData.trx, p.PropertyID)
	if nil != err {
		return 0, err
	}
	if entry.Issuer != p.Sender {
		return 0, fault.NotPropertyIssuer
	}

	entry.Issuer = p.Receiver
	entry.UpdateBlock = globalData.blockHash
	return 0, property.Update(globalData.trx, p.PropertyID, entry)
}

func applyAlert(p *payload.AlertPayload) (int64, error) {
	if 0 == len(p.Message) || p.Expiry <= globalData.height {
		return 0, fault.InvalidAmount
	}
	globalData.alertType = p.AlertType
	globalData.alertExpiry = p.Expiry
	globalData.alertMessage = p.Message
	globalData.log.Warnf("alert: type: %d  expiry: %d  %q", p.AlertType, p.Expiry, p.Message)
	return 0, nil
}
