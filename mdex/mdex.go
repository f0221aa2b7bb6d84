// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mdex - the token-for-token order book
//
// one book per property offered for sale, price levels ascending and
// orders inside a level ordered by chain position, so matching is a
// pure function of the block stream
//
// the decimal price only orders the book and gates matching; every
// balance movement is derived by integer cross-multiplication of the
// orders' original amounts
package mdex

import (
	"math/big"
	"sort"
	"sync"

	"github.com/bitmark-inc/logger"
	"github.com/shopspring/decimal"

	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/property"
	"github.com/metalayer-inc/metad/tally"
)

// effective prices are quotients of 64 bit integers; 50 digits keeps
// distinct prices distinct
const pricePrecision = 50

// Order - one open book entry
type Order struct {
	TxID            digest.Digest
	Address         string
	Block           uint32
	Idx             uint32
	PropertyForSale uint32
	AmountForSale   int64
	PropertyDesired uint32
	AmountDesired   int64
	AmountRemaining int64
}

// Trade - one settled cross between a resting and an incoming order
type Trade struct {
	MakerTxID   digest.Digest
	TakerTxID   digest.Digest
	Maker       string
	Taker       string
	MakerSold   uint32 // property the maker gave
	MakerAmount int64
	TakerSold   uint32 // property the taker gave
	TakerAmount int64
	Block       uint32
}

// Cancelled - one order removed by a cancel action
type Cancelled struct {
	TxID     digest.Digest
	Property uint32
	Refunded int64
}

// EffectivePrice - units of the desired property per unit offered
//
// always computed from the original amounts so a partial fill keeps
// its book position
func (order *Order) EffectivePrice() decimal.Decimal {
	return decimal.New(order.AmountDesired, 0).
		DivRound(decimal.New(order.AmountForSale, 0), pricePrecision)
}

// InversePrice - units offered per unit of the desired property
func (order *Order) InversePrice() decimal.Decimal {
	return decimal.New(order.AmountForSale, 0).
		DivRound(decimal.New(order.AmountDesired, 0), pricePrecision)
}

// orders at one price, chain position ascending
type level struct {
	price  decimal.Decimal
	orders []*Order
}

// price levels ascending
type book struct {
	levels []*level
}

// globals for this module
type globalDataType struct {
	sync.RWMutex
	log   *logger.L
	books map[uint32]*book

	// set once during initialise
	initialised bool
}

var globalData globalDataType

// Initialise - set up the books
func Initialise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}

	globalData.log = logger.New("mdex")
	globalData.log.Info("starting…")

	globalData.books = make(map[uint32]*book)
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

	globalData.books = nil
	globalData.initialised = false
	return nil
}

// Reset - drop all open orders
//
// used when reloading state from a snapshot
func Reset() {
	globalData.Lock()
	globalData.books = make(map[uint32]*book)
	globalData.Unlock()
}

// floor(a*b/c) without intermediate overflow
func mulDiv(a int64, b int64, c int64) int64 {
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Quo(r, big.NewInt(c))
	return r.Int64()
}

// insert an order at its price level, caller must hold the write lock
func insert(order *Order) {
	b := globalData.books[order.PropertyForSale]
	if nil == b {
		b = &book{}
		globalData.books[order.PropertyForSale] = b
	}

	price := order.EffectivePrice()
	i := sort.Search(len(b.levels), func(i int) bool {
		return b.levels[i].price.Cmp(price) >= 0
	})
	if i < len(b.levels) && 0 == b.levels[i].price.Cmp(price) {
		l := b.levels[i]
		j := sort.Search(len(l.orders), func(j int) bool {
			o := l.orders[j]
			if o.Block != order.Block {
				return o.Block > order.Block
			}
			return o.Idx > order.Idx
		})
		l.orders = append(l.orders, nil)
		copy(l.orders[j+1:], l.orders[j:])
		l.orders[j] = order
		return
	}

	b.levels = append(b.levels, nil)
	copy(b.levels[i+1:], b.levels[i:])
	b.levels[i] = &level{
		price:  price,
		orders: []*Order{order},
	}
}

// remove an order from its level, caller must hold the write lock
func remove(order *Order) {
	b := globalData.books[order.PropertyForSale]
	if nil == b {
		return
	}
	for i, l := range b.levels {
		for j, o := range l.orders {
			if o == order {
				l.orders = append(l.orders[:j], l.orders[j+1:]...)
				if 0 == len(l.orders) {
					b.levels = append(b.levels[:i], b.levels[i+1:]...)
				}
				return
			}
		}
	}
}

// Add - reserve, match against the opposite book and rest the residue
//
// resting orders are taken in (price, block, idx) order and every
// cross settles at the resting order's price; a cross whose integer
// size rounds to zero on either side is skipped as dust
func Add(journal *tally.Journal, order *Order) ([]Trade, error) {
	if order.PropertyForSale == order.PropertyDesired {
		return nil, fault.SamePropertyTrade
	}
	if !property.SameEcosystem(order.PropertyForSale, order.PropertyDesired) {
		return nil, fault.EcosystemMismatch
	}
	if order.AmountForSale <= 0 || order.AmountDesired <= 0 {
		return nil, fault.InvalidAmount
	}

	if !journal.Update(order.Address, order.PropertyForSale, -order.AmountForSale, tally.Balance) {
		return nil, fault.InsufficientBalance
	}
	journal.Update(order.Address, order.PropertyForSale, order.AmountForSale, tally.MetadexReserve)

	order.AmountRemaining = order.AmountForSale

	globalData.Lock()
	defer globalData.Unlock()

	trades := []Trade{}
	wantPrice := order.EffectivePrice()

	// the opposite book holds orders selling what this order wants;
	// levels are ascending by the maker's own price so the best
	// inverse price comes first, but a level can mix several pairs so
	// every level has to be inspected
	opposite := globalData.books[order.PropertyDesired]
	if nil != opposite {
	matching:
		for i := 0; i < len(opposite.levels); i += 1 {
			if 0 == order.AmountRemaining {
				break matching
			}
			l := opposite.levels[i]
			for j := 0; j < len(l.orders); j += 1 {
				maker := l.orders[j]
				if maker.PropertyDesired != order.PropertyForSale {
					continue
				}
				if maker.Address == order.Address {
					continue
				}
				if maker.InversePrice().Cmp(wantPrice) < 0 {
					continue
				}

				// payment needed to lift the maker's whole remainder,
				// in the taker's for-sale units
				needed := mulDiv(maker.AmountRemaining, maker.AmountDesired, maker.AmountForSale)

				var makerGives, takerGives int64
				if order.AmountRemaining >= needed {
					makerGives = maker.AmountRemaining
					takerGives = needed
				} else {
					takerGives = order.AmountRemaining
					makerGives = mulDiv(maker.AmountForSale, takerGives, maker.AmountDesired)
				}

				if 0 == makerGives || 0 == takerGives {
					continue
				}

				journal.Update(maker.Address, maker.PropertyForSale, -makerGives, tally.MetadexReserve)
				journal.Update(order.Address, maker.PropertyForSale, makerGives, tally.Balance)
				journal.Update(order.Address, order.PropertyForSale, -takerGives, tally.MetadexReserve)
				journal.Update(maker.Address, order.PropertyForSale, takerGives, tally.Balance)

				maker.AmountRemaining -= makerGives
				order.AmountRemaining -= takerGives

				trades = append(trades, Trade{
					MakerTxID:   maker.TxID,
					TakerTxID:   order.TxID,
					Maker:       maker.Address,
					Taker:       order.Address,
					MakerSold:   maker.PropertyForSale,
					MakerAmount: makerGives,
					TakerSold:   order.PropertyForSale,
					TakerAmount: takerGives,
					Block:       order.Block,
				})

				if 0 == maker.AmountRemaining {
					l.orders = append(l.orders[:j], l.orders[j+1:]...)
					j -= 1
					if 0 == len(l.orders) {
						opposite.levels = append(opposite.levels[:i], opposite.levels[i+1:]...)
						i -= 1
						continue matching
					}
				}

				if 0 == order.AmountRemaining {
					break matching
				}
			}
		}
	}

	if order.AmountRemaining > 0 {
		insert(order)
	}

	globalData.log.Infof("order added: %s  pair: %d/%d  trades: %d", order.Address, order.PropertyForSale, order.PropertyDesired, len(trades))
	return trades, nil
}

// refund an order's remainder, caller must hold the write lock
func refund(journal *tally.Journal, order *Order) Cancelled {
	journal.Update(order.Address, order.PropertyForSale, -order.AmountRemaining, tally.MetadexReserve)
	journal.Update(order.Address, order.PropertyForSale, order.AmountRemaining, tally.Balance)
	return Cancelled{
		TxID:     order.TxID,
		Property: order.PropertyForSale,
		Refunded: order.AmountRemaining,
	}
}

// collect and remove own orders matching a predicate
//
// books are visited in property id order so the refund receipts are
// numbered identically on every node
func cancel(journal *tally.Journal, address string, match func(*Order) bool) ([]Cancelled, error) {
	globalData.Lock()
	defer globalData.Unlock()

	bookIDs := make([]uint32, 0, len(globalData.books))
	for id := range globalData.books {
		bookIDs = append(bookIDs, id)
	}
	sort.Slice(bookIDs, func(i, j int) bool {
		return bookIDs[i] < bookIDs[j]
	})

	cancelled := []Cancelled{}
	for _, id := range bookIDs {
		b := globalData.books[id]
		for i := 0; i < len(b.levels); i += 1 {
			l := b.levels[i]
			for j := 0; j < len(l.orders); j += 1 {
				o := l.orders[j]
				if o.Address != address || !match(o) {
					continue
				}
				cancelled = append(cancelled, refund(journal, o))
				l.orders = append(l.orders[:j], l.orders[j+1:]...)
				j -= 1
			}
			if 0 == len(l.orders) {
				b.levels = append(b.levels[:i], b.levels[i+1:]...)
				i -= 1
			}
		}
	}

	if 0 == len(cancelled) {
		return nil, fault.OrderNotFound
	}
	return cancelled, nil
}

// CancelAtPrice - cancel own orders on a pair at an exact price
func CancelAtPrice(journal *tally.Journal, address string, propertyForSale uint32, amountForSale int64, propertyDesired uint32, amountDesired int64) ([]Cancelled, error) {
	if amountForSale <= 0 || amountDesired <= 0 {
		return nil, fault.InvalidAmount
	}
	price := decimal.New(amountDesired, 0).
		DivRound(decimal.New(amountForSale, 0), pricePrecision)
	return cancel(journal, address, func(o *Order) bool {
		return o.PropertyForSale == propertyForSale &&
			o.PropertyDesired == propertyDesired &&
			0 == o.EffectivePrice().Cmp(price)
	})
}

// CancelPair - cancel all own orders on a pair
func CancelPair(journal *tally.Journal, address string, propertyForSale uint32, propertyDesired uint32) ([]Cancelled, error) {
	return cancel(journal, address, func(o *Order) bool {
		return o.PropertyForSale == propertyForSale &&
			o.PropertyDesired == propertyDesired
	})
}

// CancelEverything - cancel all own orders in one ecosystem
func CancelEverything(journal *tally.Journal, address string, testEcosystem bool) ([]Cancelled, error) {
	return cancel(journal, address, func(o *Order) bool {
		return property.IsTestEcosystem(o.PropertyForSale) == testEcosystem
	})
}

// OpenOrders - every resting order, txid ascending
func OpenOrders() []Order {
	globalData.RLock()
	defer globalData.RUnlock()

	orders := []Order{}
	for _, b := range globalData.books {
		for _, l := range b.levels {
			for _, o := range l.orders {
				orders = append(orders, *o)
			}
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].TxID.Cmp(orders[j].TxID) < 0
	})
	return orders
}

// OrdersOf - one address's resting orders, txid ascending
func OrdersOf(address string) []Order {
	all := OpenOrders()
	orders := []Order{}
	for _, o := range all {
		if o.Address == address {
			orders = append(orders, o)
		}
	}
	return orders
}

// Restore - insert resting orders directly, for snapshot load
func Restore(orders []Order) {
	globalData.Lock()
	defer globalData.Unlock()

	for i := range orders {
		order := orders[i]
		insert(&order)
	}
}
