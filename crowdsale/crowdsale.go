// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package crowdsale - active variable issuances
//
// one active crowdsale per issuer address; sends of the desired
// property to the issuer mint tokens for the sender plus an issuer
// premine until the deadline passes, the supply maxes out or the
// issuer closes the sale
//
// the bonus arithmetic deliberately runs in the float64 domain with
// the historical truncation asymmetry between divisible and
// indivisible properties; the chain has already committed to these
// exact results
package crowdsale

import (
	"math"
	"sort"
	"sync"

	"github.com/bitmark-inc/logger"

	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/tally"
)

const secondsPerWeek = 604800

// Crowdsale - one active variable issuance
type Crowdsale struct {
	PropertyID       uint32
	Issuer           string
	PropertyDesired  uint32
	NumTokens        int64
	Deadline         int64
	EarlyBirdBonus   uint8
	IssuerBonus      uint8
	Divisible        bool
	DesiredDivisible bool
	TxID             digest.Digest

	UserCreated   int64
	IssuerCreated int64
	MissedTokens  int64
	MaxTokens     bool

	// participation buffer, flushed into the property entry at close
	Participations map[string][]int64
}

// globals for this module
type globalDataType struct {
	sync.RWMutex
	log    *logger.L
	active map[string]*Crowdsale

	// set once during initialise
	initialised bool
}

var globalData globalDataType

// Initialise - set up the active map
func Initialise() error {
	globalData.Lock()
	defer globalData.Unlock()

	if globalData.initialised {
		return fault.AlreadyInitialised
	}

	globalData.log = logger.New("crowdsale")
	globalData.log.Info("starting…")

	globalData.active = make(map[string]*Crowdsale)
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

	globalData.active = nil
	globalData.initialised = false
	return nil
}

// Reset - drop all active crowdsales
//
// used when reloading state from a snapshot
func Reset() {
	globalData.Lock()
	globalData.active = make(map[string]*Crowdsale)
	globalData.Unlock()
}

// Start - register a new crowdsale for an issuer
func Start(c *Crowdsale) error {
	globalData.Lock()
	defer globalData.Unlock()

	if _, ok := globalData.active[c.Issuer]; ok {
		return fault.CrowdsaleAlreadyActive
	}
	if nil == c.Participations {
		c.Participations = make(map[string][]int64)
	}
	globalData.active[c.Issuer] = c

	globalData.log.Infof("crowdsale started: property: %d  issuer: %s", c.PropertyID, c.Issuer)
	return nil
}

// truncate a float64 total to int64 without overflow surprises
func toInt64(f float64) int64 {
	if f >= float64(math.MaxInt64) {
		return math.MaxInt64
	}
	if f <= 0 {
		return 0
	}
	return int64(f)
}

// per-participation token amounts in the historical float64 domain
//
// the divisible branch carries the unrounded value into the premine
// multiplication while the indivisible branch truncates first
func (c *Crowdsale) calculateTokens(amountIn int64, txTime int64) (int64, int64) {
	weeks := float64(c.Deadline-txTime) / secondsPerWeek
	if weeks < 0 {
		weeks = 0
	}
	bonus := weeks*float64(c.EarlyBirdBonus)/100 + 1

	var created float64
	if c.Divisible {
		created = float64(amountIn) * float64(c.NumTokens) * bonus
	} else {
		created = float64(toInt64(float64(amountIn) / 1e8 * float64(c.NumTokens) * bonus))
	}

	user := toInt64(created)
	issuer := toInt64(created * float64(c.IssuerBonus) * 0.01)
	return user, issuer
}

// Result - outcome of one participation
type Result struct {
	UserTokens   int64
	IssuerTokens int64
	Closed       bool
}

// Participate - apply one send of the desired property to the issuer
//
// tokens are credited to both parties and the participation is
// recorded; when the cumulative supply reaches the 63 bit maximum the
// amounts are clamped and the sale reports itself closed
func Participate(journal *tally.Journal, issuer string, sender string, txid digest.Digest, amountIn int64, txTime int64) (Result, error) {
	globalData.Lock()
	defer globalData.Unlock()

	c, ok := globalData.active[issuer]
	if !ok {
		return Result{}, fault.CrowdsaleNotFound
	}
	if amountIn <= 0 {
		return Result{}, fault.InvalidAmount
	}

	user, issuerTokens := c.calculateTokens(amountIn, txTime)

	closed := false
	capacity := math.MaxInt64 - c.UserCreated - c.IssuerCreated
	if user >= capacity {
		user = capacity
		issuerTokens = 0
		closed = true
	} else if issuerTokens >= capacity-user {
		issuerTokens = capacity - user
		closed = true
	}

	// a failed credit would desynchronise the created totals from the
	// balances, so reject before any record is touched
	if user > 0 && !journal.Update(sender, c.PropertyID, user, tally.Balance) {
		return Result{}, fault.InvalidAmount
	}
	if issuerTokens > 0 && !journal.Update(issuer, c.PropertyID, issuerTokens, tally.Balance) {
		return Result{}, fault.InvalidAmount
	}

	c.UserCreated += user
	c.IssuerCreated += issuerTokens
	c.Participations[txid.String()] = []int64{amountIn, txTime, user, issuerTokens}
	if closed {
		c.MaxTokens = true
	}

	return Result{
		UserTokens:   user,
		IssuerTokens: issuerTokens,
		Closed:       closed,
	}, nil
}

// missed issuer tokens: the premine recomputed over the whole history
// minus what was credited along the way
func (c *Crowdsale) calculateMissed() int64 {
	totalCreated := float64(0)
	for _, p := range c.Participations {
		amountIn := p[0]
		txTime := p[1]

		weeks := float64(c.Deadline-txTime) / secondsPerWeek
		if weeks < 0 {
			weeks = 0
		}
		bonus := weeks*float64(c.EarlyBirdBonus)/100 + 1

		if c.Divisible {
			totalCreated += float64(amountIn) * float64(c.NumTokens) * bonus
		} else {
			totalCreated += float64(toInt64(float64(amountIn) / 1e8 * float64(c.NumTokens) * bonus))
		}
	}

	premine := totalCreated * float64(c.IssuerBonus) * 0.01
	missed := premine - float64(c.IssuerCreated)
	return toInt64(missed)
}

// Close - remove a crowdsale from the active map
//
// used for the issuer's manual close and for max-out; no missed-token
// top-up is applied; the record is returned so the caller can flush
// it into the property entry
func Close(issuer string) (*Crowdsale, error) {
	globalData.Lock()
	defer globalData.Unlock()

	c, ok := globalData.active[issuer]
	if !ok {
		return nil, fault.CrowdsaleNotFound
	}
	delete(globalData.active, issuer)

	globalData.log.Infof("crowdsale closed: property: %d", c.PropertyID)
	return c, nil
}

// ExpireAll - close every crowdsale whose deadline has passed
//
// the recomputed missed issuer tokens are credited to the issuer;
// closed records are returned in property id order for flushing into
// their entries
func ExpireAll(journal *tally.Journal, blockTime int64) []*Crowdsale {
	globalData.Lock()
	defer globalData.Unlock()

	expired := []*Crowdsale{}
	for issuer, c := range globalData.active {
		if c.Deadline >= blockTime {
			continue
		}
		missed := c.calculateMissed()
		if missed > 0 {
			journal.Update(issuer, c.PropertyID, missed, tally.Balance)
			c.MissedTokens = missed
			c.IssuerCreated += missed
		}
		delete(globalData.active, issuer)
		expired = append(expired, c)
		globalData.log.Infof("crowdsale expired: property: %d  missed: %d", c.PropertyID, missed)
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].PropertyID < expired[j].PropertyID
	})
	return expired
}

// GetByIssuer - the active crowdsale of an issuer address
func GetByIssuer(issuer string) (Crowdsale, bool) {
	globalData.RLock()
	defer globalData.RUnlock()

	c, ok := globalData.active[issuer]
	if !ok {
		return Crowdsale{}, false
	}
	return *c, true
}

// IsActive - check a property has an open crowdsale
func IsActive(propertyID uint32) bool {
	globalData.RLock()
	defer globalData.RUnlock()

	for _, c := range globalData.active {
		if c.PropertyID == propertyID {
			return true
		}
	}
	return false
}

// IsCrowdsalePurchase - check a send mints crowdsale tokens
//
// true only when the recipient has an active sale and the property
// sent is the one the sale asks for
func IsCrowdsalePurchase(recipient string, propertyID uint32) bool {
	globalData.RLock()
	defer globalData.RUnlock()

	c, ok := globalData.active[recipient]
	return ok && c.PropertyDesired == propertyID
}

// ActiveSorted - all active crowdsales, property id ascending
func ActiveSorted() []Crowdsale {
	globalData.RLock()
	defer globalData.RUnlock()

	active := make([]Crowdsale, 0, len(globalData.active))
	for _, c := range globalData.active {
		active = append(active, *c)
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].PropertyID < active[j].PropertyID
	})
	return active
}

// Restore - insert records directly, for snapshot load
func Restore(sales []Crowdsale) {
	globalData.Lock()
	defer globalData.Unlock()

	for i := range sales {
		c := sales[i]
		if nil == c.Participations {
			c.Participations = make(map[string][]int64)
		}
		globalData.active[c.Issuer] = &c
	}
}
