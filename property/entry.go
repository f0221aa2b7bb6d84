// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package property

import (
	"encoding/json"

	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
)

// property type values carried in create transactions
const (
	TypeIndivisible uint16 = 1
	TypeDivisible   uint16 = 2
	TypeUnique      uint16 = 5

	// high-bit flags require a valid PrevPropertyID
	FlagReplacing uint16 = 64
	FlagAppending uint16 = 128
)

// ecosystem selectors for id allocation
const (
	EcosystemMain uint8 = 1
	EcosystemTest uint8 = 2
)

// first assignable id in each ecosystem; 1 and 2 are the implied
// genesis tokens
const (
	FirstMainPropertyID uint32 = 3
	FirstTestPropertyID uint32 = 0x80000003

	GenesisPropertyID     uint32 = 1
	TestGenesisPropertyID uint32 = 2
)

const maxStringLength = 256

// Entry - all stored metadata of one property
//
// HistoricalData records per-transaction issuance events: crowdsale
// participations as [amount in, timestamp, user tokens, issuer tokens]
// and grant/revoke events as [granted, revoked]; keys are transaction
// id strings
type Entry struct {
	Issuer         string `json:"issuer"`
	PropertyType   uint16 `json:"propertyType"`
	PrevPropertyID uint32 `json:"prevPropertyId"`
	Category       string `json:"category"`
	Subcategory    string `json:"subcategory"`
	Name           string `json:"name"`
	URL            string `json:"url"`
	Data           string `json:"data"`
	NumTokens      int64  `json:"numTokens"`

	// crowdsale parameters
	PropertyDesired uint32 `json:"propertyDesired"`
	Deadline        int64  `json:"deadline"`
	EarlyBirdBonus  uint8  `json:"earlyBirdBonus"`
	IssuerBonus     uint8  `json:"issuerBonus"`

	// crowdsale closure
	CloseEarly   bool          `json:"closeEarly"`
	MaxTokens    bool          `json:"maxTokens"`
	MissedTokens int64         `json:"missedTokens"`
	TimeClosed   int64         `json:"timeClosed"`
	TxIDClose    digest.Digest `json:"txidClose"`

	// bookkeeping
	TxID          digest.Digest `json:"txid"`
	CreationBlock digest.Digest `json:"creationBlock"`
	UpdateBlock   digest.Digest `json:"updateBlock"`
	Fixed         bool          `json:"fixed"`
	Manual        bool          `json:"manual"`

	HistoricalData map[string][]int64 `json:"historicalData,omitempty"`
}

// IsDivisible - true when balances are in 1e-8 units
func (e *Entry) IsDivisible() bool {
	return 0 != e.PropertyType&TypeDivisible
}

// IsUnique - true for non-fungible token properties
func (e *Entry) IsUnique() bool {
	return TypeUnique == e.PropertyType
}

// Validate - structural checks applied before an entry is stored
func (e *Entry) Validate() error {
	switch e.PropertyType &^ (FlagReplacing | FlagAppending) {
	case TypeIndivisible, TypeDivisible, TypeUnique:
	default:
		return fault.InvalidPropertyType
	}
	if 0 != e.PropertyType&(FlagReplacing|FlagAppending) && 0 == e.PrevPropertyID {
		return fault.PreviousPropertyRequired
	}
	if e.Fixed && e.Manual {
		return fault.InvalidPropertyType
	}
	for _, s := range []string{e.Category, e.Subcategory, e.Name, e.URL, e.Data} {
		if len(s) > maxStringLength {
			return fault.DataTooLong
		}
	}
	return nil
}

// AddParticipation - record one crowdsale participation
func (e *Entry) AddParticipation(txid digest.Digest, amountIn int64, timestamp int64, userTokens int64, issuerTokens int64) {
	if nil == e.HistoricalData {
		e.HistoricalData = make(map[string][]int64)
	}
	e.HistoricalData[txid.String()] = []int64{amountIn, timestamp, userTokens, issuerTokens}
}

// AddIssuance - record one grant or revoke on a managed property
func (e *Entry) AddIssuance(txid digest.Digest, granted int64, revoked int64) {
	if nil == e.HistoricalData {
		e.HistoricalData = make(map[string][]int64)
	}
	e.HistoricalData[txid.String()] = []int64{granted, revoked}
}

func (e *Entry) pack() []byte {
	data, err := json.Marshal(e)
	if nil != err {
		// entries are plain data, marshal cannot fail
		panic("property: marshal: " + err.Error())
	}
	return data
}

func unpack(data []byte) (*Entry, error) {
	entry := &Entry{}
	err := json.Unmarshal(data, entry)
	if nil != err {
		return nil, err
	}
	return entry, nil
}

// IsTestEcosystem - true for ids in the test id space
//
// the test genesis token has a low id but belongs to the test
// ecosystem
func IsTestEcosystem(propertyID uint32) bool {
	return TestGenesisPropertyID == propertyID || propertyID >= 0x80000000
}

// SameEcosystem - true when both ids are in the same id space
func SameEcosystem(a uint32, b uint32) bool {
	return IsTestEcosystem(a) == IsTestEcosystem(b)
}
