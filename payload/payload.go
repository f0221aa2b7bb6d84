// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package payload - decoded transaction intents
//
// the host decodes raw transactions into one of these intent records;
// the ledger dispatches on the type code, so the codes are part of the
// wire protocol and must never change
package payload

// transaction type codes
const (
	SimpleSend             uint16 = 0
	SendToOwners           uint16 = 3
	TradeOffer             uint16 = 20
	DExAccept              uint16 = 22
	MetaDExTrade           uint16 = 25
	MetaDExCancelPrice     uint16 = 26
	MetaDExCancelPair      uint16 = 27
	MetaDExCancelEcosystem uint16 = 28
	CreateFixed            uint16 = 50
	CreateVariable         uint16 = 51
	CloseCrowdsale         uint16 = 53
	CreateManual           uint16 = 54
	Grant                  uint16 = 55
	Revoke                 uint16 = 56
	UniqueSend             uint16 = 57
	ChangeIssuer           uint16 = 70
	Alert                  uint16 = 65535
)

// sell offer subactions
const (
	SubactionNew    uint8 = 1
	SubactionUpdate uint8 = 2
	SubactionCancel uint8 = 3
)

// Payload - the marker interface over all intent records
type Payload interface {
	Type() uint16
}

// SimpleSendPayload - move tokens between two addresses
type SimpleSendPayload struct {
	Sender     string
	Receiver   string
	PropertyID uint32
	Amount     int64
}

// SendToOwnersPayload - distribute tokens across all other holders
type SendToOwnersPayload struct {
	Sender     string
	PropertyID uint32
	Amount     int64
}

// TradeOfferPayload - publish, replace or withdraw a sell offer
type TradeOfferPayload struct {
	Seller         string
	PropertyID     uint32
	Amount         int64
	CoinDesired    int64
	MinFee         int64
	BlockTimeLimit uint8
	Subaction      uint8
}

// DExAcceptPayload - reserve part of a sell offer
type DExAcceptPayload struct {
	Buyer      string
	Seller     string
	PropertyID uint32
	Amount     int64
}

// MetaDExTradePayload - place a token-for-token order
type MetaDExTradePayload struct {
	Address         string
	PropertyForSale uint32
	AmountForSale   int64
	PropertyDesired uint32
	AmountDesired   int64
}

// MetaDExCancelPricePayload - cancel own orders at an exact price
type MetaDExCancelPricePayload struct {
	Address         string
	PropertyForSale uint32
	AmountForSale   int64
	PropertyDesired uint32
	AmountDesired   int64
}

// MetaDExCancelPairPayload - cancel all own orders on a pair
type MetaDExCancelPairPayload struct {
	Address         string
	PropertyForSale uint32
	PropertyDesired uint32
}

// MetaDExCancelEcosystemPayload - cancel all own orders in an ecosystem
type MetaDExCancelEcosystemPayload struct {
	Address   string
	Ecosystem uint8
}

// CreateFixedPayload - issue a property with a fixed supply
type CreateFixedPayload struct {
	Issuer         string
	Ecosystem      uint8
	PropertyType   uint16
	PrevPropertyID uint32
	Category       string
	Subcategory    string
	Name           string
	URL            string
	Data           string
	Amount         int64
}

// CreateVariablePayload - issue a property through a crowdsale
type CreateVariablePayload struct {
	Issuer          string
	Ecosystem       uint8
	PropertyType    uint16
	PrevPropertyID  uint32
	Category        string
	Subcategory     string
	Name            string
	URL             string
	Data            string
	PropertyDesired uint32
	TokensPerUnit   int64
	Deadline        int64
	EarlyBirdBonus  uint8
	IssuerBonus     uint8
}

// CloseCrowdsalePayload - close the issuer's active crowdsale
type CloseCrowdsalePayload struct {
	Issuer string
}

// CreateManualPayload - issue a property with grant/revoke control
type CreateManualPayload struct {
	Issuer         string
	Ecosystem      uint8
	PropertyType   uint16
	PrevPropertyID uint32
	Category       string
	Subcategory    string
	Name           string
	URL            string
	Data           string
}

// GrantPayload - mint tokens of a managed property
//
// an empty receiver grants to the issuer
type GrantPayload struct {
	Issuer     string
	Receiver   string
	PropertyID uint32
	Amount     int64
}

// RevokePayload - burn the issuer's own tokens of a managed property
type RevokePayload struct {
	Issuer     string
	PropertyID uint32
	Amount     int64
}

// UniqueSendPayload - move a contiguous token range
type UniqueSendPayload struct {
	Sender     string
	Receiver   string
	PropertyID uint32
	TokenStart int64
	TokenEnd   int64
}

// ChangeIssuerPayload - hand a property over to a new issuer
type ChangeIssuerPayload struct {
	Sender     string
	Receiver   string
	PropertyID uint32
}

// AlertPayload - a protocol-wide alert with a block expiry
type AlertPayload struct {
	Sender    string
	AlertType uint32
	Expiry    uint32
	Message   string
}

// Type - the wire type code of each intent

func (p *SimpleSendPayload) Type() uint16             { return SimpleSend }
func (p *SendToOwnersPayload) Type() uint16           { return SendToOwners }
func (p *TradeOfferPayload) Type() uint16             { return TradeOffer }
func (p *DExAcceptPayload) Type() uint16              { return DExAccept }
func (p *MetaDExTradePayload) Type() uint16           { return MetaDExTrade }
func (p *MetaDExCancelPricePayload) Type() uint16     { return MetaDExCancelPrice }
func (p *MetaDExCancelPairPayload) Type() uint16      { return MetaDExCancelPair }
func (p *MetaDExCancelEcosystemPayload) Type() uint16 { return MetaDExCancelEcosystem }
func (p *CreateFixedPayload) Type() uint16            { return CreateFixed }
func (p *CreateVariablePayload) Type() uint16         { return CreateVariable }
func (p *CloseCrowdsalePayload) Type() uint16         { return CloseCrowdsale }
func (p *CreateManualPayload) Type() uint16           { return CreateManual }
func (p *GrantPayload) Type() uint16                  { return Grant }
func (p *RevokePayload) Type() uint16                 { return Revoke }
func (p *UniqueSendPayload) Type() uint16             { return UniqueSend }
func (p *ChangeIssuerPayload) Type() uint16           { return ChangeIssuer }
func (p *AlertPayload) Type() uint16                  { return Alert }
