// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package payload

import (
	"sync"
)

// activation heights per transaction type; a type missing from the
// table is never allowed
var activationData struct {
	sync.RWMutex
	minimumBlock map[uint16]uint32
}

func init() {
	activationData.minimumBlock = map[uint16]uint32{
		SimpleSend:             0,
		SendToOwners:           0,
		TradeOffer:             0,
		DExAccept:              0,
		MetaDExTrade:           0,
		MetaDExCancelPrice:     0,
		MetaDExCancelPair:      0,
		MetaDExCancelEcosystem: 0,
		CreateFixed:            0,
		CreateVariable:         0,
		CloseCrowdsale:         0,
		CreateManual:           0,
		Grant:                  0,
		Revoke:                 0,
		UniqueSend:             0,
		ChangeIssuer:           0,
		Alert:                  0,
	}
}

// IsAllowed - check a type is live at a block height
func IsAllowed(block uint32, txType uint16) bool {
	activationData.RLock()
	defer activationData.RUnlock()

	minimum, ok := activationData.minimumBlock[txType]
	return ok && block >= minimum
}

// Activate - set the first block at which a type is allowed
//
// chain parameters are loaded before block processing starts
func Activate(txType uint16, minimumBlock uint32) {
	activationData.Lock()
	activationData.minimumBlock[txType] = minimumBlock
	activationData.Unlock()
}
