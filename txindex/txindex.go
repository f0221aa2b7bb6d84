// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package txindex - per-transaction results and receipts
//
// every processed payload gets one record keyed by its hex txid;
// settlement receipts hang off their parent transaction under
// "txid-n" composite keys so they can be enumerated in order
package txindex

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/storage"
)

// Record - the outcome of one processed payload
type Record struct {
	Valid  bool
	Block  uint32
	Type   uint16
	Amount int64
}

// Purchase - one native-coin settlement against a sell offer
type Purchase struct {
	Buyer      string
	Seller     string
	PropertyID uint32
	Amount     int64
	Block      uint32
}

// Cancellation - one order removed by a cancel transaction
type Cancellation struct {
	OrderTxID  digest.Digest
	PropertyID uint32
	Refunded   int64
}

// STOReceipt - one recipient's share of a send-to-owners
type STOReceipt struct {
	Address    string
	PropertyID uint32
	Amount     int64
	Block      uint32
}

// TradeRecord - one MetaDEx cross
type TradeRecord struct {
	Address1  string
	Address2  string
	Property1 uint32
	Amount1   int64
	Property2 uint32
	Amount2   int64
	Block     uint32
}

func mainKey(txid digest.Digest) []byte {
	return []byte(txid.String())
}

func subKey(txid digest.Digest, n int) []byte {
	return []byte(txid.String() + "-" + strconv.Itoa(n))
}

// RecordTransaction - store the outcome of one payload
func RecordTransaction(trx *storage.Transaction, txid digest.Digest, record Record) {
	valid := 0
	if record.Valid {
		valid = 1
	}
	value := []byte(fmt.Sprintf("%d:%d:%d:%d", valid, record.Block, record.Type, record.Amount))
	if nil != trx {
		trx.Put(storage.Pool.TxIndex, mainKey(txid), value)
	} else {
		storage.Pool.TxIndex.Put(mainKey(txid), value)
	}
}

// GetTransaction - fetch the outcome of one payload
func GetTransaction(txid digest.Digest) (Record, error) {
	value := storage.Pool.TxIndex.Get(mainKey(txid))
	if nil == value {
		return Record{}, fault.TransactionNotFound
	}
	var valid int
	var record Record
	n, err := fmt.Sscanf(string(value), "%d:%d:%d:%d", &valid, &record.Block, &record.Type, &record.Amount)
	if nil != err || 4 != n {
		return Record{}, fault.TransactionNotFound
	}
	record.Valid = 1 == valid
	return record, nil
}

// IsValid - check a transaction was processed and accepted
func IsValid(txid digest.Digest) bool {
	record, err := GetTransaction(txid)
	return nil == err && record.Valid
}

// CountSubRecords - number of receipts hanging off a transaction
func CountSubRecords(txid digest.Digest) int {
	n := 0
	for storage.Pool.TxIndex.Has(subKey(txid, n+1)) {
		n += 1
	}
	return n
}

// next free receipt slot, through the transaction overlay
func nextSubNumber(trx *storage.Transaction, txid digest.Digest) int {
	n := 1
	for {
		key := subKey(txid, n)
		var present bool
		if nil != trx {
			present = trx.Has(storage.Pool.TxIndex, key)
		} else {
			present = storage.Pool.TxIndex.Has(key)
		}
		if !present {
			return n
		}
		n += 1
	}
}

// RecordPurchase - append a settlement receipt to an offer's txid
func RecordPurchase(trx *storage.Transaction, offerTxID digest.Digest, purchase Purchase) int {
	n := nextSubNumber(trx, offerTxID)
	value := []byte(fmt.Sprintf("%s:%s:%d:%d:%d",
		purchase.Buyer, purchase.Seller, purchase.PropertyID, purchase.Amount, purchase.Block))
	if nil != trx {
		trx.Put(storage.Pool.TxIndex, subKey(offerTxID, n), value)
	} else {
		storage.Pool.TxIndex.Put(subKey(offerTxID, n), value)
	}
	return n
}

// GetPurchase - fetch one settlement receipt
func GetPurchase(offerTxID digest.Digest, n int) (Purchase, error) {
	value := storage.Pool.TxIndex.Get(subKey(offerTxID, n))
	if nil == value {
		return Purchase{}, fault.TransactionNotFound
	}
	fields := strings.Split(string(value), ":")
	if 5 != len(fields) {
		return Purchase{}, fault.TransactionNotFound
	}
	propertyID, err1 := strconv.ParseUint(fields[2], 10, 32)
	amount, err2 := strconv.ParseInt(fields[3], 10, 64)
	block, err3 := strconv.ParseUint(fields[4], 10, 32)
	if nil != err1 || nil != err2 || nil != err3 {
		return Purchase{}, fault.TransactionNotFound
	}
	return Purchase{
		Buyer:      fields[0],
		Seller:     fields[1],
		PropertyID: uint32(propertyID),
		Amount:     amount,
		Block:      uint32(block),
	}, nil
}

// RecordCancellation - append a cancelled-order receipt to the
// cancelling transaction
func RecordCancellation(trx *storage.Transaction, masterTxID digest.Digest, c Cancellation) int {
	n := nextSubNumber(trx, masterTxID)
	value := []byte(fmt.Sprintf("%s:%d:%d", c.OrderTxID, c.PropertyID, c.Refunded))
	if nil != trx {
		trx.Put(storage.Pool.TxIndex, subKey(masterTxID, n), value)
	} else {
		storage.Pool.TxIndex.Put(subKey(masterTxID, n), value)
	}
	return n
}

// GetCancellation - fetch one cancelled-order receipt
func GetCancellation(masterTxID digest.Digest, n int) (Cancellation, error) {
	value := storage.Pool.TxIndex.Get(subKey(masterTxID, n))
	if nil == value {
		return Cancellation{}, fault.TransactionNotFound
	}
	fields := strings.Split(string(value), ":")
	if 3 != len(fields) {
		return Cancellation{}, fault.TransactionNotFound
	}
	orderTxID, err1 := digest.FromHexString(fields[0])
	propertyID, err2 := strconv.ParseUint(fields[1], 10, 32)
	refunded, err3 := strconv.ParseInt(fields[2], 10, 64)
	if nil != err1 || nil != err2 || nil != err3 {
		return Cancellation{}, fault.TransactionNotFound
	}
	return Cancellation{
		OrderTxID:  orderTxID,
		PropertyID: uint32(propertyID),
		Refunded:   refunded,
	}, nil
}

// RecordSTO - store one recipient's share of a send-to-owners
func RecordSTO(trx *storage.Transaction, txid digest.Digest, receipt STOReceipt) {
	key := append(mainKey(txid), []byte(receipt.Address)...)
	value := []byte(fmt.Sprintf("%d:%d:%d", receipt.PropertyID, receipt.Amount, receipt.Block))
	if nil != trx {
		trx.Put(storage.Pool.STOReceipts, key, value)
	} else {
		storage.Pool.STOReceipts.Put(key, value)
	}
}

// STOReceiptsOf - all recipient shares of one send-to-owners,
// recipient address ascending
func STOReceiptsOf(txid digest.Digest) []STOReceipt {
	prefix := mainKey(txid)
	receipts := []STOReceipt{}

	cursor := storage.Pool.STOReceipts.NewFetchCursor()
	cursor.Seek(prefix)
	cursor.Map(func(key []byte, value []byte) error {
		if len(key) <= len(prefix) || !bytes.HasPrefix(key, prefix) {
			return fault.TransactionNotFound // sentinel: past the prefix
		}
		var r STOReceipt
		n, err := fmt.Sscanf(string(value), "%d:%d:%d", &r.PropertyID, &r.Amount, &r.Block)
		if nil != err || 3 != n {
			return nil
		}
		r.Address = string(key[len(prefix):])
		receipts = append(receipts, r)
		return nil
	})
	return receipts
}

// trade log key: the two txids in ascending hex order
func tradeKey(txid1 digest.Digest, txid2 digest.Digest) []byte {
	a := mainKey(txid1)
	b := mainKey(txid2)
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}
	return append(a, b...)
}

// RecordTrade - store one MetaDEx cross
func RecordTrade(trx *storage.Transaction, txid1 digest.Digest, txid2 digest.Digest, trade TradeRecord) {
	value := []byte(fmt.Sprintf("%s:%s:%d:%d:%d:%d:%d",
		trade.Address1, trade.Address2, trade.Property1, trade.Amount1,
		trade.Property2, trade.Amount2, trade.Block))
	if nil != trx {
		trx.Put(storage.Pool.TradeLog, tradeKey(txid1, txid2), value)
	} else {
		storage.Pool.TradeLog.Put(tradeKey(txid1, txid2), value)
	}
}

func parseTrade(value []byte) (TradeRecord, bool) {
	fields := strings.Split(string(value), ":")
	if 7 != len(fields) {
		return TradeRecord{}, false
	}
	property1, err1 := strconv.ParseUint(fields[2], 10, 32)
	amount1, err2 := strconv.ParseInt(fields[3], 10, 64)
	property2, err3 := strconv.ParseUint(fields[4], 10, 32)
	amount2, err4 := strconv.ParseInt(fields[5], 10, 64)
	block, err5 := strconv.ParseUint(fields[6], 10, 32)
	if nil != err1 || nil != err2 || nil != err3 || nil != err4 || nil != err5 {
		return TradeRecord{}, false
	}
	return TradeRecord{
		Address1:  fields[0],
		Address2:  fields[1],
		Property1: uint32(property1),
		Amount1:   amount1,
		Property2: uint32(property2),
		Amount2:   amount2,
		Block:     uint32(block),
	}, true
}

// GetTrade - fetch one MetaDEx cross by its order pair
func GetTrade(txid1 digest.Digest, txid2 digest.Digest) (TradeRecord, error) {
	value := storage.Pool.TradeLog.Get(tradeKey(txid1, txid2))
	if nil == value {
		return TradeRecord{}, fault.TransactionNotFound
	}
	trade, ok := parseTrade(value)
	if !ok {
		return TradeRecord{}, fault.TransactionNotFound
	}
	return trade, nil
}

// TradesInvolving - every trade either order of a txid took part in
func TradesInvolving(txid digest.Digest) []TradeRecord {
	hexTxID := string(mainKey(txid))
	trades := []TradeRecord{}

	cursor := storage.Pool.TradeLog.NewFetchCursor()
	cursor.Map(func(key []byte, value []byte) error {
		if 128 != len(key) {
			return nil
		}
		if string(key[:64]) != hexTxID && string(key[64:]) != hexTxID {
			return nil
		}
		if trade, ok := parseTrade(value); ok {
			trades = append(trades, trade)
		}
		return nil
	})
	return trades
}

// DeleteBlock - drop every main record of one block, for reorg
//
// returns the number of records removed; receipts under composite
// keys are left for the replay to overwrite
func DeleteBlock(block uint32) int {
	type doomed struct {
		key []byte
	}
	remove := []doomed{}

	cursor := storage.Pool.TxIndex.NewFetchCursor()
	cursor.Map(func(key []byte, value []byte) error {
		if 64 != len(key) {
			return nil // a receipt, not a main record
		}
		var valid int
		var record Record
		n, err := fmt.Sscanf(string(value), "%d:%d:%d:%d", &valid, &record.Block, &record.Type, &record.Amount)
		if nil != err || 4 != n || record.Block != block {
			return nil
		}
		k := make([]byte, len(key))
		copy(k, key)
		remove = append(remove, doomed{key: k})
		return nil
	})

	for _, d := range remove {
		storage.Pool.TxIndex.Delete(d.key)
	}
	return len(remove)
}

// Wipe - erase every record and receipt, for a reparse from genesis
func Wipe() {
	storage.Pool.TxIndex.Wipe()
	storage.Pool.TradeLog.Wipe()
	storage.Pool.STOReceipts.Wipe()
}
