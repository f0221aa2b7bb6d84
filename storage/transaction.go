// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/bitmark-inc/logger"

	"github.com/metalayer-inc/metad/fault"
)

// Transaction - a batch of writes committed atomically at block end
//
// reads through the transaction see the uncommitted writes, so a
// record stored earlier in the same block can be fetched back before
// the batch is flushed to disk
type Transaction struct {
	sync.Mutex
	batch   *leveldb.Batch
	updated map[string][]byte
	deleted map[string]struct{}
	inUse   bool
}

// durable write options: a block commit must reach disk before the
// watermark can advance
var syncWrite = &ldb_opt.WriteOptions{Sync: true}

// NewTransaction - create an idle transaction
func NewTransaction() *Transaction {
	return &Transaction{
		batch:   new(leveldb.Batch),
		updated: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// Begin - start collecting writes
func (trx *Transaction) Begin() error {
	trx.Lock()
	defer trx.Unlock()

	if trx.inUse {
		return fault.AlreadyInitialised
	}
	trx.inUse = true
	return nil
}

// InUse - check if a batch is currently collecting writes
func (trx *Transaction) InUse() bool {
	trx.Lock()
	defer trx.Unlock()
	return trx.inUse
}

// Put - store a key/value pair into the batch
func (trx *Transaction) Put(p *PoolHandle, key []byte, value []byte) {
	prefixed := p.prefixKey(key)

	trx.Lock()
	defer trx.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	trx.updated[string(prefixed)] = v
	delete(trx.deleted, string(prefixed))
	trx.batch.Put(prefixed, value)
}

// PutN - store a uint64 value into the batch
func (trx *Transaction) PutN(p *PoolHandle, key []byte, value uint64) {
	buffer := make([]byte, 8)
	binary.BigEndian.PutUint64(buffer, value)
	trx.Put(p, key, buffer)
}

// Delete - remove a key via the batch
func (trx *Transaction) Delete(p *PoolHandle, key []byte) {
	prefixed := p.prefixKey(key)

	trx.Lock()
	defer trx.Unlock()

	delete(trx.updated, string(prefixed))
	trx.deleted[string(prefixed)] = struct{}{}
	trx.batch.Delete(prefixed)
}

// Get - read a value, seeing uncommitted writes first
func (trx *Transaction) Get(p *PoolHandle, key []byte) []byte {
	prefixed := p.prefixKey(key)

	trx.Lock()
	if value, ok := trx.updated[string(prefixed)]; ok {
		trx.Unlock()
		result := make([]byte, len(value))
		copy(result, value)
		return result
	}
	if _, ok := trx.deleted[string(prefixed)]; ok {
		trx.Unlock()
		return nil
	}
	trx.Unlock()

	return p.Get(key)
}

// GetN - read a uint64 value, seeing uncommitted writes first
func (trx *Transaction) GetN(p *PoolHandle, key []byte) (uint64, bool) {
	buffer := trx.Get(p, key)
	if nil == buffer {
		return 0, false
	}
	if len(buffer) < 8 {
		logger.Panicf("transaction.GetN truncated record for: %x: %s", key, buffer)
	}
	return binary.BigEndian.Uint64(buffer[:8]), true
}

// Has - check a key, seeing uncommitted writes first
func (trx *Transaction) Has(p *PoolHandle, key []byte) bool {
	prefixed := p.prefixKey(key)

	trx.Lock()
	if _, ok := trx.updated[string(prefixed)]; ok {
		trx.Unlock()
		return true
	}
	if _, ok := trx.deleted[string(prefixed)]; ok {
		trx.Unlock()
		return false
	}
	trx.Unlock()

	return p.Has(key)
}

// Commit - write the batch durably and reset
func (trx *Transaction) Commit() error {
	trx.Lock()
	defer trx.Unlock()

	poolData.RLock()
	db := poolData.db
	poolData.RUnlock()
	if nil == db {
		return fault.NotInitialised
	}

	err := db.Write(trx.batch, syncWrite)
	trx.reset()
	return err
}

// Abort - throw away all collected writes
func (trx *Transaction) Abort() {
	trx.Lock()
	defer trx.Unlock()
	trx.reset()
}

// must hold the lock
func (trx *Transaction) reset() {
	trx.batch.Reset()
	trx.updated = make(map[string][]byte)
	trx.deleted = make(map[string]struct{})
	trx.inUse = false
}
