// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/bitmark-inc/logger"

	"github.com/metalayer-inc/metad/fault"
)

// exported storage pools
//
// note all must be exported (i.e. initial capital) or initialisation will panic
type pools struct {
	Properties      *PoolHandle `prefix:"s"` // property id → current entry
	PropertyHistory *PoolHandle `prefix:"b"` // block hash + property id → archived entry
	PropertyTxIndex *PoolHandle `prefix:"t"` // creation txid → property id
	Globals         *PoolHandle `prefix:"G"` // watermark and other singletons
	UniqueTokens    *PoolHandle `prefix:"u"` // token range → owner
	TxIndex         *PoolHandle `prefix:"x"` // txid → validity record
	TradeLog        *PoolHandle `prefix:"r"` // sorted txid pair → trade record
	STOReceipts     *PoolHandle `prefix:"o"` // txid + address → receipt
	TestData        *PoolHandle `prefix:"Z"` // for unit tests only
}

// Pool - the set of exported pools
var Pool pools

// for database version
var versionKey = []byte{0x00, 'V', 'E', 'R', 'S', 'I', 'O', 'N'}

const (
	currentStateDBVersion = 0x100
)

// holds the database handle
var poolData struct {
	sync.RWMutex
	db *leveldb.DB
}

// Initialise - open up the database connection
//
// this must be called before any pool is accessed
func Initialise(database string) error {
	poolData.Lock()
	defer poolData.Unlock()

	if nil != poolData.db {
		return fault.AlreadyInitialised
	}

	stateDatabase := database + "-state.leveldb"

	db, version, err := getDB(stateDatabase)
	if nil != err {
		return err
	}

	// ensure no database downgrade
	if version > currentStateDBVersion {
		logger.Criticalf("state database version: %d > current version: %d", version, currentStateDBVersion)
		db.Close()
		return fmt.Errorf("state database version: %d > current version: %d", version, currentStateDBVersion)
	}

	if version < currentStateDBVersion {
		err = putVersion(db, currentStateDBVersion)
		if nil != err {
			db.Close()
			return err
		}
	}

	poolData.db = db

	// this will be a struct type
	poolType := reflect.TypeOf(Pool)

	// get write access by using pointer + Elem()
	poolValue := reflect.ValueOf(&Pool).Elem()

	// scan each field
	for i := 0; i < poolType.NumField(); i += 1 {

		fieldInfo := poolType.Field(i)
		prefixTag := fieldInfo.Tag.Get("prefix")
		if 1 != len(prefixTag) {
			return fmt.Errorf("pool: %v  has invalid prefix: %q", fieldInfo, prefixTag)
		}

		prefix := prefixTag[0]
		limit := []byte(nil)
		if prefix < 255 {
			limit = []byte{prefix + 1}
		}

		p := &PoolHandle{
			prefix: prefix,
			limit:  limit,
		}
		newPool := reflect.ValueOf(p)
		poolValue.Field(i).Set(newPool)
	}

	return nil
}

// Finalise - close the database connection
func Finalise() {
	poolData.Lock()
	defer poolData.Unlock()
	dbClose()
}

// open the database and get its version
func getDB(name string) (*leveldb.DB, int, error) {
	opt := &ldb_opt.Options{
		ErrorIfExist:   false,
		ErrorIfMissing: false,
		Strict:         ldb_opt.DefaultStrict,
	}
	db, err := leveldb.OpenFile(name, opt)
	if nil != err {
		return nil, 0, err
	}

	versionValue, err := db.Get(versionKey, nil)
	if leveldb.ErrNotFound == err {
		return db, 0, nil
	} else if nil != err {
		db.Close()
		return nil, 0, err
	}

	if 4 != len(versionValue) {
		db.Close()
		return nil, 0, fmt.Errorf("incompatible database version length: expected: %d  actual: %d", 4, len(versionValue))
	}

	version := int(binary.BigEndian.Uint32(versionValue))
	return db, version, nil
}

// write the version key
func putVersion(db *leveldb.DB, version int) error {
	currentVersion := make([]byte, 4)
	binary.BigEndian.PutUint32(currentVersion, uint32(version))
	return db.Put(versionKey, currentVersion, nil)
}

// close the database
func dbClose() {
	if nil != poolData.db {
		poolData.db.Close()
		poolData.db = nil
	}
}

// IsInitialised - check the database is initialised
func IsInitialised() bool {
	poolData.RLock()
	result := nil != poolData.db
	poolData.RUnlock()
	return result
}
