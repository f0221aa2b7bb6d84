// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package snapshot

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/metalayer-inc/metad/consensushash"
	"github.com/metalayer-inc/metad/crowdsale"
	"github.com/metalayer-inc/metad/dex"
	"github.com/metalayer-inc/metad/digest"
	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/mdex"
	"github.com/metalayer-inc/metad/tally"
)

// one parsed category file
type categoryFile struct {
	blockHash digest.Digest
	stateHash string
	records   []string
}

func readCategory(tag string, height uint32) (*categoryFile, error) {
	f, err := os.Open(fileName(tag, height))
	if nil != err {
		return nil, err
	}
	defer f.Close()

	lines := []string{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1048576), 1048576)
	for scanner.Scan() {
		line := scanner.Text()
		if 0 != len(line) {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); nil != err {
		return nil, err
	}
	if len(lines) < 2 {
		return nil, fault.SnapshotHashMismatch
	}

	header := strings.Split(lines[0], ",")
	if 3 != len(header) || header[0] != tag {
		return nil, fault.SnapshotHashMismatch
	}
	h, err := strconv.ParseUint(header[1], 10, 32)
	if nil != err || uint32(h) != height {
		return nil, fault.SnapshotHashMismatch
	}
	blockHash, err := digest.FromHexString(header[2])
	if nil != err {
		return nil, fault.SnapshotHashMismatch
	}

	return &categoryFile{
		blockHash: blockHash,
		stateHash: lines[len(lines)-1],
		records:   lines[1 : len(lines)-1],
	}, nil
}

// Load - rebuild the in-memory state from one checkpoint
//
// the current state is dropped first; a checkpoint whose recomputed
// consensus hash disagrees with its trailing hash is rejected and the
// state is left empty
//
// the caller must hold the engine lock
func Load(height uint32) (digest.Digest, error) {
	files := make(map[string]*categoryFile)
	for _, tag := range allTags {
		f, err := readCategory(tag, height)
		if nil != err {
			return digest.Digest{}, err
		}
		files[tag] = f
	}

	reference := files[tagBalances]
	for _, f := range files {
		if f.stateHash != reference.stateHash || f.blockHash != reference.blockHash {
			return digest.Digest{}, fault.SnapshotHashMismatch
		}
	}

	tally.Reset()
	dex.Reset()
	mdex.Reset()
	crowdsale.Reset()

	err := loadBalances(files[tagBalances].records)
	if nil == err {
		err = loadDEx(files[tagOffers].records, files[tagAccepts].records)
	}
	if nil == err {
		err = loadOrders(files[tagMdexOrders].records)
	}
	if nil == err {
		err = loadCrowdsales(files[tagCrowdsales].records)
	}
	if nil != err {
		wipe()
		return digest.Digest{}, err
	}

	if consensushash.Hash().String() != reference.stateHash {
		wipe()
		globalData.log.Criticalf("checkpoint hash mismatch at height: %d", height)
		return digest.Digest{}, fault.SnapshotHashMismatch
	}

	globalData.log.Infof("checkpoint loaded: height: %d  hash: %s", height, reference.stateHash)
	return reference.blockHash, nil
}

func wipe() {
	tally.Reset()
	dex.Reset()
	mdex.Reset()
	crowdsale.Reset()
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	return uint32(n), err
}

func parseUint8(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	return uint8(n), err
}

func loadBalances(records []string) error {
	buckets := []tally.Type{
		tally.Balance,
		tally.SellofferReserve,
		tally.AcceptReserve,
		tally.MetadexReserve,
	}
	for _, record := range records {
		fields := strings.Split(record, ",")
		if 6 != len(fields) {
			return fault.SnapshotHashMismatch
		}
		propertyID, err := parseUint32(fields[1])
		if nil != err {
			return fault.SnapshotHashMismatch
		}
		for i, which := range buckets {
			amount, err := parseInt64(fields[2+i])
			if nil != err {
				return fault.SnapshotHashMismatch
			}
			if 0 != amount && !tally.Update(fields[0], propertyID, amount, which) {
				return fault.SnapshotHashMismatch
			}
		}
	}
	return nil
}

func loadDEx(offerRecords []string, acceptRecords []string) error {
	offers := []dex.Offer{}
	for _, record := range offerRecords {
		fields := strings.Split(record, ",")
		if 8 != len(fields) {
			return fault.SnapshotHashMismatch
		}
		txid, err0 := digest.FromHexString(fields[0])
		propertyID, err1 := parseUint32(fields[2])
		amountOriginal, err2 := parseInt64(fields[3])
		amountRemaining, err3 := parseInt64(fields[4])
		coinDesired, err4 := parseInt64(fields[5])
		minFee, err5 := parseInt64(fields[6])
		timeLimit, err6 := parseUint8(fields[7])
		if nil != err0 || nil != err1 || nil != err2 || nil != err3 || nil != err4 || nil != err5 || nil != err6 {
			return fault.SnapshotHashMismatch
		}
		offers = append(offers, dex.Offer{
			TxID:            txid,
			Seller:          fields[1],
			PropertyID:      propertyID,
			AmountOriginal:  amountOriginal,
			AmountRemaining: amountRemaining,
			CoinDesired:     coinDesired,
			MinFee:          minFee,
			BlockTimeLimit:  timeLimit,
		})
	}

	accepts := []dex.Accept{}
	for _, record := range acceptRecords {
		fields := strings.Split(record, ",")
		if 8 != len(fields) {
			return fault.SnapshotHashMismatch
		}
		offerTxID, err0 := digest.FromHexString(fields[0])
		propertyID, err1 := parseUint32(fields[2])
		amount, err2 := parseInt64(fields[4])
		amountRemaining, err3 := parseInt64(fields[5])
		acceptBlock, err4 := parseUint32(fields[6])
		timeLimit, err5 := parseUint8(fields[7])
		if nil != err0 || nil != err1 || nil != err2 || nil != err3 || nil != err4 || nil != err5 {
			return fault.SnapshotHashMismatch
		}
		accepts = append(accepts, dex.Accept{
			OfferTxID:       offerTxID,
			Seller:          fields[1],
			PropertyID:      propertyID,
			Buyer:           fields[3],
			Amount:          amount,
			AmountRemaining: amountRemaining,
			AcceptBlock:     acceptBlock,
			BlockTimeLimit:  timeLimit,
		})
	}

	dex.Restore(offers, accepts)
	return nil
}

func loadOrders(records []string) error {
	orders := []mdex.Order{}
	for _, record := range records {
		fields := strings.Split(record, ",")
		if 9 != len(fields) {
			return fault.SnapshotHashMismatch
		}
		txid, err0 := digest.FromHexString(fields[0])
		block, err1 := parseUint32(fields[2])
		idx, err2 := parseUint32(fields[3])
		propertyForSale, err3 := parseUint32(fields[4])
		amountForSale, err4 := parseInt64(fields[5])
		propertyDesired, err5 := parseUint32(fields[6])
		amountDesired, err6 := parseInt64(fields[7])
		amountRemaining, err7 := parseInt64(fields[8])
		if nil != err0 || nil != err1 || nil != err2 || nil != err3 || nil != err4 || nil != err5 || nil != err6 || nil != err7 {
			return fault.SnapshotHashMismatch
		}
		orders = append(orders, mdex.Order{
			TxID:            txid,
			Address:         fields[1],
			Block:           block,
			Idx:             idx,
			PropertyForSale: propertyForSale,
			AmountForSale:   amountForSale,
			PropertyDesired: propertyDesired,
			AmountDesired:   amountDesired,
			AmountRemaining: amountRemaining,
		})
	}

	mdex.Restore(orders)
	return nil
}

func loadCrowdsales(records []string) error {
	sales := []crowdsale.Crowdsale{}
	for _, record := range records {
		fields := strings.Split(record, ",")
		if len(fields) < 12 {
			return fault.SnapshotHashMismatch
		}
		propertyID, err0 := parseUint32(fields[0])
		propertyDesired, err1 := parseUint32(fields[2])
		numTokens, err2 := parseInt64(fields[3])
		deadline, err3 := parseInt64(fields[4])
		earlyBird, err4 := parseUint8(fields[5])
		issuerBonus, err5 := parseUint8(fields[6])
		txid, err6 := digest.FromHexString(fields[9])
		userCreated, err7 := parseInt64(fields[10])
		issuerCreated, err8 := parseInt64(fields[11])
		if nil != err0 || nil != err1 || nil != err2 || nil != err3 || nil != err4 || nil != err5 || nil != err6 || nil != err7 || nil != err8 {
			return fault.SnapshotHashMismatch
		}

		participations := make(map[string][]int64)
		for _, field := range fields[12:] {
			if !strings.HasPrefix(field, "participation_") {
				return fault.SnapshotHashMismatch
			}
			pair := strings.SplitN(strings.TrimPrefix(field, "participation_"), "=", 2)
			if 2 != len(pair) {
				return fault.SnapshotHashMismatch
			}
			values := strings.Split(pair[1], ";")
			if 4 != len(values) {
				return fault.SnapshotHashMismatch
			}
			numbers := make([]int64, 4)
			for i, v := range values {
				n, err := parseInt64(v)
				if nil != err {
					return fault.SnapshotHashMismatch
				}
				numbers[i] = n
			}
			participations[pair[0]] = numbers
		}

		sales = append(sales, crowdsale.Crowdsale{
			PropertyID:       propertyID,
			Issuer:           fields[1],
			PropertyDesired:  propertyDesired,
			NumTokens:        numTokens,
			Deadline:         deadline,
			EarlyBirdBonus:   earlyBird,
			IssuerBonus:      issuerBonus,
			Divisible:        "1" == fields[7],
			DesiredDivisible: "1" == fields[8],
			TxID:             txid,
			UserCreated:      userCreated,
			IssuerCreated:    issuerCreated,
			Participations:   participations,
		})
	}

	crowdsale.Restore(sales)
	return nil
}
