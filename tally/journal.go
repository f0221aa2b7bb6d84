// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package tally

// one applied balance change
type journalEntry struct {
	address    string
	propertyID uint32
	amount     int64
	which      Type
}

// Journal - records successful balance updates so a partially applied
// transaction can be rolled back
//
// a journal is single-use and not safe for concurrent access
type Journal struct {
	entries []journalEntry
}

// Update - apply a balance change and remember it for unwinding
//
// a rejected update is not recorded
func (j *Journal) Update(address string, propertyID uint32, amount int64, which Type) bool {
	if !Update(address, propertyID, amount, which) {
		return false
	}
	j.entries = append(j.entries, journalEntry{
		address:    address,
		propertyID: propertyID,
		amount:     amount,
		which:      which,
	})
	return true
}

// Unwind - apply the inverse of every recorded change, newest first
//
// the engine lock is held across a whole transaction so no other
// update can interleave; the inverse of a recorded change can
// therefore never underflow
func (j *Journal) Unwind() {
	for i := len(j.entries) - 1; i >= 0; i -= 1 {
		e := j.entries[i]
		Update(e.address, e.propertyID, -e.amount, e.which)
	}
	j.entries = nil
}

// Size - number of recorded changes
func (j *Journal) Size() int {
	return len(j.entries)
}
