// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package uniquetoken - ownership intervals for non-fungible tokens
//
// each property's token ids are covered by disjoint contiguous ranges,
// one owner per range; adjacent ranges with the same owner are always
// merged, so range count stays proportional to distinct holdings
//
// keys are fixed-width ASCII so lexicographic iteration yields ranges
// grouped by property and ordered by start
package uniquetoken

import (
	"fmt"
	"math"

	"github.com/metalayer-inc/metad/fault"
	"github.com/metalayer-inc/metad/storage"
)

// Range - one owned interval of token ids
type Range struct {
	Start int64
	End   int64
	Owner string
}

// sentinel to stop a cursor scan early
var errStopIteration = fmt.Errorf("stop iteration")

func rangeKey(propertyID uint32, start int64, end int64) []byte {
	return []byte(fmt.Sprintf("%010d_%020d-%020d", propertyID, start, end))
}

func propertyPrefix(propertyID uint32) string {
	return fmt.Sprintf("%010d_", propertyID)
}

func parseRangeKey(key []byte) (int64, int64, bool) {
	// "pppppppppp_ssssssssssssssssssss-eeeeeeeeeeeeeeeeeeee"
	if 52 != len(key) {
		return 0, 0, false
	}
	var propertyID uint32
	var start, end int64
	n, err := fmt.Sscanf(string(key), "%010d_%020d-%020d", &propertyID, &start, &end)
	if nil != err || 3 != n {
		return 0, 0, false
	}
	return start, end, true
}

// Wipe - erase every range, for a reparse from genesis
func Wipe() {
	storage.Pool.UniqueTokens.Wipe()
}

// iterate the ranges of one property in ascending start order
func iterate(propertyID uint32, f func(r Range) error) error {
	prefix := propertyPrefix(propertyID)
	cursor := storage.Pool.UniqueTokens.NewFetchCursor()
	cursor.Seek([]byte(prefix))

	err := cursor.Map(func(key []byte, value []byte) error {
		if len(key) < len(prefix) || string(key[:len(prefix)]) != prefix {
			return errStopIteration
		}
		start, end, ok := parseRangeKey(key)
		if !ok {
			return fault.TokenRangeNotOwned
		}
		return f(Range{Start: start, End: end, Owner: string(value)})
	})
	if errStopIteration == err {
		err = nil
	}
	return err
}

// HighestRangeEnd - the top assigned token id, zero when none
func HighestRangeEnd(propertyID uint32) int64 {
	highest := int64(0)
	iterate(propertyID, func(r Range) error {
		if r.End > highest {
			highest = r.End
		}
		return nil
	})
	return highest
}

// GetRange - the range containing a token id
func GetRange(propertyID uint32, tokenID int64) (Range, bool) {
	var found Range
	ok := false
	iterate(propertyID, func(r Range) error {
		if r.Start <= tokenID && tokenID <= r.End {
			found = r
			ok = true
			return errStopIteration
		}
		return nil
	})
	return found, ok
}

// OwnerOf - the owner of one token id, empty when unassigned
func OwnerOf(propertyID uint32, tokenID int64) string {
	r, ok := GetRange(propertyID, tokenID)
	if !ok {
		return ""
	}
	return r.Owner
}

// IsRangeContiguous - check [start,end] lies inside a single range
//
// returns that range's owner on success
func IsRangeContiguous(propertyID uint32, start int64, end int64) (string, bool) {
	if start <= 0 || end < start {
		return "", false
	}
	r, ok := GetRange(propertyID, start)
	if !ok || end > r.End {
		return "", false
	}
	return r.Owner, true
}

// RangesOf - all ranges owned by one address, ascending
func RangesOf(propertyID uint32, owner string) []Range {
	ranges := []Range{}
	iterate(propertyID, func(r Range) error {
		if r.Owner == owner {
			ranges = append(ranges, r)
		}
		return nil
	})
	return ranges
}

// AllRanges - every range of a property, ascending
func AllRanges(propertyID uint32) []Range {
	ranges := []Range{}
	iterate(propertyID, func(r Range) error {
		ranges = append(ranges, r)
		return nil
	})
	return ranges
}

// Create - assign the next amount token ids to an owner
//
// appends above the current top range and merges with it when it has
// the same owner; the end is clamped at the id domain's top
func Create(propertyID uint32, amount int64, owner string) (int64, int64, error) {
	if amount <= 0 {
		return 0, 0, fault.InvalidAmount
	}

	pool := storage.Pool.UniqueTokens

	var top Range
	haveTop := false
	iterate(propertyID, func(r Range) error {
		top = r
		haveTop = true
		return nil
	})

	start := int64(1)
	if haveTop {
		if math.MaxInt64 == top.End {
			return 0, 0, fault.InvalidAmount
		}
		start = top.End + 1
	}

	end := start + amount - 1
	if end < start { // overflow
		end = math.MaxInt64
	}

	if haveTop && top.Owner == owner {
		// extend the existing top range
		pool.Delete(rangeKey(propertyID, top.Start, top.End))
		pool.Put(rangeKey(propertyID, top.Start, end), []byte(owner))
	} else {
		pool.Put(rangeKey(propertyID, start, end), []byte(owner))
	}

	return start, end, nil
}

// Move - transfer the tokens [start,end] between addresses
//
// the whole interval must lie inside a single range owned by the
// sender; unsold remainders split back to the sender and the moved
// interval merges into any adjacent ranges of the receiver
func Move(propertyID uint32, start int64, end int64, from string, to string) error {
	if start <= 0 || end < start {
		return fault.InvalidAmount
	}

	containing, ok := GetRange(propertyID, start)
	if !ok || end > containing.End {
		return fault.TokenRangeNotContiguous
	}
	if containing.Owner != from {
		return fault.TokenRangeNotOwned
	}
	if from == to {
		return nil
	}

	pool := storage.Pool.UniqueTokens

	// neighbours before the split, for receiver-side merging
	all := AllRanges(propertyID)

	pool.Delete(rangeKey(propertyID, containing.Start, containing.End))

	movedStart := start
	movedEnd := end

	if containing.Start < start {
		pool.Put(rangeKey(propertyID, containing.Start, start-1), []byte(from))
	} else {
		// moved interval touches the range's lower bound: merge with a
		// preceding range of the receiver
		for _, r := range all {
			if r.End == start-1 && r.Owner == to {
				pool.Delete(rangeKey(propertyID, r.Start, r.End))
				movedStart = r.Start
				break
			}
		}
	}

	if end < containing.End {
		pool.Put(rangeKey(propertyID, end+1, containing.End), []byte(from))
	} else {
		// moved interval touches the range's upper bound: merge with a
		// following range of the receiver
		for _, r := range all {
			if r.Start == end+1 && r.Owner == to {
				pool.Delete(rangeKey(propertyID, r.Start, r.End))
				movedEnd = r.End
				break
			}
		}
	}

	pool.Put(rangeKey(propertyID, movedStart, movedEnd), []byte(to))
	return nil
}
