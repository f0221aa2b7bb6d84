// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/metalayer-inc/metad/fault"
)

// Length - number of bytes in the digest
const Length = 32

// Digest - type for a digest
// stored as little endian byte array
// represented as big endian hex value for print
// to convert to bytes just use d[:]
type Digest [Length]byte

// NewDigest - create a digest from a byte slice
//
// double SHA-256 to match the base chain's transaction ids
func NewDigest(record []byte) Digest {
	roundOne := sha256.Sum256(record)
	return sha256.Sum256(roundOne[:])
}

// internal function to return a reversed byte order copy of a digest
func reversed(d Digest) []byte {
	result := make([]byte, Length)
	for i := 0; i < Length; i += 1 {
		result[i] = d[Length-1-i]
	}
	return result
}

// String - convert a binary digest to hex string for use by the fmt package (for %s)
//
// the stored version is in little endian, but the output string is big endian
func (digest Digest) String() string {
	return hex.EncodeToString(reversed(digest))
}

// GoString - convert a binary digest to big endian hex string for use by the fmt package (for %#v)
func (digest Digest) GoString() string {
	return "<SHA256*2:" + hex.EncodeToString(reversed(digest)) + ">"
}

// MarshalText - convert digest to big endian hex text
func (digest Digest) MarshalText() ([]byte, error) {
	size := hex.EncodedLen(Length)
	buffer := make([]byte, size)
	hex.Encode(buffer, reversed(digest))
	return buffer, nil
}

// UnmarshalText - convert little endian hex text into a digest
func (digest *Digest) UnmarshalText(s []byte) error {
	buffer := make([]byte, hex.DecodedLen(len(s)))
	byteCount, err := hex.Decode(buffer, s)
	if nil != err {
		return err
	}
	if Length != byteCount {
		return fault.WrongHexLength
	}
	for i, v := range buffer {
		digest[Length-1-i] = v
	}
	return nil
}

// FromHexString - convert a big endian hex representation to a digest
func FromHexString(s string) (Digest, error) {
	var d Digest
	err := d.UnmarshalText([]byte(s))
	return d, err
}

// IsEmpty - true if the digest is all zero
func (digest Digest) IsEmpty() bool {
	return digest == Digest{}
}

// Cmp - compare two digests as 256 bit little endian integers
// returns -1/0/+1
func (digest Digest) Cmp(other Digest) int {
	for i := Length - 1; i >= 0; i -= 1 {
		if digest[i] < other[i] {
			return -1
		}
		if digest[i] > other[i] {
			return 1
		}
	}
	return 0
}

// ensure the fmt.Stringer interface cannot silently change
var _ fmt.Stringer = Digest{}
