// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package digest_test

import (
	"testing"

	"github.com/metalayer-inc/metad/digest"
)

// double SHA-256 of "hello world" displayed txid style: the raw digest
// bytes bc62d4b8…4423 are treated as little endian and printed reversed
const helloWorld = "2344b7a9b50f3cc2761a40722c05361f73119f4d5d6cc129da369e0db8d462bc"

func TestDigest(t *testing.T) {

	d := digest.NewDigest([]byte("hello world"))
	if d.String() != helloWorld {
		t.Fatalf("digest: %s  expected: %s", d, helloWorld)
	}

	back, err := digest.FromHexString(helloWorld)
	if nil != err {
		t.Fatalf("from hex error: %s", err)
	}
	if back != d {
		t.Fatalf("round trip mismatch: %v  expected: %v", back, d)
	}
}

func TestCmp(t *testing.T) {

	a := digest.NewDigest([]byte("a"))
	b := digest.NewDigest([]byte("b"))

	if 0 != a.Cmp(a) {
		t.Fatal("digest does not compare equal to itself")
	}
	if a.Cmp(b) == b.Cmp(a) {
		t.Fatal("ordering is not antisymmetric")
	}

	// ordering must agree with the hex representation
	hexOrder := a.String() < b.String()
	cmpOrder := a.Cmp(b) < 0
	if hexOrder != cmpOrder {
		t.Fatalf("hex order: %v  cmp order: %v", hexOrder, cmpOrder)
	}
}

func TestUnmarshalTextRejectsShortHex(t *testing.T) {

	var d digest.Digest
	if err := d.UnmarshalText([]byte("0011")); nil == err {
		t.Fatal("short hex did not return an error")
	}
}
