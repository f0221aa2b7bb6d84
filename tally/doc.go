// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package tally - per-address token balances
//
// every address holds, for each property, a vector of five signed
// balances: the spendable amount and the reserves backing open sell
// offers, accepts and book orders, plus a wallet-local pending value
//
// all buckets except pending are kept non-negative; pending may go
// negative to represent broadcast-but-unconfirmed debits
package tally
