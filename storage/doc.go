// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package storage - maintain the on-disk state data
//
// maintains a LevelDB database split into a series of pools,
// each pool being distinguished by a single byte prefix on the key
//
// keys are kept fixed layout so that the natural lexicographic
// ordering of LevelDB matches the numeric ordering of the record;
// every range scan in the engine relies on this
package storage
