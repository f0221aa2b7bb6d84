// SPDX-License-Identifier: ISC
// Copyright (c) 2019-2026 Metalayer Inc.
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package fault

// GenericError - error base
type GenericError string

// to allow for different classes of errors
type (
	// ExistsError - something exists that should not
	ExistsError GenericError

	// InvalidError - a payload or semantic check failed, the
	// containing transaction is rejected without side effects
	InvalidError GenericError

	// NotFoundError - something that should exist does not
	NotFoundError GenericError

	// ProcessError - a fatal condition, the engine state can no
	// longer be trusted and a reparse is required
	ProcessError GenericError
)

// common errors - keep in alphabetic order per class
var (
	AcceptAlreadyExists     = ExistsError("accept already exists")
	AlreadyInitialised      = ExistsError("already initialised")
	CrowdsaleAlreadyActive  = ExistsError("crowdsale already active for address")
	OfferAlreadyExists      = ExistsError("sell offer already exists")
	PropertyIDAlreadyExists = ExistsError("property id already exists")

	AcceptNotFound      = NotFoundError("accept not found")
	CrowdsaleNotFound   = NotFoundError("crowdsale not found")
	NotInitialised      = NotFoundError("not initialised")
	OfferNotFound       = NotFoundError("sell offer not found")
	OrderNotFound       = NotFoundError("order not found")
	PropertyNotFound    = NotFoundError("property not found")
	TransactionNotFound = NotFoundError("transaction not found")
	WatermarkNotFound   = NotFoundError("watermark not found")

	CrowdsaleNotActive       = InvalidError("crowdsale not active")
	DataTooLong              = InvalidError("string field exceeds maximum length")
	EcosystemMismatch        = InvalidError("properties are not in the same ecosystem")
	InsufficientBalance      = InvalidError("insufficient balance")
	InvalidAmount            = InvalidError("amount is out of range")
	InvalidCount             = InvalidError("count is invalid")
	InvalidCursor            = InvalidError("cursor is invalid")
	InvalidEcosystem         = InvalidError("ecosystem is invalid")
	InvalidPropertyType      = InvalidError("property type is invalid")
	InvalidSubaction         = InvalidError("subaction is invalid")
	NotManagedProperty       = InvalidError("property is not managed")
	NotPropertyIssuer        = InvalidError("sender is not the property issuer")
	NotUniqueProperty        = InvalidError("property does not have unique tokens")
	PreviousPropertyRequired = InvalidError("previous property id is required")
	SamePropertyTrade        = InvalidError("cannot trade a property for itself")
	TokenRangeNotContiguous  = InvalidError("token range is not contiguous")
	TokenRangeNotOwned       = InvalidError("token range is not owned by sender")
	TransactionNotAllowedYet = InvalidError("transaction type not allowed at this height")
	WrongHexLength           = InvalidError("hex string is the wrong length")

	MissingPreviousProperty = ProcessError("previous property entry is missing")
	SnapshotHashMismatch    = ProcessError("snapshot consensus hash mismatch")
	WatermarkMismatch       = ProcessError("watermark does not match previous block")
)

// Error - the error interface base method
func (e GenericError) Error() string { return string(e) }

// Error - the error interface methods
func (e ExistsError) Error() string   { return string(e) }
func (e InvalidError) Error() string  { return string(e) }
func (e NotFoundError) Error() string { return string(e) }
func (e ProcessError) Error() string  { return string(e) }

// IsErrExists - determine the class of an error
func IsErrExists(e error) bool { _, ok := e.(ExistsError); return ok }

// IsErrInvalid - determine the class of an error
func IsErrInvalid(e error) bool { _, ok := e.(InvalidError); return ok }

// IsErrNotFound - determine the class of an error
func IsErrNotFound(e error) bool { _, ok := e.(NotFoundError); return ok }

// IsErrProcess - determine the class of an error
func IsErrProcess(e error) bool { _, ok := e.(ProcessError); return ok }
