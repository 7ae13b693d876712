// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EventDesk Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by repositories when a unique key is already taken.
var ErrDuplicate = errors.New("duplicate")

// Kind classifies a failure for the transport layer.
type Kind string

// Failure kinds, carried as oops tags.
const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

var knownKinds = map[string]Kind{
	string(KindValidation): KindValidation,
	string(KindNotFound):   KindNotFound,
	string(KindConflict):   KindConflict,
	string(KindAuth):       KindAuth,
	string(KindForbidden):  KindForbidden,
}

// KindOf reports the kind of err. Errors that carry no kind tag are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindInternal
	}
	for _, tag := range oopsErr.Tags() {
		if kind, ok := knownKinds[tag]; ok {
			return kind
		}
	}
	return KindInternal
}

// fail starts a domain error of the given kind.
func fail(kind Kind, code string) oops.OopsErrorBuilder {
	return oops.Code(code).Tags(string(kind))
}
