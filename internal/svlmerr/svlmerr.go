// Package svlmerr defines the error taxonomy shared across the vote
// latency pipeline: every error returned across a component boundary
// carries a Kind so callers can classify, retry, and label metrics
// without string-matching messages.
package svlmerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the subsystem and cause that produced it.
type Kind string

const (
	KindConfig            Kind = "config"
	KindRPC               Kind = "rpc"
	KindGrpc              Kind = "grpc"
	KindStore             Kind = "store"
	KindParse             Kind = "parse"
	KindSerialization     Kind = "serialization"
	KindNetwork           Kind = "network"
	KindValidatorNotFound Kind = "validator_not_found"
	KindInvalidVote       Kind = "invalid_vote"
	KindStorage           Kind = "storage"
	KindRateLimit         Kind = "rate_limit"
	KindTimeout           Kind = "timeout"
	KindInternal          Kind = "internal"
)

// Error is the typed error every component in this module returns.
// It wraps an underlying cause while attaching a Kind for classification.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, svlmerr.Kind) style matching work by comparing Kinds
// when the target is itself an *Error with no wrapped cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) && t.Err == nil {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the operation that produced err is generally
// safe to retry. Network hiccups, timeouts, rate limits, and transient
// gRPC/store errors are retryable; configuration, parse, and validation
// failures are not, since retrying would reproduce the same failure.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindRPC, KindGrpc, KindNetwork, KindRateLimit, KindTimeout, KindStore, KindStorage:
		return true
	default:
		return false
	}
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// was not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Sentinel(kind Kind, op string) error {
	return New(kind, op, nil)
}
