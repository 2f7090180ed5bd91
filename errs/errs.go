// Package errs enumerates the tagged error kinds raised across the node
// (spec.md §7), so that every component reports failures the orchestrator
// and CLI can render by a stable kind rather than a raw message string.
package errs

import "errors"

// Kind is a stable error-kind tag attached to every fallible core operation.
type Kind string

const (
	KindInvalidSignature     Kind = "InvalidSignature"
	KindInvalidPublicKey     Kind = "InvalidPublicKey"
	KindMalformedMessage     Kind = "MalformedMessage"
	KindUnknownValidator     Kind = "UnknownValidator"
	KindUnknownAccount       Kind = "UnknownAccount"
	KindNonceMismatch        Kind = "NonceMismatch"
	KindInsufficientBalance  Kind = "InsufficientBalance"
	KindOutOfGas             Kind = "OutOfGas"
	KindBlockGasLimitExceeded Kind = "BlockGasLimitExceeded"
	KindMempoolFull          Kind = "MempoolFull"
	KindDuplicate            Kind = "Duplicate"
	KindFeeBelowMinimum      Kind = "FeeBelowMinimum"
	KindSenderLimitReached   Kind = "SenderLimitReached"
	KindWrongChain           Kind = "WrongChain"
	KindWrongHeight          Kind = "WrongHeight"
	KindWrongRound           Kind = "WrongRound"
	KindWrongProposer        Kind = "WrongProposer"
	KindInvalidStateRoot     Kind = "InvalidStateRoot"
	KindUnknownParent        Kind = "UnknownParent"
	KindNoCandidate          Kind = "NoCandidate"
	KindRateLimited          Kind = "RateLimited"
	KindPeerBanned           Kind = "PeerBanned"
	KindStorageIO            Kind = "StorageIo"
)

// Error wraps an underlying cause with a stable kind tag.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a tagged error from a kind and a plain message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Cause: errors.New(msg)}
}

// Wrap attaches kind to an existing error.
func Wrap(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: cause}
}

// KindOf extracts the tagged kind from err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is tagged with kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
