package types

import "errors"

var (
	// ErrNotFound is returned when the requested document does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when the resource conflicts (e.g. update of old revision)
	ErrConflict = errors.New("conflict")

	// ErrBadRequest is returned on malformed input
	ErrBadRequest = errors.New("bad request")

	// ErrNotAuthorized is returned when the caller has no access to the resource
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInternal (for unhandled exceptions)
	ErrInternal = errors.New("internal error")

	// ErrCryptoFailure is returned on malformed keys or ciphertext.
	// Fatal to the single operation, never retried.
	ErrCryptoFailure = errors.New("crypto failure")

	// ErrAuthenticationFailure is returned when a ciphertext integrity check fails.
	// Logged as a security event, never retried automatically.
	ErrAuthenticationFailure = errors.New("authentication failure")

	// ErrKeyMismatch is returned when a wrapped key cannot be unwrapped with the
	// supplied private key. Logged as a security event, never retried automatically.
	ErrKeyMismatch = errors.New("key mismatch")

	// ErrNoRoute is returned when no recipient is eligible for a submission.
	// Nothing is persisted in that case.
	ErrNoRoute = errors.New("no eligible recipients")

	// ErrStoreUnavailable is returned when a storage read or write times out.
	// The caller must not assume a partial write occurred.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRegistryUnavailable is returned when a recipient registry lookup times out
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// ErrLockout is returned while a credential is under backoff lockout
	ErrLockout = errors.New("credential locked out")

	// ErrInvalidPublicKey is returned on a key of the wrong type or size
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidPrivateKey is returned on a key of the wrong type or size
	ErrInvalidPrivateKey = errors.New("invalid private key")
)
