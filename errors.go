package taskcache

import "github.com/cuenv-dev/taskcache/internal/cacheerr"

// CacheError is the concrete error type returned by every public cache
// operation that fails. Kind drives programmatic branching via errors.Is;
// RecoveryHint is advisory guidance for the caller.
type CacheError = cacheerr.CacheError

// Kind classifies a CacheError for programmatic handling.
type Kind = cacheerr.Kind

// RecoveryHint suggests how a caller should react to a CacheError.
type RecoveryHint = cacheerr.RecoveryHint

// RecoveryHintKind enumerates the shapes a RecoveryHint can take.
type RecoveryHintKind = cacheerr.RecoveryHintKind

const (
	KindIO                = cacheerr.KindIO
	KindCorruption        = cacheerr.KindCorruption
	KindSerialization     = cacheerr.KindSerialization
	KindCompression       = cacheerr.KindCompression
	KindInvalidKey        = cacheerr.KindInvalidKey
	KindCapacityExceeded  = cacheerr.KindCapacityExceeded
	KindStoreUnavailable  = cacheerr.KindStoreUnavailable
	KindTimeout           = cacheerr.KindTimeout
	KindConfiguration     = cacheerr.KindConfiguration
)

const (
	RecoveryNone             = cacheerr.RecoveryNone
	RecoveryRetry            = cacheerr.RecoveryRetry
	RecoveryCheckPermissions = cacheerr.RecoveryCheckPermissions
	RecoveryClearAndRetry    = cacheerr.RecoveryClearAndRetry
	RecoveryIncreaseCapacity = cacheerr.RecoveryIncreaseCapacity
	RecoveryManual           = cacheerr.RecoveryManual
	RecoveryRejectInput      = cacheerr.RecoveryRejectInput
)
