// Package cacheerr defines the cache engine's error taxonomy, shared by
// every internal package and re-exported by the root taskcache package.
package cacheerr

import "fmt"

// Kind classifies a CacheError for programmatic handling.
type Kind int

const (
	// KindIO covers file-system failures.
	KindIO Kind = iota
	// KindCorruption covers CRC/magic/version mismatches and orphaned files.
	KindCorruption
	// KindSerialization covers encode/decode failures.
	KindSerialization
	// KindCompression covers zstd failures.
	KindCompression
	// KindInvalidKey covers empty or null-byte keys.
	KindInvalidKey
	// KindCapacityExceeded covers writer pre-flight capacity rejection.
	KindCapacityExceeded
	// KindStoreUnavailable covers a cache that refused to start or is shutting down.
	KindStoreUnavailable
	// KindTimeout covers permit acquisition exceeding its deadline.
	KindTimeout
	// KindConfiguration covers invalid configuration.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCorruption:
		return "corruption"
	case KindSerialization:
		return "serialization"
	case KindCompression:
		return "compression"
	case KindInvalidKey:
		return "invalid_key"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindTimeout:
		return "timeout"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// RecoveryHint suggests how a caller should react to a CacheError.
type RecoveryHint struct {
	// Kind is one of the RecoveryHint* constants.
	Kind RecoveryHintKind
	// RetryAfterMS is the suggested delay for RecoveryRetry; zero when no
	// delay is suggested.
	RetryAfterMS int64
	// Instructions is populated for RecoveryManual.
	Instructions string
}

// RecoveryHintKind enumerates the shapes a RecoveryHint can take.
type RecoveryHintKind int

const (
	RecoveryNone RecoveryHintKind = iota
	RecoveryRetry
	RecoveryCheckPermissions
	RecoveryClearAndRetry
	RecoveryIncreaseCapacity
	RecoveryManual
	RecoveryRejectInput
)

// Retry builds a RecoveryHint advising a retry after the given delay.
func Retry(ms int64) RecoveryHint { return RecoveryHint{Kind: RecoveryRetry, RetryAfterMS: ms} }

// Manual builds a RecoveryHint with free-form operator instructions.
func Manual(instructions string) RecoveryHint {
	return RecoveryHint{Kind: RecoveryManual, Instructions: instructions}
}

var (
	hintCheckPermissions = RecoveryHint{Kind: RecoveryCheckPermissions}
	hintClearAndRetry    = RecoveryHint{Kind: RecoveryClearAndRetry}
	hintIncreaseCapacity = RecoveryHint{Kind: RecoveryIncreaseCapacity}
	hintRejectInput      = RecoveryHint{Kind: RecoveryRejectInput}
	hintStoreRetry       = RecoveryHint{Kind: RecoveryRetry}
)

// CacheError is the concrete error type returned by every public cache
// operation that fails. Kind drives programmatic branching; RecoveryHint
// is advisory guidance for the caller.
type CacheError struct {
	Kind         Kind
	Op           string
	Key          string
	Path         string
	Reason       string
	RecoveryHint RecoveryHint
	Err          error
}

func (e *CacheError) Error() string {
	switch {
	case e.Key != "" && e.Path != "":
		return fmt.Sprintf("taskcache: %s: %s (key=%q path=%q): %s", e.Kind, e.Op, e.Key, e.Path, e.message())
	case e.Key != "":
		return fmt.Sprintf("taskcache: %s: %s (key=%q): %s", e.Kind, e.Op, e.Key, e.message())
	case e.Path != "":
		return fmt.Sprintf("taskcache: %s: %s (path=%q): %s", e.Kind, e.Op, e.Path, e.message())
	default:
		return fmt.Sprintf("taskcache: %s: %s: %s", e.Kind, e.Op, e.message())
	}
}

func (e *CacheError) message() string {
	if e.Reason != "" {
		return e.Reason
	}

	if e.Err != nil {
		return e.Err.Error()
	}

	return "unspecified"
}

func (e *CacheError) Unwrap() error { return e.Err }

// Is reports equality by Kind, so callers can do errors.Is(err,
// &CacheError{Kind: KindInvalidKey}).
func (e *CacheError) Is(target error) bool {
	t, ok := target.(*CacheError)
	if !ok {
		return false
	}

	return e.Kind == t.Kind
}

// IO builds a KindIO CacheError.
func IO(op, path string, err error) *CacheError {
	return &CacheError{Kind: KindIO, Op: op, Path: path, Err: err, RecoveryHint: hintStoreRetry}
}

// Corruption builds a KindCorruption CacheError for the given key and reason.
func Corruption(key, reason string) *CacheError {
	return &CacheError{Kind: KindCorruption, Op: "validate", Key: key, Reason: reason, RecoveryHint: hintClearAndRetry}
}

// Serialization builds a KindSerialization CacheError.
func Serialization(op, key string, err error) *CacheError {
	return &CacheError{Kind: KindSerialization, Op: op, Key: key, Err: err, RecoveryHint: hintClearAndRetry}
}

// Compression builds a KindCompression CacheError.
func Compression(op string, err error) *CacheError {
	return &CacheError{Kind: KindCompression, Op: op, Err: err, RecoveryHint: Manual("check zstd level/config")}
}

// InvalidKey builds a KindInvalidKey CacheError.
func InvalidKey(key, reason string) *CacheError {
	return &CacheError{Kind: KindInvalidKey, Op: "validate_key", Key: key, Reason: reason, RecoveryHint: hintRejectInput}
}

// CapacityExceeded builds a KindCapacityExceeded CacheError.
func CapacityExceeded(requested, available int64) *CacheError {
	return &CacheError{
		Kind:         KindCapacityExceeded,
		Op:           "get_writer",
		Reason:       fmt.Sprintf("requested %d bytes, %d available", requested, available),
		RecoveryHint: hintIncreaseCapacity,
	}
}

// StoreUnavailable builds a KindStoreUnavailable CacheError.
func StoreUnavailable(reason string) *CacheError {
	return &CacheError{Kind: KindStoreUnavailable, Op: "acquire", Reason: reason, RecoveryHint: hintStoreRetry}
}

// Timeout builds a KindTimeout CacheError for a permit acquisition that
// exceeded its deadline.
func Timeout(op string, durationMS int64) *CacheError {
	return &CacheError{
		Kind:         KindTimeout,
		Op:           op,
		Reason:       fmt.Sprintf("exceeded %dms", durationMS),
		RecoveryHint: Retry(100),
	}
}

// Configuration builds a KindConfiguration CacheError.
func Configuration(message string) *CacheError {
	return &CacheError{Kind: KindConfiguration, Op: "configure", Reason: message}
}
