// Package loader turns catalog keys into decoded, displayed resources.
//
// A Loader looks a key up in the catalog, consults the cache, fetches and
// decodes the resource at most once per key, and reports the result to a
// display.Presenter. All caller-visible failures are returned synchronously
// from Request, Retry and Release.
package loader

import (
	"errors"
	"fmt"

	"assetload/pkg/cache"
	"assetload/pkg/common"
)

var (
	// ErrUnknownKey is returned for keys that are not in the catalog.
	ErrUnknownKey = errors.New("unknown resource key")
	// ErrNotLoaded is returned by Release for keys that are absent or still
	// loading. Callers should treat it as a warning.
	ErrNotLoaded = cache.ErrNotLoaded
)

// JoinPolicy decides what a Request does when the key is already Loading.
type JoinPolicy int

const (
	// JoinDrop returns immediately. The in-flight load displays its own
	// result when it completes.
	JoinDrop JoinPolicy = iota
	// JoinWait blocks until the in-flight load settles, then displays its
	// value or returns its error.
	JoinWait
)

func (p JoinPolicy) String() string {
	if p == JoinWait {
		return "wait"
	}
	return "drop"
}

// ParseJoinPolicy accepts "drop" and "wait". The empty string is JoinDrop.
func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch s {
	case "", "drop":
		return JoinDrop, nil
	case "wait":
		return JoinWait, nil
	}
	return JoinDrop, fmt.Errorf("unknown join policy %q (want drop or wait)", s)
}

// RetryPolicy decides what a Request does when the key is Failed.
type RetryPolicy int

const (
	// RetryOnRequest starts a fresh load.
	RetryOnRequest RetryPolicy = iota
	// RetryExplicit returns a *FailedError until Retry is called.
	RetryExplicit
)

func (p RetryPolicy) String() string {
	if p == RetryExplicit {
		return "explicit"
	}
	return "request"
}

// ParseRetryPolicy accepts "request" and "explicit". The empty string is
// RetryOnRequest.
func ParseRetryPolicy(s string) (RetryPolicy, error) {
	switch s {
	case "", "request":
		return RetryOnRequest, nil
	case "explicit":
		return RetryExplicit, nil
	}
	return RetryOnRequest, fmt.Errorf("unknown retry policy %q (want request or explicit)", s)
}

// FailedError reports a key whose last load failed. It wraps the recorded
// failure, so errors.Is matches the underlying network or decode error.
type FailedError struct {
	Key string
	Err error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("resource %q failed to load: %v", e.Key, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Status describes one catalog key.
// Immutable
type Status struct {
	Key      string
	Kind     common.Kind
	Locator  string
	State    cache.State
	Err      error
	Attempts int
	// Size is the decoded size in bytes for Loaded keys.
	Size uint64
}
