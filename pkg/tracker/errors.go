package tracker

import "errors"

var (
	// ErrDuplicateTarget rejects adding a target that is already tracked.
	ErrDuplicateTarget = errors.New("target is already tracked")
	// ErrTargetNotFound rejects removing a target that is not tracked.
	ErrTargetNotFound = errors.New("target is not tracked")
	// ErrUnknownPlatform rejects a target whose platform has no adapter.
	ErrUnknownPlatform = errors.New("no adapter registered for platform")
	// ErrTransportUnavailable is returned by adapters while the underlying
	// connection is not established. The session treats the cycle as skipped.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrAdapterBusy is returned by serialized transports when a send is
	// attempted while a request is outstanding.
	ErrAdapterBusy = errors.New("probe request already outstanding")

	errSessionStarted = errors.New("session already started")
	errProbeInFlight  = errors.New("previous probe not yet resolved")
	errInvalidConfig  = errors.New("invalid tracker configuration")
	errTrackerStopped = errors.New("tracker is stopped")
)
