package model

import "errors"

var (
	// ErrInsufficientData means a computation had too few points. Callers
	// substitute a neutral result.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidTick marks a non-positive price or a malformed payload.
	ErrInvalidTick = errors.New("invalid tick")

	// ErrTransport wraps feed and subscriber I/O failures.
	ErrTransport = errors.New("transport error")

	// ErrSerialization marks a result that could not be encoded.
	ErrSerialization = errors.New("serialization error")

	// ErrProviderUnavailable means a model provider was skipped without a
	// call: its breaker is open or the tick's prediction budget is spent.
	ErrProviderUnavailable = errors.New("model provider unavailable")
)
