package vectordb

import "errors"

// Sentinel errors for collection and provider operations. Callers match
// with errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when creating a collection whose
	// name is already taken.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrInvalidInput indicates malformed caller input: a missing document
	// id or text, an empty query, a negative result limit.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownProvider is returned by Registry.SetCurrent for a provider
	// type that is not in the catalog.
	ErrUnknownProvider = errors.New("unknown embedding provider")

	// ErrMissingCredential is returned when a provider requires an API key
	// and none was supplied.
	ErrMissingCredential = errors.New("embedding provider requires a credential")

	// ErrBackendUnavailable indicates the underlying store is unreachable.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
