package config

import "errors"

var (
	// ErrUnknownDriver is returned by Validate when Driver names no supported store.
	ErrUnknownDriver = errors.New("msgrelay config: unknown driver")
	// ErrEndpointRequired is returned by Validate when Endpoint is empty.
	ErrEndpointRequired = errors.New("msgrelay config: endpoint is required")
)
