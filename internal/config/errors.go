package config

import "errors"

var (
	// ErrNoConfig means no config file was found.
	ErrNoConfig = errors.New("no target configuration found")

	// ErrTargetNotFound means the requested target is not configured.
	ErrTargetNotFound = errors.New("target not found")

	// ErrInvalidTarget means the target failed validation.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrNoAccessToken means no access token could be resolved.
	ErrNoAccessToken = errors.New("no access token: set ACCESS_TOKEN in the environment or a .env file")
)
