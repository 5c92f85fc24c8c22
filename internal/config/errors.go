package config

import "errors"

// Error kinds returned by Load, Validate and Watch.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
	ErrNoConfigFile  = errors.New("no config file to watch")
)
