package constants

import "errors"

// Configuration errors.
var (
	ErrConfigDirectory   = errors.New("could not determine configuration directory")
	ErrNoURLConfigured   = errors.New("no API URL configured, use 'kclient --url' or set url in the config file")
	ErrNoTokenConfigured = errors.New("no token configured, run 'kclient auth' first")
)

// CLI argument errors.
var (
	ErrInvalidParam      = errors.New("invalid parameter, expected key=value")
	ErrInvalidBatchFile  = errors.New("invalid batch file")
	ErrUnsupportedMethod = errors.New("unsupported method in batch file")
	ErrUnsupportedOutput = errors.New("unsupported output format")
)
