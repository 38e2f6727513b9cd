package config

import "errors"

var (
	// ErrNoConfig is returned by the loader when no configuration file could
	// be opened and the monitor runs standalone.
	ErrNoConfig = errors.New("no configuration file found")

	// ErrInvalidNumber is returned when a value holds no parsable digits.
	ErrInvalidNumber = errors.New("invalid number")

	// ErrModuleNotFound is returned when a module::symbol reference names a
	// module that is not loaded.
	ErrModuleNotFound = errors.New("module not found")

	// ErrSymbolNotFound is returned when neither the symbol nor a numeric
	// offset resolves inside a module.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrDuplicateAddress is returned when an address already occupies
	// another slot of the same kind.
	ErrDuplicateAddress = errors.New("address already in use")

	// ErrListFull is returned when a list key has reached its capacity.
	ErrListFull = errors.New("list is full")
)
