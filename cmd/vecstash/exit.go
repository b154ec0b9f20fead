package main

import (
	"errors"

	"github.com/abdul-hamid-achik/vecstash/internal/config"
	"github.com/abdul-hamid-achik/vecstash/internal/db"
	"github.com/abdul-hamid-achik/vecstash/internal/embed"
	"github.com/abdul-hamid-achik/vecstash/internal/items"
)

// Process exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitProvider = 3
	exitStore    = 4
	exitConfig   = 5
)

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var providerErr *embed.ProviderError
	var storeErr *db.StoreError

	switch {
	case errors.Is(err, items.ErrInvalidInput), errors.Is(err, errUsage):
		return exitUsage
	case errors.Is(err, config.ErrInvalidConfig):
		return exitConfig
	case errors.As(err, &providerErr):
		return exitProvider
	case errors.As(err, &storeErr):
		return exitStore
	}
	return exitFailure
}
