package cli

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/spf13/pflag"

	"github.com/peakplatform/peak-go/internal/api"
	"github.com/peakplatform/peak-go/internal/config"
)

const (
	exitOK       = 0
	exitGeneric  = 1
	exitUsage    = 2
	exitAuth     = 3
	exitNotFound = 4
	exitServer   = 5
	exitNetwork  = 6
)

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}

	var missing *config.MissingEnvError
	if errors.Is(err, config.ErrNotLoggedIn) || errors.As(err, &missing) {
		return exitAuth
	}
	var invalid *config.InvalidParameterError
	if errors.As(err, &invalid) {
		return exitUsage
	}

	// Exhaustion outranks the wrapped final response; the wrapped status
	// is usually a retryable 5xx that classifies as unknown.
	var exhausted *api.RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return exitServer
	}

	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Kind {
		case api.KindUnauthorized, api.KindForbidden:
			return exitAuth
		case api.KindNotFound:
			return exitNotFound
		case api.KindBadRequest, api.KindUnprocessableEntity, api.KindConflict, api.KindPayloadTooLarge:
			return exitUsage
		case api.KindInternalServerError:
			return exitServer
		}
		return exitGeneric
	}

	if isNetworkError(err) {
		return exitNetwork
	}
	if isUsageError(err) {
		return exitUsage
	}
	return exitGeneric
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func isUsageError(err error) bool {
	msg := strings.ToLower(err.Error())
	indicators := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"invalid argument",
		"is required",
	}
	for _, indicator := range indicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
