package usersession

import (
	"errors"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
)

// DefaultLoginPath is where unauthenticated users are redirected
const DefaultLoginPath = "/login"

// ErrNotAuthenticated is the error of a cycle that found no principal
var ErrNotAuthenticated = errors.New("Usuário não autenticado")

// Options tunes a Loader
type Options struct {
	// IncludeProfile loads the profile row after the principal
	IncludeProfile bool
	// RedirectOnError sends an unauthenticated user to LoginPath instead of
	// committing an errored state
	RedirectOnError bool
	LoginPath       string
}

// DefaultOptions loads the profile and reports errors in the state
func DefaultOptions() Options {
	return Options{
		IncludeProfile: true,
		LoginPath:      DefaultLoginPath,
	}
}

// Config wires a Loader to its collaborators
type Config struct {
	Authenticator Authenticator
	// Profiles is required when Options.IncludeProfile is set
	Profiles ProfileStore
	// Events is optional; without it the loader only refreshes on demand
	Events AuthEventSource
	// Navigator is optional; without it RedirectOnError has no effect
	Navigator Navigator
	Options   Options
	Logger    *logger.Logger
}

func (c *Config) validate() error {
	if c.Authenticator == nil {
		return errors.New("usersession: authenticator is required")
	}
	if c.Options.IncludeProfile && c.Profiles == nil {
		return errors.New("usersession: profile store is required when profiles are included")
	}
	if c.Options.LoginPath == "" {
		c.Options.LoginPath = DefaultLoginPath
	}
	if c.Logger == nil {
		c.Logger = logger.Get()
	}
	return nil
}
