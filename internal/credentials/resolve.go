package credentials

import (
	"errors"
	"log/slog"
	"net/url"

	"eprints2bags/internal/logging"
)

// Options controls where missing credentials may come from.
type Options struct {
	// UseKeyring enables keyring lookups and saves.
	UseKeyring bool
	// Reset ignores the stored entry and prompts again.
	Reset bool

	Keyring  Keyring
	Prompter Prompter
	Logger   *slog.Logger
}

// Resolver fills in missing credentials for one server.
type Resolver struct {
	opts   Options
	logger *slog.Logger
}

// NewResolver builds a Resolver. Unset Keyring and Prompter use the system
// keyring and the terminal.
func NewResolver(opts Options) *Resolver {
	if opts.Keyring == nil {
		opts.Keyring = SystemKeyring{}
	}
	if opts.Prompter == nil {
		opts.Prompter = NewTerminalPrompter()
	}
	return &Resolver{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "credentials")}
}

// Resolve returns the user and password to use against apiURL. Given values
// are returned unchanged unless Reset is set. Keyring and prompt failures
// are logged, not returned: the run continues with whatever was found.
func (r *Resolver) Resolve(apiURL, user, password string) (string, string) {
	if user != "" && password != "" && !r.opts.Reset {
		return user, password
	}

	account := accountFor(apiURL)
	var storedUser, storedPassword string
	if r.opts.UseKeyring {
		storedUser, storedPassword = r.lookup(account)
	}

	if !r.opts.Reset {
		if user == "" {
			user = storedUser
		}
		if password == "" && (user == storedUser || storedUser == "") {
			password = storedPassword
		}
		if user != "" && password != "" {
			return user, password
		}
	}

	typedUser, typedPassword, err := r.opts.Prompter.Prompt(user)
	switch {
	case errors.Is(err, ErrNoTerminal):
		r.logger.Debug("not prompting for credentials", logging.String("reason", err.Error()))
		return user, password
	case err != nil:
		r.logger.Warn("credential prompt failed", logging.Error(err))
		return user, password
	}
	user, password = typedUser, typedPassword

	if r.opts.UseKeyring && user != "" && (user != storedUser || password != storedPassword) {
		if err := r.opts.Keyring.Set(Service, account, encodeSecret(user, password)); err != nil {
			r.logger.Warn("could not save credentials to keyring", logging.Error(err))
		} else {
			r.logger.Debug("saved credentials to keyring", logging.String("account", account))
		}
	}
	return user, password
}

func (r *Resolver) lookup(account string) (string, string) {
	secret, err := r.opts.Keyring.Get(Service, account)
	switch {
	case errors.Is(err, ErrNotFound):
		return "", ""
	case err != nil:
		r.logger.Warn("keyring unavailable", logging.Error(err))
		return "", ""
	}
	return decodeSecret(secret)
}

// accountFor names the keyring entry for a server by its host so several
// servers can keep separate logins.
func accountFor(apiURL string) string {
	if parsed, err := url.Parse(apiURL); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return apiURL
}
