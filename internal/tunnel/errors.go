package tunnel

import "errors"

// Failure taxonomy for tunnel setup/verification (spec.md §4.C).
var (
	// ErrMissingCredential is returned when a profile carries neither a
	// password nor a private-key path.
	ErrMissingCredential = errors.New("tunnel: missing SSH credential")
	// ErrConnect covers DNS/dial failure against the jump host.
	ErrConnect = errors.New("tunnel: connect failed")
	// ErrAuth covers SSH authentication rejection.
	ErrAuth = errors.New("tunnel: authentication failed")
	// ErrTunnel covers local listener/channel-open failure.
	ErrTunnel = errors.New("tunnel: tunnel error")
	// ErrVerifyTimeout is returned when verify exhausts its retry budget.
	ErrVerifyTimeout = errors.New("tunnel: verify timed out")
)
