// Package tunnel implements the SSH Tunnel Keeper (spec.md §4.C): a
// port-forwarding controller that lets the backup/restore engines reach a
// PostgreSQL server behind a jump host.
//
// A process-wide singleton is exposed as package-level functions for
// fire-and-forget CLI use (spec.md §9 "Global tunnel singleton"); library
// consumers who want an explicit handle should construct a *Keeper with
// New and thread it through their own operation context instead.
package tunnel

import (
	"context"
	"sync"

	"dbbackup/internal/logger"
)

var (
	singletonOnce sync.Once
	singleton     *Keeper
)

func instance() *Keeper {
	singletonOnce.Do(func() {
		singleton = New(logger.NewNullLogger())
	})
	return singleton
}

// Setup opens the process-wide tunnel. See Keeper.Setup.
func Setup(ctx context.Context, profile Profile, log logger.Logger) error {
	k := instance()
	if log != nil {
		k.mu.Lock()
		k.log = log
		k.mu.Unlock()
	}
	return k.Setup(ctx, profile)
}

// Verify probes the process-wide tunnel. See Keeper.Verify.
func Verify(ctx context.Context) error {
	return instance().Verify(ctx)
}

// Close tears down the process-wide tunnel. See Keeper.Close.
func Close() error {
	return instance().Close()
}

// IsActive reports whether the process-wide tunnel is active.
func IsActive() bool {
	return instance().IsActive()
}
