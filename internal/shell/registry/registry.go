package registry

import (
	"context"

	"github.com/dataops-sh/snowdeck/internal/core/deploy"
)

// =============================================================================
// Client Interface
// =============================================================================

// DeployedApp describes one application object currently live on the remote
// platform.
type DeployedApp struct {
	Name    string
	Schema  string
	Comment string
}

// Client is the capability interface for the remote application registry.
// Implementations must make Upsert idempotent: calling it twice with the same
// target and no intervening change is a no-op success, and there is never
// more than one live remote object per target identity.
type Client interface {
	// List returns the currently deployed applications. No side effects.
	List(ctx context.Context) ([]DeployedApp, error)

	// Upsert creates or replaces the application object for target.
	// Transient failures are retryable by the caller; Conflict,
	// PermissionDenied and NotFound are terminal.
	Upsert(ctx context.Context, target deploy.Target) error

	// Delete removes the deployed application. Deleting an app that is not
	// deployed fails with ErrNotFound.
	Delete(ctx context.Context, app string) error
}
