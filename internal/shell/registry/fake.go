package registry

import (
	"context"
	"sync"

	"github.com/dataops-sh/snowdeck/internal/core/deploy"
)

// =============================================================================
// In-Memory Fake
// =============================================================================

// Fake is an in-memory Client for tests. It honors the upsert contract
// (create-or-replace, at most one object per name) and can be scripted to
// fail specific operations.
type Fake struct {
	mu sync.Mutex

	// objects holds the live remote state, keyed by application name.
	objects map[string]deploy.Target

	// upsertErrs are consumed one per Upsert call for the given app.
	upsertErrs map[string][]error

	listErr   error
	deleteErr error

	// UpsertCalls records every Upsert in call order, including failed ones.
	UpsertCalls []string
}

// NewFake creates an empty fake registry.
func NewFake() *Fake {
	return &Fake{
		objects:    make(map[string]deploy.Target),
		upsertErrs: make(map[string][]error),
	}
}

// FailUpsert scripts errors for the next Upsert calls for app, consumed in
// order. Once the queue is drained, Upsert succeeds again.
func (f *Fake) FailUpsert(app string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertErrs[app] = append(f.upsertErrs[app], errs...)
}

// FailList scripts a permanent List error.
func (f *Fake) FailList(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// FailDelete scripts a permanent Delete error.
func (f *Fake) FailDelete(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErr = err
}

// List returns the deployed applications. Order is not guaranteed; callers
// sort if they need determinism.
func (f *Fake) List(ctx context.Context) ([]DeployedApp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	apps := make([]DeployedApp, 0, len(f.objects))
	for name, target := range f.objects {
		apps = append(apps, DeployedApp{
			Name:    name,
			Schema:  target.Schema,
			Comment: target.App.Comment,
		})
	}
	return apps, nil
}

// Upsert stores or replaces the object for target.
func (f *Fake) Upsert(ctx context.Context, target deploy.Target) error {
	if err := ctx.Err(); err != nil {
		return NewRemoteError("Upsert", target.App.Name, "context done", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.UpsertCalls = append(f.UpsertCalls, target.App.Name)

	if queue := f.upsertErrs[target.App.Name]; len(queue) > 0 {
		err := queue[0]
		f.upsertErrs[target.App.Name] = queue[1:]
		return err
	}

	f.objects[target.App.Name] = target
	return nil
}

// Delete removes the object, failing with ErrNotFound when absent.
func (f *Fake) Delete(ctx context.Context, app string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.objects[app]; !ok {
		return NewRemoteError("Delete", app, "application is not deployed", ErrNotFound)
	}
	delete(f.objects, app)
	return nil
}

// Deployed reports whether app currently exists in the fake remote state.
func (f *Fake) Deployed(app string) (deploy.Target, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.objects[app]
	return target, ok
}

var _ Client = (*Fake)(nil)
