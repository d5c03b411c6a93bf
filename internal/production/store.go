package production

import "context"

// MutateFunc edits a working copy of a clip. Returning an error aborts the
// mutation and leaves the stored clip untouched.
type MutateFunc func(c *Clip) error

// Store defines the interface for holding in-flight productions.
// It acts as a port in the hexagonal architecture pattern.
type Store interface {
	// Register adds a production. If one already exists for the campaign ID it
	// is overwritten when replace is true, otherwise ErrProductionExists is returned.
	Register(ctx context.Context, p *Production, replace bool) error

	// Get returns a snapshot of the production.
	// Returns ErrProductionNotFound if the production does not exist.
	Get(ctx context.Context, campaignID string) (*Production, error)

	// List returns snapshots of all productions.
	List(ctx context.Context) ([]*Production, error)

	// Mutate atomically applies fn to one clip and validates the resulting
	// transition. It returns a snapshot of the production after the change.
	Mutate(ctx context.Context, campaignID, clipID string, fn MutateFunc) (*Production, error)

	// Remove deletes a production.
	// Returns ErrProductionNotFound if the production does not exist.
	Remove(ctx context.Context, campaignID string) error
}
