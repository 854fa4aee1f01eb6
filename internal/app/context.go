package app

import (
	"context"
	"errors"
	"fmt"

	"cwkhub/internal/config"
	"cwkhub/internal/repo"
)

// DefaultOrgID names the organisation seeded into an empty workspace.
const DefaultOrgID = "default"

// ResolveConfig picks the active organisation and returns its stored config,
// seeding the default config when none exists yet. It prefers the override,
// then the only organisation in the DB.
func ResolveConfig(ctx context.Context, orgOverride string, r repo.Repo) (*config.Config, error) {
	orgID := orgOverride
	if orgID == "" {
		ids, err := r.ListOrgIDs(ctx)
		if err != nil {
			return nil, err
		}
		switch len(ids) {
		case 0:
			orgID = DefaultOrgID
		case 1:
			orgID = ids[0]
		default:
			return nil, fmt.Errorf("multiple organisations configured; use --org")
		}
	}
	cfg, err := r.GetOrgConfig(ctx, orgID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed := config.Default(orgID)
	if err := r.UpsertOrgConfig(ctx, nil, seed); err != nil {
		return nil, fmt.Errorf("seed org config: %w", err)
	}
	return seed, nil
}
