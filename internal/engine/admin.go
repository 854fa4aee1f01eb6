package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"cwkhub/internal/config"
	"cwkhub/internal/domain"
	"cwkhub/internal/events"
	"cwkhub/internal/repo"
)

// ImportConfig validates and stores an organisation config.
func (e Engine) ImportConfig(ctx context.Context, cfg *config.Config, actorID string) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is required", ErrValidation)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertOrgConfig(ctx, tx, cfg); err != nil {
		return err
	}
	if err := e.writer().Append(ctx, tx, events.ConfigImported, "organisation", cfg.Organisation.ID, actorID, events.EventPayload{
		"blocks":   len(cfg.Calendar.Blocks),
		"webhooks": len(cfg.Webhooks),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey mints a key for actorID. The plaintext key is only returned here.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if actorID == "" {
		return domain.APIKey{}, "", fmt.Errorf("%w: actor is required", ErrValidation)
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "cwk_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        newID(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}
