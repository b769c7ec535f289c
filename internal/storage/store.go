package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cookidoo-planner/internal/shared"
)

// Store keeps one configuration blob per user. Load returns nil, nil when
// nothing has been stored yet.
type Store interface {
	Load(ctx context.Context, userID string) ([]byte, error)
	Save(ctx context.Context, userID string, blob []byte) error
	Delete(ctx context.Context, userID string) error
}

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store is closed")

func checkUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return shared.Invalid("user", "must not be empty")
	}
	if strings.ContainsAny(userID, `/\`) || userID == "." || userID == ".." {
		return shared.Invalid("user", "invalid user id %q", userID)
	}
	return nil
}

// Persister binds a store to one user and speaks Config instead of bytes.
type Persister struct {
	store  Store
	userID string
	logger *slog.Logger
}

func NewPersister(store Store, userID string, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{store: store, userID: userID, logger: logger.With("user", userID)}
}

// LoadConfig reads the user's configuration. A missing blob yields the defaults.
func (p *Persister) LoadConfig(ctx context.Context) (Config, error) {
	data, err := p.store.Load(ctx, p.userID)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to load config for %s: %w", p.userID, err)
	}
	if data == nil {
		return DefaultConfig(), nil
	}
	return Deserialize(data, p.logger), nil
}

// SaveConfig serializes and stores the configuration.
func (p *Persister) SaveConfig(ctx context.Context, cfg Config) error {
	data, err := Serialize(cfg)
	if err != nil {
		return err
	}
	if err := p.store.Save(ctx, p.userID, data); err != nil {
		return fmt.Errorf("failed to save config for %s: %w", p.userID, err)
	}
	return nil
}

// DeleteConfig removes the stored configuration.
func (p *Persister) DeleteConfig(ctx context.Context) error {
	return p.store.Delete(ctx, p.userID)
}
