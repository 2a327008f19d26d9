package config

import (
	"time"

	"github.com/calendis/calendis-edge/pkg/routing"
)

// Snapshot is one successfully loaded configuration file.
type Snapshot struct {
	Generation int64
	LoadedAt   time.Time
	Config     *Config
	Router     *routing.Router
}

// NewSnapshot builds the router for cfg.
func NewSnapshot(cfg *Config, generation int64) (Snapshot, error) {
	r, err := cfg.Routing.NewRouter()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Generation: generation,
		LoadedAt:   time.Now().UTC(),
		Config:     cfg,
		Router:     r,
	}, nil
}
