package repository

import (
	"context"

	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
)

type PriceStore interface {
	// GetLatest returns the stored rate for each known symbol; unknown ones are skipped.
	GetLatest(ctx context.Context, symbols []string) ([]models.PriceTick, error)
	// RunPubSub blocks, feeding every published tick to onTick until ctx is done.
	RunPubSub(ctx context.Context, onTick func(models.PriceTick)) error
	Close() error
}
