package interfaces

import (
	"context"

	"github.com/bobmcallan/growthfund/internal/models"
)

// StockCache persists StockRecords keyed by qualified symbol.
type StockCache interface {
	GetStock(ctx context.Context, symbol string) (*models.StockRecord, error)
	SaveStock(ctx context.Context, stock *models.StockRecord) error
	ListSymbols(ctx context.Context) ([]string, error)
}

// ConstituentCache persists universe lists per market and period.
type ConstituentCache interface {
	GetConstituents(ctx context.Context, market, period string) ([]models.Constituent, error)
	SaveConstituents(ctx context.Context, market, period string, constituents []models.Constituent) error
}
