// Package interfaces defines service contracts for Growth Fund
package interfaces

import (
	"context"

	"github.com/bobmcallan/growthfund/internal/models"
)

// Provider is an external source of universe lists, statements and prices.
// Capabilities a provider lacks fail with common.ErrNotSupported.
type Provider interface {
	// Name returns the provider identifier used in configuration
	Name() string

	// Authenticate checks the credential with a cheap call
	Authenticate(ctx context.Context) error

	// ListUniverse returns the current members of a market index
	ListUniverse(ctx context.Context, market string) ([]models.Constituent, error)

	// FetchFinancials returns up to years of annual statements
	FetchFinancials(ctx context.Context, symbol string, years int) (*models.FinancialRecord, error)

	// FetchMarketData returns current pricing plus closes at the fiscal dates
	FetchMarketData(ctx context.Context, symbol string, fiscalDates []string) (*models.MarketSnapshot, error)

	// FetchBenchmarkPE returns the index P/E; ok is false when unavailable
	FetchBenchmarkPE(ctx context.Context, market string) (pe float64, ok bool, err error)

	// FetchBoth fetches statements then pricing at the statement year ends
	FetchBoth(ctx context.Context, symbol string, years int) (*models.FinancialRecord, *models.MarketSnapshot, error)
}

// QuarterlyProvider is implemented by providers that expose quarterly statements.
type QuarterlyProvider interface {
	Provider

	// FetchQuarterlyFinancials returns quarterly series, most recent first
	FetchQuarterlyFinancials(ctx context.Context, symbol string) (*models.QuarterlyFinancials, error)
}
