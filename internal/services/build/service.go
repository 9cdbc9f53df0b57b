// Package build runs the full fund construction pipeline for one market and
// period: universe, per-symbol acquisition, eligibility, scoring, selection,
// sizing and artifacts.
package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/growthfund/internal/adapter"
	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/fund"
	"github.com/bobmcallan/growthfund/internal/interfaces"
	"github.com/bobmcallan/growthfund/internal/models"
	"github.com/bobmcallan/growthfund/internal/report"
	"github.com/bobmcallan/growthfund/internal/router"
)

// SourceResolver picks and logs in to the providers for a market.
type SourceResolver interface {
	Authenticate(ctx context.Context, market string) (*router.Sources, error)
}

// Request selects what to build.
type Request struct {
	Market string
	Period common.Period
	DryRun bool
}

// Result is the outcome of a build.
type Result struct {
	RunID           string
	Market          models.Market
	Period          common.Period
	Fund            *models.Fund
	RankedBase      []*models.StockRecord
	RankedPotential []*models.StockRecord
	IndexPE         float64
	Stats           report.FilterStats
	Violations      []string
	Failures        *models.FailureLog
	FinancialSource string
	PricingSource   string
	Artifacts       []string
}

// Valid reports whether the fund passed validation.
func (r *Result) Valid() bool {
	return len(r.Violations) == 0
}

// Service builds funds.
type Service struct {
	cfg      *common.Config
	sources  SourceResolver
	stocks   interfaces.StockCache
	universe interfaces.ConstituentCache
	writer   *report.Writer
	adapter  *adapter.Adapter
	scorer   *fund.Scorer
	builder  *fund.Builder
	logger   *common.Logger
	now      func() time.Time
}

// NewService creates a build service.
func NewService(
	cfg *common.Config,
	sources SourceResolver,
	stocks interfaces.StockCache,
	universe interfaces.ConstituentCache,
	writer *report.Writer,
	logger *common.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		sources:  sources,
		stocks:   stocks,
		universe: universe,
		writer:   writer,
		adapter:  adapter.New(logger),
		scorer:   fund.NewScorer(cfg.Scoring),
		builder:  fund.NewBuilder(cfg.Fund),
		logger:   logger,
		now:      time.Now,
	}
}

// Build runs the pipeline. Per-symbol failures are recorded and skipped;
// rate-limit exhaustion, authentication and configuration errors and
// context cancellation abort the run.
func (s *Service) Build(ctx context.Context, req Request) (*Result, error) {
	market, ok := models.LookupMarket(req.Market)
	if !ok {
		return nil, fmt.Errorf("%w: unknown market %q, want one of %v", common.ErrConfiguration, req.Market, models.MarketIDs())
	}

	res := &Result{
		RunID:    uuid.NewString(),
		Market:   market,
		Period:   req.Period,
		Failures: &models.FailureLog{},
	}
	log := s.logger.With("run", res.RunID)
	log.Info().Str("market", market.ID).Str("period", req.Period.String()).Bool("dry_run", req.DryRun).Msg("Build started")

	src, err := s.sources.Authenticate(ctx, market.ID)
	if err != nil {
		return nil, err
	}
	res.FinancialSource = src.FinancialName
	res.PricingSource = src.PricingName

	constituents, err := s.Universe(ctx, src.Financial, market, req.Period)
	if err != nil {
		return nil, err
	}

	var loaded []*models.StockRecord
	for i, c := range constituents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stock, err := s.loadStock(ctx, src, market, c)
		if err != nil {
			if common.IsFatal(err) || ctx.Err() != nil {
				return nil, fmt.Errorf("build aborted at %s: %w", c.Symbol, err)
			}
			res.Failures.Add(common.ErrorCategory(err), c.Symbol, c.Name, err.Error())
			log.Warn().Err(err).Str("symbol", c.Symbol).Msg("Symbol skipped")
			continue
		}
		res.Failures.Success()
		loaded = append(loaded, stock)
		if (i+1)%25 == 0 {
			log.Info().Int("done", i+1).Int("total", len(constituents)).Msg("Build progress")
		}
	}
	log.Info().Str("summary", res.Failures.Summary()).Msg("Universe processed")

	counts := fund.CheckEligibility(loaded, s.cfg.Eligibility)
	res.Stats = report.FilterStats{
		Total:             counts.Total,
		BaseEligible:      counts.Base,
		PotentialEligible: counts.Potential,
		Rejected:          counts.Rejected,
	}

	var basePool, potentialPool []*models.StockRecord
	for _, st := range loaded {
		if st.BaseEligible {
			basePool = append(basePool, st)
		}
		if st.PotentialEligible {
			potentialPool = append(potentialPool, st)
		}
	}

	sel, err := s.scorer.Select(basePool, potentialPool, s.cfg.Fund, func(pool []*models.StockRecord) (float64, error) {
		return IndexPE(ctx, src.Financial, market, pool, log)
	})
	if err != nil {
		return nil, err
	}
	res.RankedBase = sel.RankedBase
	res.RankedPotential = sel.RankedPotential
	res.IndexPE = sel.IndexPE
	s.persist(ctx, sel.RankedBase, log)
	s.persist(ctx, sel.RankedPotential, log)

	name := common.FundName(market.ID, req.Period)
	res.Fund, res.Violations = s.builder.Compose(name, market.ID, req.Period, sel.Base, sel.Potential)
	for _, v := range res.Violations {
		log.Warn().Str("fund", name).Msg(v)
	}

	if !req.DryRun {
		res.Artifacts, err = s.writeArtifacts(res)
		if err != nil {
			return res, err
		}
	}

	log.Info().
		Str("fund", name).
		Int("base", len(sel.Base)).
		Int("potential", len(sel.Potential)).
		Str("minimum_cost", report.FormatMoney(res.Fund.MinimumCost, market.Currency)).
		Int("violations", len(res.Violations)).
		Msg("Build complete")
	return res, nil
}

// Universe returns the market's constituents for the period, from the cache
// when allowed, otherwise from the provider (and then cached).
func (s *Service) Universe(ctx context.Context, p interfaces.Provider, market models.Market, period common.Period) ([]models.Constituent, error) {
	if s.cfg.Storage.UseCache {
		cached, err := s.universe.GetConstituents(ctx, market.ID, period.String())
		if err == nil && len(cached) > 0 {
			s.logger.Info().Str("market", market.ID).Int("count", len(cached)).Msg("Constituents loaded from cache")
			return cached, nil
		}
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			s.logger.Warn().Err(err).Str("market", market.ID).Msg("Constituent cache unreadable")
		}
	}

	list, err := p.ListUniverse(ctx, market.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s constituents: %w", market.ID, err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s returned no constituents for %s: %w", p.Name(), market.ID, common.ErrDataQuality)
	}
	if err := s.universe.SaveConstituents(ctx, market.ID, period.String(), list); err != nil {
		s.logger.Warn().Err(err).Str("market", market.ID).Msg("Failed to cache constituents")
	}
	s.logger.Info().Str("market", market.ID).Str("provider", p.Name()).Int("count", len(list)).Msg("Constituents fetched")
	return list, nil
}

// loadStock returns the cached record when allowed, otherwise fetches,
// validates and caches a fresh one.
func (s *Service) loadStock(ctx context.Context, src *router.Sources, market models.Market, c models.Constituent) (*models.StockRecord, error) {
	symbol := adapter.QualifySymbol(c.Symbol, market.ID)

	if s.cfg.Storage.UseCache {
		cached, err := s.stocks.GetStock(ctx, symbol)
		if err == nil && cached.Financials != nil && cached.MarketData != nil {
			s.logger.Debug().Str("symbol", symbol).Msg("Using cached record")
			return cached, nil
		}
	}

	fin, md, err := s.fetch(ctx, src, market, symbol)
	if err != nil {
		return nil, err
	}

	name := c.Name
	if name == "" {
		name = md.Name
	}
	stock := &models.StockRecord{
		Symbol:     symbol,
		Name:       name,
		Market:     market.ID,
		Financials: fin,
		MarketData: md,
	}
	stock.CheckBaseEligibility(s.cfg.Eligibility)
	stock.CheckPotentialEligibility(s.cfg.Eligibility)

	if err := s.stocks.SaveStock(ctx, stock); err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache record")
	}
	return stock, nil
}

func (s *Service) fetch(ctx context.Context, src *router.Sources, market models.Market, symbol string) (*models.FinancialRecord, *models.MarketSnapshot, error) {
	years := s.cfg.Eligibility.HistoryYears
	finSymbol := adapter.NormalizeSymbol(symbol, market.ID, src.FinancialName)

	var (
		fin *models.FinancialRecord
		md  *models.MarketSnapshot
		err error
	)
	if src.Pricing == src.Financial {
		fin, md, err = src.Financial.FetchBoth(ctx, finSymbol, years)
		if err != nil {
			return nil, nil, err
		}
		if v := s.adapter.ValidateFinancials(fin, src.FinancialName); !v.Valid {
			return nil, nil, v.Err()
		}
	} else {
		fin, err = src.Financial.FetchFinancials(ctx, finSymbol, years)
		if err != nil {
			return nil, nil, err
		}
		if v := s.adapter.ValidateFinancials(fin, src.FinancialName); !v.Valid {
			return nil, nil, v.Err()
		}
		pricingSymbol := adapter.NormalizeSymbol(symbol, market.ID, src.PricingName)
		md, err = src.Pricing.FetchMarketData(ctx, pricingSymbol, fin.FiscalDates)
		if err != nil {
			return nil, nil, err
		}
	}

	fillSnapshot(md, fin)
	if v := s.adapter.ValidateMarketData(md, src.PricingName, true); !v.Valid {
		return nil, nil, v.Err()
	}
	return fin, md, nil
}

// fillSnapshot backfills pricing fields some pricing sources omit from the
// statement provider's snapshot.
func fillSnapshot(md *models.MarketSnapshot, fin *models.FinancialRecord) {
	if md == nil || fin == nil {
		return
	}
	if md.MarketCap <= 0 && fin.MarketCap > 0 {
		md.MarketCap = fin.MarketCap
	}
	if md.PERatio <= 0 && fin.PERatio > 0 {
		md.PERatio = fin.PERatio
	}
	if md.CurrentPrice <= 0 && fin.CurrentPrice > 0 {
		md.CurrentPrice = fin.CurrentPrice
	}
}

// IndexPE resolves the benchmark P/E: the provider's figure, then the
// market's estimate, then the pool mean. Zero means no benchmark, which
// zeroes every valuation component.
func IndexPE(ctx context.Context, p interfaces.Provider, market models.Market, pool []*models.StockRecord, logger *common.Logger) (float64, error) {
	pe, ok, err := p.FetchBenchmarkPE(ctx, market.ID)
	switch {
	case err != nil && (common.IsFatal(err) || ctx.Err() != nil):
		return 0, err
	case err != nil:
		logger.Warn().Err(err).Str("market", market.ID).Msg("Benchmark P/E unavailable")
	case ok && pe > 0:
		logger.Info().Float64("pe", pe).Str("source", p.Name()).Msg("Benchmark P/E")
		return pe, nil
	}

	if market.EstimatedPE > 0 {
		logger.Info().Float64("pe", market.EstimatedPE).Str("source", "estimate").Msg("Benchmark P/E")
		return market.EstimatedPE, nil
	}
	if mean, ok := fund.PoolPE(pool); ok {
		logger.Info().Float64("pe", mean).Str("source", "pool").Msg("Benchmark P/E")
		return mean, nil
	}
	logger.Warn().Str("market", market.ID).Msg("No benchmark P/E, valuation scores are zero")
	return 0, nil
}

func (s *Service) persist(ctx context.Context, stocks []*models.StockRecord, log *common.Logger) {
	for _, st := range stocks {
		if err := s.stocks.SaveStock(ctx, st); err != nil {
			log.Warn().Err(err).Str("symbol", st.Symbol).Msg("Failed to persist scores")
		}
	}
}

func (s *Service) writeArtifacts(res *Result) ([]string, error) {
	date := s.now().Format("2006-01-02")
	stats := res.Stats
	doc := report.UpdateDoc{
		FundName: res.Fund.Name,
		Date:     date,
		Stats:    &stats,
		Base: report.RankedFrom(res.RankedBase, func(st *models.StockRecord) *float64 {
			return st.BaseScore
		}),
		Potential: report.RankedFrom(res.RankedPotential, func(st *models.StockRecord) *float64 {
			return st.PotentialScore
		}),
		Composition: report.CompositionFrom(res.Fund),
	}
	return s.writer.Write(res.Market.ID, res.Period, report.Artifacts{
		Fund:   report.RenderFund(res.Fund, res.Market, "build", date),
		Update: report.RenderUpdate(doc),
	})
}
