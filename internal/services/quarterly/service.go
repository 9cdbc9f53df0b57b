// Package quarterly refreshes the previous period's candidates with
// trailing-twelve-month figures and recomposes the fund without a full
// universe build.
package quarterly

import (
	"context"
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
	"github.com/bobmcallan/growthfund/internal/services/build"
)

// Request selects the period to update.
type Request struct {
	Market string
	Period common.Period
	DryRun bool
}

// Result is the outcome of an update.
type Result struct {
	RunID           string
	Market          models.Market
	Period          common.Period
	Previous        *report.PriorUpdate
	PreviousDoc     *report.UpdateDoc
	Fund            *models.Fund
	RankedBase      []*models.StockRecord
	RankedPotential []*models.StockRecord
	IndexPE         float64
	Stats           report.FilterStats
	Violations      []string
	Diff            report.Diff
	Failures        *models.FailureLog
	Artifacts       []string
}

// Valid reports whether the fund passed validation.
func (r *Result) Valid() bool {
	return len(r.Violations) == 0
}

// Service runs quarterly updates.
type Service struct {
	cfg     *common.Config
	sources build.SourceResolver
	stocks  interfaces.StockCache
	writer  *report.Writer
	scorer  *fund.Scorer
	builder *fund.Builder
	logger  *common.Logger
	now     func() time.Time
}

// NewService creates an update service.
func NewService(
	cfg *common.Config,
	sources build.SourceResolver,
	stocks interfaces.StockCache,
	writer *report.Writer,
	logger *common.Logger,
) *Service {
	return &Service{
		cfg:     cfg,
		sources: sources,
		stocks:  stocks,
		writer:  writer,
		scorer:  fund.NewScorer(cfg.Scoring),
		builder: fund.NewBuilder(cfg.Fund),
		logger:  logger,
		now:     time.Now,
	}
}

// Update recomposes the fund for req.Period from the latest earlier update
// document. Per-symbol refresh failures keep the cached record.
func (s *Service) Update(ctx context.Context, req Request) (*Result, error) {
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

	prior, err := s.writer.FindPrevious(market.ID, req.Period)
	if err != nil {
		return nil, fmt.Errorf("no earlier fund to update, run a full build first: %w", err)
	}
	doc, err := report.LoadUpdate(prior.Path, s.cfg.Update.BaseCandidates, s.cfg.Update.PotentialCandidates)
	if err != nil {
		return nil, err
	}
	res.Previous = prior
	res.PreviousDoc = doc
	log.Info().Str("market", market.ID).Str("from", prior.Period.String()).Str("to", req.Period.String()).
		Int("base_candidates", len(doc.Base)).Int("potential_candidates", len(doc.Potential)).
		Msg("Quarterly update started")

	prevBase := make(map[string]bool, len(doc.Base))
	for _, e := range doc.Base {
		prevBase[e.Symbol] = true
	}

	cached := s.loadCandidates(ctx, doc, res.Failures, log)
	if len(cached) < s.cfg.Update.MinStocks {
		return nil, fmt.Errorf("%w: only %d of the previous candidates are cached, need %d; run a full build",
			common.ErrDataQuality, len(cached), s.cfg.Update.MinStocks)
	}

	src, err := s.sources.Authenticate(ctx, market.ID)
	if err != nil {
		return nil, err
	}
	qp, ok := src.Financial.(interfaces.QuarterlyProvider)
	if !ok {
		return nil, fmt.Errorf("%s has no quarterly statements: %w", src.FinancialName, common.ErrNotSupported)
	}

	today := s.now().Format("2006-01-02")
	updated := make([]*models.StockRecord, 0, len(cached))
	for _, stock := range cached {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fresh, err := s.refresh(ctx, src, qp, market, stock, today, log)
		if err != nil {
			if common.IsFatal(err) || ctx.Err() != nil {
				return nil, fmt.Errorf("update aborted at %s: %w", stock.Symbol, err)
			}
			res.Failures.Add(common.ErrorCategory(err), stock.Symbol, stock.Name, err.Error())
			log.Warn().Err(err).Str("symbol", stock.Symbol).Msg("Keeping cached record")
			updated = append(updated, stock)
			continue
		}
		res.Failures.Success()
		updated = append(updated, fresh)
	}
	log.Info().Str("summary", res.Failures.Summary()).Msg("Candidates refreshed")

	counts := fund.CheckEligibility(updated, s.cfg.Eligibility)
	res.Stats = report.FilterStats{
		Total:             counts.Total,
		BaseEligible:      counts.Base,
		PotentialEligible: counts.Potential,
		Rejected:          counts.Rejected,
	}

	var basePool, potentialPool []*models.StockRecord
	for _, st := range updated {
		switch {
		case st.BaseEligible && prevBase[st.Symbol]:
			basePool = append(basePool, st)
		case st.PotentialEligible:
			potentialPool = append(potentialPool, st)
		}
	}

	sel, err := s.scorer.Select(basePool, potentialPool, s.cfg.Fund, func(pool []*models.StockRecord) (float64, error) {
		return build.IndexPE(ctx, src.Financial, market, pool, log)
	})
	if err != nil {
		return nil, err
	}
	res.RankedBase = sel.RankedBase
	res.RankedPotential = sel.RankedPotential
	res.IndexPE = sel.IndexPE

	name := common.FundName(market.ID, req.Period)
	res.Fund, res.Violations = s.builder.Compose(name, market.ID, req.Period, sel.Base, sel.Potential)
	for _, v := range res.Violations {
		log.Warn().Str("fund", name).Msg(v)
	}

	res.Diff = Compare(doc, res.Fund)
	log.Info().Int("added", len(res.Diff.Added)).Int("removed", len(res.Diff.Removed)).
		Int("retained", len(res.Diff.Retained)).Msg("Composition compared")

	if !req.DryRun {
		if err := s.publish(ctx, res, today, log); err != nil {
			return res, err
		}
	}

	log.Info().Str("fund", name).
		Str("minimum_cost", report.FormatMoney(res.Fund.MinimumCost, market.Currency)).
		Int("violations", len(res.Violations)).
		Msg("Quarterly update complete")
	return res, nil
}

// loadCandidates reads the cached records of the previous base and
// potential candidates, each symbol once, base first.
func (s *Service) loadCandidates(ctx context.Context, doc *report.UpdateDoc, failures *models.FailureLog, log *common.Logger) []*models.StockRecord {
	seen := make(map[string]bool)
	var out []*models.StockRecord
	for _, e := range append(append([]report.RankedEntry{}, doc.Base...), doc.Potential...) {
		if seen[e.Symbol] {
			continue
		}
		seen[e.Symbol] = true
		stock, err := s.stocks.GetStock(ctx, e.Symbol)
		if err != nil {
			failures.Add(common.ErrorCategory(err), e.Symbol, e.Name, "not in cache")
			log.Debug().Err(err).Str("symbol", e.Symbol).Msg("Candidate not cached")
			continue
		}
		out = append(out, stock)
	}
	log.Info().Int("cached", len(out)).Int("candidates", len(seen)).Msg("Candidates loaded from cache")
	return out
}

// refresh merges fresh LTM figures and pricing into a copy of stock. A
// pricing failure falls back to the cached snapshot.
func (s *Service) refresh(ctx context.Context, src *router.Sources, qp interfaces.QuarterlyProvider, market models.Market, stock *models.StockRecord, today string, log *common.Logger) (*models.StockRecord, error) {
	q, err := qp.FetchQuarterlyFinancials(ctx, adapter.NormalizeSymbol(stock.Symbol, market.ID, src.FinancialName))
	if err != nil {
		return nil, err
	}
	ltm, err := ComputeLTM(q)
	if err != nil {
		return nil, err
	}

	var dates []string
	if stock.Financials != nil {
		dates = stock.Financials.FiscalDates
	}
	fresh, err := src.Pricing.FetchMarketData(ctx, adapter.NormalizeSymbol(stock.Symbol, market.ID, src.PricingName), dates)
	if err != nil {
		if common.IsFatal(err) || ctx.Err() != nil {
			return nil, err
		}
		log.Warn().Err(err).Str("symbol", stock.Symbol).Msg("Fresh pricing unavailable, using cached pricing")
		fresh = nil
	}

	out := MergeLTM(stock, ltm, q, fresh, today)
	log.Debug().Str("symbol", stock.Symbol).Int("ltm_year", ltm.Year).
		Float64("revenue", ltm.Revenue).Float64("net_income", ltm.NetIncome).Msg("LTM merged")
	return out, nil
}

func (s *Service) publish(ctx context.Context, res *Result, date string, log *common.Logger) error {
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

	paths, err := s.writer.Write(res.Market.ID, res.Period, report.Artifacts{
		Fund:       report.RenderFund(res.Fund, res.Market, "quarterly update", date),
		Update:     report.RenderUpdate(doc),
		Comparison: report.RenderComparison(res.Diff, res.Fund.Name, date),
	})
	res.Artifacts = paths
	if err != nil {
		return err
	}

	for _, p := range res.Fund.Positions {
		if err := s.stocks.SaveStock(ctx, p.Stock); err != nil {
			log.Warn().Err(err).Str("symbol", p.Stock.Symbol).Msg("Failed to persist refreshed record")
		}
	}

	entry := report.RenderChangelogEntry(res.Diff, res.Fund.Name, res.Fund.MinimumCost, res.Market.Currency, date)
	path, err := s.writer.AppendChangelog(res.Market.ID, entry)
	if err != nil {
		return err
	}
	res.Artifacts = append(res.Artifacts, path)
	return nil
}
