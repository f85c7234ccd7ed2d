// Package attribution implements the daily pipeline that explains each
// limit-up stock with the market concepts that drove it.
package attribution

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/limitup-cli/internal/catalog"
	"github.com/sells-group/limitup-cli/internal/conceptgraph"
	"github.com/sells-group/limitup-cli/internal/model"
)

// CatchAllConcept collects stocks no surviving bucket could justify.
const CatchAllConcept = "其它"

// Config holds the pipeline thresholds.
type Config struct {
	// EffectThreshold is the bucket size at which a concept shows a
	// "concept effect" and its members stop seeking new homes.
	EffectThreshold int
	// StrongThreshold is the bucket size that still accepts secondary
	// candidates from already-settled stocks.
	StrongThreshold int
	// MinSupport is the smallest bucket size the fallback pass and the
	// failed-limit retarget treat as meaningful.
	MinSupport int
	// TimeWindowSeconds bounds the first/last limit-time gap that counts
	// as correlated.
	TimeWindowSeconds int
	// LookbackDays is how far the failed-limit routine searches for a
	// prior attribution.
	LookbackDays int
	// HolidayExceptions lists YYYYMMDD dates whose unresolvable reasons
	// skip the audit spreadsheet (known vendor data gaps).
	HolidayExceptions []string
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		EffectThreshold:   3,
		StrongThreshold:   5,
		MinSupport:        2,
		TimeWindowSeconds: 30 * 60,
		LookbackDays:      5,
		HolidayExceptions: []string{"20240208", "20240930", "20241008"},
	}
}

// ReasonResolver maps a reason segment to concept names.
type ReasonResolver interface {
	Resolve(ctx context.Context, reason string) ([]string, error)
}

// Store is the persistence surface the engine needs.
type Store interface {
	TradeDates(ctx context.Context, start, end string) ([]string, error)
	PrevTradeDate(ctx context.Context, date string, offset int) (string, error)
	DaySnapshot(ctx context.Context, tradeDate string) (*model.DaySnapshot, error)
	HasStock(ctx context.Context, stockCode string) (bool, error)
	HasConceptStockRelation(ctx context.Context, stockCode, conceptName string) (bool, error)
	DeleteAttributionsRange(ctx context.Context, start, end string) error
	ReplaceDayAttributions(ctx context.Context, tradeDate string, rows []model.AttributionRow) error
	UpsertAttributions(ctx context.Context, rows []model.AttributionRow) error
	DayAttributions(ctx context.Context, tradeDate string) ([]model.AttributionRow, error)
	// RecentLimitUpAttribution returns, per stock, its latest attribution
	// between start and end on a day the stock closed limit-up.
	RecentLimitUpAttribution(ctx context.Context, stockCodes []string, start, end string) (map[string]model.AttributionRow, error)
}

// AuditSink records stocks the pipeline failed to attribute.
type AuditSink interface {
	Append(tradeDate, stockCode, stockName, reason string) error
}

// Params collects the engine's collaborators.
type Params struct {
	Store    Store
	Graph    *conceptgraph.Graph
	Resolver ReasonResolver
	Catalog  *catalog.Catalog
	Audit    AuditSink
	Config   Config
}

// Engine runs the daily attribution pipeline.
type Engine struct {
	store    Store
	graph    *conceptgraph.Graph
	resolver ReasonResolver
	cat      *catalog.Catalog
	audit    AuditSink
	cfg      Config
}

// New creates an Engine. Zero thresholds fall back to defaults.
func New(p Params) *Engine {
	def := DefaultConfig()
	if p.Config.EffectThreshold <= 0 {
		p.Config.EffectThreshold = def.EffectThreshold
	}
	if p.Config.StrongThreshold <= 0 {
		p.Config.StrongThreshold = def.StrongThreshold
	}
	if p.Config.MinSupport <= 0 {
		p.Config.MinSupport = def.MinSupport
	}
	if p.Config.TimeWindowSeconds <= 0 {
		p.Config.TimeWindowSeconds = def.TimeWindowSeconds
	}
	if p.Config.LookbackDays <= 0 {
		p.Config.LookbackDays = def.LookbackDays
	}
	return &Engine{
		store:    p.Store,
		graph:    p.Graph,
		resolver: p.Resolver,
		cat:      p.Catalog,
		audit:    p.Audit,
		cfg:      p.Config,
	}
}

// RunRange reprocesses every trading day in [start, end]: existing rows for
// the range are deleted first, days run in ascending order, and the
// failed-limit routine runs last because it reads committed daily output.
func (e *Engine) RunRange(ctx context.Context, start, end string) error {
	dates, err := e.store.TradeDates(ctx, start, end)
	if err != nil {
		return eris.Wrap(err, "attribution: load trade dates")
	}
	if len(dates) == 0 {
		zap.L().Warn("attribution: no trading days in range",
			zap.String("start", start),
			zap.String("end", end),
		)
		return nil
	}

	if err := e.store.DeleteAttributionsRange(ctx, start, end); err != nil {
		return eris.Wrap(err, "attribution: clear range")
	}

	for _, date := range dates {
		if err := e.AttributeDay(ctx, date); err != nil {
			return eris.Wrapf(err, "attribution: day %s", date)
		}
	}
	for _, date := range dates {
		if err := e.RetargetFailedLimits(ctx, date); err != nil {
			return eris.Wrapf(err, "attribution: failed-limit pass %s", date)
		}
	}
	return nil
}

// AttributeDay attributes one trading day's limit-up stocks and persists the
// result atomically.
func (e *Engine) AttributeDay(ctx context.Context, tradeDate string) error {
	snap, err := e.store.DaySnapshot(ctx, tradeDate)
	if err != nil {
		return eris.Wrap(err, "attribution: load day snapshot")
	}
	zap.L().Info("attribution: day started",
		zap.String("trade_date", tradeDate),
		zap.Int("limit_up", len(snap.LimitUp)),
	)

	buckets := NewBucketSet()
	strong := make(map[string]bool)

	if err := e.runPasses(ctx, snap, buckets, strong); err != nil {
		return err
	}
	if err := e.timeCorrelate(ctx, buckets, snap); err != nil {
		return err
	}
	e.cleanup(buckets, e.cfg.MinSupport)
	e.cleanup(buckets, e.cfg.EffectThreshold)

	if err := e.auditUnattributed(ctx, tradeDate, snap, buckets.Covered(1)); err != nil {
		return err
	}
	if err := e.secondAssignment(ctx, snap, buckets); err != nil {
		return err
	}

	rows := e.buildRows(tradeDate, snap, buckets)
	if err := e.store.ReplaceDayAttributions(ctx, tradeDate, rows); err != nil {
		return eris.Wrap(err, "attribution: persist day")
	}
	zap.L().Info("attribution: day complete",
		zap.String("trade_date", tradeDate),
		zap.Int("rows", len(rows)),
		zap.Int("buckets", len(buckets.Concepts())),
	)
	return nil
}

// runPasses consumes each stock's i-th reason segment on pass i until no
// stock has a segment left.
func (e *Engine) runPasses(ctx context.Context, snap *model.DaySnapshot, buckets *BucketSet, strong map[string]bool) error {
	for pass := 0; ; pass++ {
		hasSegment := false
		for _, code := range snap.LimitUpCodes {
			ev := snap.LimitUp[code]
			if ev.Reason == "" {
				continue
			}
			segments := model.SplitReason(ev.Reason)
			if pass >= len(segments) {
				continue
			}
			segment := strings.TrimSpace(segments[pass])
			if segment == "" {
				continue
			}
			hasSegment = true

			concepts, err := e.resolver.Resolve(ctx, segment)
			if err != nil {
				return eris.Wrapf(err, "attribution: resolve %q", segment)
			}
			if len(concepts) == 0 {
				continue
			}
			zap.L().Debug("attribution: segment resolved",
				zap.String("stock", code),
				zap.Int("pass", pass),
				zap.String("segment", segment),
				zap.Strings("concepts", concepts),
			)
			e.placeStock(buckets, strong, code, concepts, pass)
		}
		if !hasSegment {
			return nil
		}

		if pass > 0 {
			e.rollUp(buckets, snap)
		}
		for s := range buckets.Covered(e.cfg.EffectThreshold) {
			strong[s] = true
		}
	}
}

// placeStock adds the stock to each candidate concept's bucket. A stock that
// already found a strong home on an earlier pass only joins strong buckets;
// a strong ancestor bucket absorbs the stock instead of the candidate.
func (e *Engine) placeStock(buckets *BucketSet, strong map[string]bool, code string, concepts []string, pass int) {
	settled := pass > 0 && strong[code]
	for _, concept := range concepts {
		if anc, ok := e.strongAncestor(buckets, concept); ok {
			zap.L().Info("attribution: ancestor bucket absorbs candidate",
				zap.String("stock", code),
				zap.String("candidate", concept),
				zap.String("ancestor", anc),
			)
			buckets.Add(anc, code)
			continue
		}
		if !settled || buckets.Size(concept) >= e.cfg.StrongThreshold {
			buckets.Add(concept, code)
		}
	}
}

func (e *Engine) strongAncestor(buckets *BucketSet, concept string) (string, bool) {
	for _, anc := range e.graph.AncestorChain(concept) {
		if buckets.Size(anc) >= e.cfg.StrongThreshold {
			return anc, true
		}
	}
	return "", false
}

// auditUnattributed logs and records the stocks left outside every bucket.
func (e *Engine) auditUnattributed(ctx context.Context, tradeDate string, snap *model.DaySnapshot, covered map[string]bool) error {
	for _, code := range snap.LimitUpCodes {
		if covered[code] {
			continue
		}
		ev := snap.LimitUp[code]
		zap.L().Warn("attribution: no bucket for stock",
			zap.String("trade_date", tradeDate),
			zap.String("stock", code),
			zap.String("name", ev.StockName),
			zap.String("reason", ev.Reason),
		)

		if ev.Reason == "" {
			// ST names routinely lack a reason; only listed names are a
			// data problem worth recording.
			listed, err := e.store.HasStock(ctx, code)
			if err != nil {
				return eris.Wrap(err, "attribution: check stock listing")
			}
			if !listed {
				continue
			}
			zap.L().Error("attribution: listed stock missing reason",
				zap.String("trade_date", tradeDate),
				zap.String("stock", code),
			)
		} else if e.isHolidayException(tradeDate) {
			continue
		}
		if e.audit != nil {
			if err := e.audit.Append(tradeDate, code, ev.StockName, ev.Reason); err != nil {
				return eris.Wrap(err, "attribution: append audit row")
			}
		}
	}
	return nil
}

func (e *Engine) isHolidayException(tradeDate string) bool {
	for _, d := range e.cfg.HolidayExceptions {
		if d == tradeDate {
			return true
		}
	}
	return false
}

// buildRows flattens surviving buckets to rows, largest bucket first.
func (e *Engine) buildRows(tradeDate string, snap *model.DaySnapshot, buckets *BucketSet) []model.AttributionRow {
	var rows []model.AttributionRow
	for _, concept := range buckets.ConceptsBySizeDesc() {
		for _, code := range buckets.Stocks(concept) {
			rows = append(rows, model.AttributionRow{
				StockCode:   code,
				TradeDate:   tradeDate,
				StockName:   snap.Names[code],
				ConceptCode: e.cat.CodeFor(concept),
				ConceptName: concept,
			})
		}
	}
	return rows
}

// RetargetFailedLimits gives each stock that touched but lost the limit a
// concept from its recent history, broadened to an ancestor that shows a
// concept effect today.
func (e *Engine) RetargetFailedLimits(ctx context.Context, tradeDate string) error {
	snap, err := e.store.DaySnapshot(ctx, tradeDate)
	if err != nil {
		return eris.Wrap(err, "attribution: load day snapshot")
	}
	if len(snap.Failed) == 0 {
		return nil
	}

	failedCodes := make([]string, 0, len(snap.Failed))
	for code := range snap.Failed {
		failedCodes = append(failedCodes, code)
	}
	sort.Strings(failedCodes)

	lookbackStart, err := e.store.PrevTradeDate(ctx, tradeDate, e.cfg.LookbackDays)
	if err != nil {
		return eris.Wrap(err, "attribution: find lookback date")
	}
	latest, err := e.store.RecentLimitUpAttribution(ctx, failedCodes, lookbackStart, tradeDate)
	if err != nil {
		return eris.Wrap(err, "attribution: load recent attributions")
	}
	if len(latest) == 0 {
		return nil
	}

	todayCounts, err := e.todayConceptCounts(ctx, tradeDate, snap)
	if err != nil {
		return err
	}

	var rows []model.AttributionRow
	for _, code := range failedCodes {
		prior, ok := latest[code]
		if !ok {
			continue
		}
		concept := prior.ConceptName
		for _, anc := range e.graph.AncestorChain(concept) {
			if todayCounts[anc] >= e.cfg.MinSupport {
				zap.L().Info("attribution: failed-limit stock broadened to ancestor",
					zap.String("trade_date", tradeDate),
					zap.String("stock", code),
					zap.String("prior", concept),
					zap.String("ancestor", anc),
				)
				concept = anc
				break
			}
		}
		rows = append(rows, model.AttributionRow{
			StockCode:   code,
			TradeDate:   tradeDate,
			StockName:   snap.Names[code],
			ConceptCode: prior.ConceptCode,
			ConceptName: concept,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := e.store.UpsertAttributions(ctx, rows); err != nil {
		return eris.Wrap(err, "attribution: persist failed-limit rows")
	}
	return nil
}

// todayConceptCounts counts today's attributed limit-up stocks per concept.
func (e *Engine) todayConceptCounts(ctx context.Context, tradeDate string, snap *model.DaySnapshot) (map[string]int, error) {
	rows, err := e.store.DayAttributions(ctx, tradeDate)
	if err != nil {
		return nil, eris.Wrap(err, "attribution: load day attributions")
	}
	counts := make(map[string]int)
	for _, row := range rows {
		if _, ok := snap.LimitUp[row.StockCode]; ok {
			counts[row.ConceptName]++
		}
	}
	return counts, nil
}
