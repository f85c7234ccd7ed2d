package attribution

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/limitup-cli/internal/catalog"
	"github.com/sells-group/limitup-cli/internal/conceptgraph"
	"github.com/sells-group/limitup-cli/internal/model"
)

type fakeStore struct {
	snaps        map[string]*model.DaySnapshot
	listed       map[string]bool
	relations    map[string]map[string]bool
	attributions map[string][]model.AttributionRow
	tradeDates   []string
	calls        []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snaps:        make(map[string]*model.DaySnapshot),
		listed:       make(map[string]bool),
		relations:    make(map[string]map[string]bool),
		attributions: make(map[string][]model.AttributionRow),
	}
}

func (f *fakeStore) TradeDates(_ context.Context, start, end string) ([]string, error) {
	var out []string
	for _, d := range f.tradeDates {
		if d >= start && d <= end {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) PrevTradeDate(_ context.Context, date string, offset int) (string, error) {
	idx := -1
	for i, d := range f.tradeDates {
		if d == date {
			idx = i
			break
		}
	}
	if idx-offset < 0 {
		if len(f.tradeDates) > 0 {
			return f.tradeDates[0], nil
		}
		return date, nil
	}
	return f.tradeDates[idx-offset], nil
}

func (f *fakeStore) DaySnapshot(_ context.Context, tradeDate string) (*model.DaySnapshot, error) {
	if snap, ok := f.snaps[tradeDate]; ok {
		return snap, nil
	}
	return model.NewDaySnapshot(tradeDate, nil), nil
}

func (f *fakeStore) HasStock(_ context.Context, stockCode string) (bool, error) {
	return f.listed[stockCode], nil
}

func (f *fakeStore) HasConceptStockRelation(_ context.Context, stockCode, conceptName string) (bool, error) {
	return f.relations[stockCode][conceptName], nil
}

func (f *fakeStore) DeleteAttributionsRange(_ context.Context, start, end string) error {
	f.calls = append(f.calls, "delete "+start+" "+end)
	for date := range f.attributions {
		if date >= start && date <= end {
			delete(f.attributions, date)
		}
	}
	return nil
}

func (f *fakeStore) ReplaceDayAttributions(_ context.Context, tradeDate string, rows []model.AttributionRow) error {
	f.calls = append(f.calls, "replace "+tradeDate)
	f.attributions[tradeDate] = rows
	return nil
}

func (f *fakeStore) UpsertAttributions(_ context.Context, rows []model.AttributionRow) error {
	for _, row := range rows {
		f.calls = append(f.calls, "upsert "+row.TradeDate)
		exists := false
		for _, have := range f.attributions[row.TradeDate] {
			if have.StockCode == row.StockCode && have.ConceptName == row.ConceptName {
				exists = true
				break
			}
		}
		if !exists {
			f.attributions[row.TradeDate] = append(f.attributions[row.TradeDate], row)
		}
	}
	return nil
}

func (f *fakeStore) DayAttributions(_ context.Context, tradeDate string) ([]model.AttributionRow, error) {
	return f.attributions[tradeDate], nil
}

func (f *fakeStore) RecentLimitUpAttribution(_ context.Context, stockCodes []string, start, end string) (map[string]model.AttributionRow, error) {
	wanted := make(map[string]bool, len(stockCodes))
	for _, c := range stockCodes {
		wanted[c] = true
	}
	out := make(map[string]model.AttributionRow)
	for date, rows := range f.attributions {
		if date < start || date > end {
			continue
		}
		snap := f.snaps[date]
		for _, row := range rows {
			if !wanted[row.StockCode] {
				continue
			}
			if snap == nil || snap.LimitUp[row.StockCode] == nil {
				continue
			}
			if have, ok := out[row.StockCode]; !ok || row.TradeDate > have.TradeDate {
				out[row.StockCode] = row
			}
		}
	}
	return out, nil
}

type mapResolver map[string][]string

func (m mapResolver) Resolve(_ context.Context, reason string) ([]string, error) {
	return m[reason], nil
}

type auditRecorder struct {
	rows [][4]string
}

func (a *auditRecorder) Append(tradeDate, stockCode, stockName, reason string) error {
	a.rows = append(a.rows, [4]string{tradeDate, stockCode, stockName, reason})
	return nil
}

func attributionCatalog(names ...string) *catalog.Catalog {
	metas := make([]model.ConceptMeta, len(names))
	for i, n := range names {
		metas[i] = model.ConceptMeta{Code: "885" + n, Name: n, Exchange: "A", Type: "N", Available: true}
	}
	return catalog.New(metas, nil)
}

func upEvent(code, name, reason, firstTime string) model.LimitEvent {
	return model.LimitEvent{
		TradeDate: "20250106",
		StockCode: code,
		StockName: name,
		Status:    model.LimitStatusUp,
		FirstTime: firstTime,
		LastTime:  firstTime,
		Reason:    reason,
	}
}

func newTestEngine(store Store, graph *conceptgraph.Graph, res ReasonResolver, audit AuditSink, names ...string) *Engine {
	return New(Params{
		Store:    store,
		Graph:    graph,
		Resolver: res,
		Catalog:  attributionCatalog(names...),
		Audit:    audit,
		Config:   DefaultConfig(),
	})
}

func TestBucketSetOrdering(t *testing.T) {
	b := NewBucketSet()
	b.Add("乙", "s1")
	b.Add("甲", "s2")
	b.Add("甲", "s3")
	b.Add("甲", "s2") // duplicate is a no-op

	assert.Equal(t, []string{"乙", "甲"}, b.Concepts())
	assert.Equal(t, []string{"s2", "s3"}, b.Stocks("甲"))
	assert.Equal(t, []string{"甲", "乙"}, b.ConceptsBySizeDesc())
	assert.Equal(t, []string{"乙", "甲"}, b.ConceptsBySizeAsc())
	assert.Equal(t, []string{"乙"}, b.BucketsOf("s1"))

	b.Remove("甲", "s2")
	assert.Equal(t, []string{"s3"}, b.Stocks("甲"))
	b.Delete("甲")
	assert.False(t, b.Has("甲"))
	assert.Equal(t, []string{"乙"}, b.Concepts())
}

func TestAttributeDayGroupsByReason(t *testing.T) {
	store := newFakeStore()
	store.snaps["20250106"] = model.NewDaySnapshot("20250106", []model.LimitEvent{
		upEvent("s1", "一", "固态电池", "093100"),
		upEvent("s2", "二", "固态电池", "093500"),
		upEvent("s3", "三", "固态电池", "094000"),
		upEvent("s4", "四", "军工", "100000"),
	})
	res := mapResolver{"固态电池": {"固态电池"}, "军工": {"军工"}}
	e := newTestEngine(store, conceptgraph.New(map[string][]string{}), res, nil, "固态电池", "军工")

	require.NoError(t, e.AttributeDay(context.Background(), "20250106"))

	rows := store.attributions["20250106"]
	require.Len(t, rows, 4)
	// Largest bucket first, members in limit-time order.
	assert.Equal(t, "固态电池", rows[0].ConceptName)
	assert.Equal(t, []string{"s1", "s2", "s3"}, []string{rows[0].StockCode, rows[1].StockCode, rows[2].StockCode})
	assert.Equal(t, "军工", rows[3].ConceptName)
	assert.Equal(t, "885固态电池", rows[0].ConceptCode)
}

func TestRunPassesStrongStockSkipsWeakBuckets(t *testing.T) {
	events := []model.LimitEvent{
		upEvent("s1", "一", "人工智能", "093000"),
		upEvent("s2", "二", "人工智能", "093100"),
		upEvent("s3", "三", "人工智能", "093200"),
		upEvent("s4", "四", "人工智能", "093300"),
		upEvent("s5", "五", "人工智能", "093400"),
		upEvent("s6", "六", "人工智能+机器人", "093500"),
		upEvent("s7", "七", "白酒+机器人", "093600"),
	}
	snap := model.NewDaySnapshot("20250106", events)
	res := mapResolver{
		"人工智能": {"人工智能"},
		"机器人":  {"机器人"},
		"白酒":   {"白酒"},
	}
	e := newTestEngine(newFakeStore(), conceptgraph.New(map[string][]string{}), res, nil)

	buckets := NewBucketSet()
	strong := make(map[string]bool)
	require.NoError(t, e.runPasses(context.Background(), snap, buckets, strong))

	assert.Equal(t, 6, buckets.Size("人工智能"))
	// s6 settled into a strong bucket on pass 0, so its secondary segment
	// opens no new bucket; s7 never settled, so its secondary does.
	assert.Equal(t, []string{"s7"}, buckets.Stocks("机器人"))
}

func TestRunPassesStrongAncestorAbsorbs(t *testing.T) {
	graph := conceptgraph.New(map[string][]string{
		"液冷服务器": {"算力"},
		"算力":    {},
	})
	events := []model.LimitEvent{
		upEvent("s1", "一", "算力", "093000"),
		upEvent("s2", "二", "算力", "093100"),
		upEvent("s3", "三", "算力", "093200"),
		upEvent("s4", "四", "算力", "093300"),
		upEvent("s5", "五", "算力", "093400"),
		upEvent("s6", "六", "液冷服务器", "093500"),
	}
	snap := model.NewDaySnapshot("20250106", events)
	res := mapResolver{"算力": {"算力"}, "液冷服务器": {"液冷服务器"}}
	e := newTestEngine(newFakeStore(), graph, res, nil)

	buckets := NewBucketSet()
	require.NoError(t, e.runPasses(context.Background(), snap, buckets, map[string]bool{}))

	assert.True(t, buckets.Contains("算力", "s6"), "strong ancestor bucket absorbs the candidate")
	assert.False(t, buckets.Has("液冷服务器"))
}

func TestRollUpMergesIntoAncestor(t *testing.T) {
	graph := conceptgraph.New(map[string][]string{
		"固态电池": {"新能源"},
		"汽车":   {"新能源"},
		"新能源":  {},
	})
	e := newTestEngine(newFakeStore(), graph, mapResolver{}, nil)

	buckets := NewBucketSet()
	buckets.Add("固态电池", "s1")
	buckets.Add("固态电池", "s2")
	buckets.Add("汽车", "s3")
	snap := model.NewDaySnapshot("20250106", nil)

	e.rollUp(buckets, snap)

	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, buckets.Stocks("新能源"))
	// Descendant buckets are cleared of the rolled-up stocks.
	assert.Zero(t, buckets.Size("固态电池"))
	assert.Zero(t, buckets.Size("汽车"))
}

func TestTimeCorrelateDropsUncorrelated(t *testing.T) {
	events := []model.LimitEvent{
		upEvent("x", "样本", "", "093000"),
		upEvent("y", "远", "", "140000"),
		upEvent("z", "近", "", "093500"),
		upEvent("w", "近二", "", "094000"),
	}
	snap := model.NewDaySnapshot("20250106", events)
	e := newTestEngine(newFakeStore(), conceptgraph.New(map[string][]string{}), mapResolver{}, nil)

	buckets := NewBucketSet()
	buckets.Add("小题材", "x")
	buckets.Add("小题材", "y")
	buckets.Add("大题材", "x")
	buckets.Add("大题材", "z")
	buckets.Add("大题材", "w")

	require.NoError(t, e.timeCorrelate(context.Background(), buckets, snap))

	assert.False(t, buckets.Contains("小题材", "x"), "uncorrelated bucket loses the stock")
	assert.True(t, buckets.Contains("大题材", "x"))
}

func TestTimeCorrelateEqualSizeRestoresPrimary(t *testing.T) {
	events := []model.LimitEvent{
		upEvent("x", "样本", "甲原因+乙原因", "093000"),
		upEvent("y", "远一", "", "140000"),
		upEvent("z", "远二", "", "143000"),
	}
	snap := model.NewDaySnapshot("20250106", events)
	res := mapResolver{"甲原因": {"甲"}, "乙原因": {"乙"}}
	e := newTestEngine(newFakeStore(), conceptgraph.New(map[string][]string{}), res, nil)

	buckets := NewBucketSet()
	buckets.Add("甲", "x")
	buckets.Add("甲", "y")
	buckets.Add("乙", "x")
	buckets.Add("乙", "z")

	require.NoError(t, e.timeCorrelate(context.Background(), buckets, snap))

	// Both equal-size buckets failed the time check; the stock returns to
	// the bucket of its primary reason segment only.
	assert.True(t, buckets.Contains("甲", "x"))
	assert.False(t, buckets.Contains("乙", "x"))
}

func TestCleanupMinimumSupport(t *testing.T) {
	e := newTestEngine(newFakeStore(), conceptgraph.New(map[string][]string{}), mapResolver{}, nil)

	buckets := NewBucketSet()
	for _, s := range []string{"s1", "s2", "s3"} {
		buckets.Add("大题材", s)
	}
	buckets.Add("小题材", "s1")
	buckets.Add("独苗", "s9")

	e.cleanup(buckets, 3)

	assert.False(t, buckets.Has("小题材"), "covered stock leaves the weak bucket, emptying it")
	assert.Equal(t, []string{"s9"}, buckets.Stocks("独苗"), "uncovered stocks stay put")
}

func TestSecondAssignment(t *testing.T) {
	store := newFakeStore()
	store.relations["s9"] = map[string]bool{"大题材": true}
	events := []model.LimitEvent{
		upEvent("s1", "一", "", "093000"),
		upEvent("s2", "二", "", "093100"),
		upEvent("s9", "九", "", "093200"),
		upEvent("s10", "十", "", "093300"),
	}
	snap := model.NewDaySnapshot("20250106", events)
	e := newTestEngine(store, conceptgraph.New(map[string][]string{}), mapResolver{}, nil)

	buckets := NewBucketSet()
	buckets.Add("大题材", "s1")
	buckets.Add("大题材", "s2")

	require.NoError(t, e.secondAssignment(context.Background(), snap, buckets))

	assert.True(t, buckets.Contains("大题材", "s9"), "verified relation joins the bucket")
	assert.Equal(t, []string{"s10"}, buckets.Stocks(CatchAllConcept))
}

func TestAuditUnattributed(t *testing.T) {
	store := newFakeStore()
	store.listed["s2"] = true
	audit := &auditRecorder{}
	events := []model.LimitEvent{
		upEvent("s1", "一", "冷门原因", "093000"),
		upEvent("s2", "二", "", "093100"),
		upEvent("s3", "三", "", "093200"), // unlisted: ST, skipped silently
	}
	snap := model.NewDaySnapshot("20250106", events)
	e := newTestEngine(store, conceptgraph.New(map[string][]string{}), mapResolver{}, nil)
	e.audit = audit

	require.NoError(t, e.auditUnattributed(context.Background(), "20250106", snap, map[string]bool{}))
	require.Len(t, audit.rows, 2)
	assert.Equal(t, "s1", audit.rows[0][1])
	assert.Equal(t, "s2", audit.rows[1][1])

	// Holiday-exception dates skip zero-concept reasons.
	audit.rows = nil
	snapHoliday := model.NewDaySnapshot("20240208", []model.LimitEvent{
		{TradeDate: "20240208", StockCode: "s1", StockName: "一", Status: model.LimitStatusUp, Reason: "冷门原因"},
	})
	require.NoError(t, e.auditUnattributed(context.Background(), "20240208", snapHoliday, map[string]bool{}))
	assert.Empty(t, audit.rows)
}

func TestRetargetFailedLimits(t *testing.T) {
	graph := conceptgraph.New(map[string][]string{
		"液冷服务器": {"算力"},
		"算力":    {},
	})
	store := newFakeStore()
	store.tradeDates = []string{"20250102", "20250103", "20250106"}
	store.snaps["20250103"] = model.NewDaySnapshot("20250103", []model.LimitEvent{
		{TradeDate: "20250103", StockCode: "f1", StockName: "炸", Status: model.LimitStatusUp, FirstTime: "093000"},
	})
	store.snaps["20250106"] = model.NewDaySnapshot("20250106", []model.LimitEvent{
		{TradeDate: "20250106", StockCode: "f1", StockName: "炸", Status: model.LimitStatusFailed, FirstTime: "093000"},
		upEvent("s1", "一", "", "093000"),
		upEvent("s2", "二", "", "093100"),
	})
	store.attributions["20250103"] = []model.AttributionRow{
		{StockCode: "f1", TradeDate: "20250103", StockName: "炸", ConceptName: "液冷服务器"},
	}
	store.attributions["20250106"] = []model.AttributionRow{
		{StockCode: "s1", TradeDate: "20250106", StockName: "一", ConceptName: "算力"},
		{StockCode: "s2", TradeDate: "20250106", StockName: "二", ConceptName: "算力"},
	}
	e := newTestEngine(store, graph, mapResolver{}, nil)

	require.NoError(t, e.RetargetFailedLimits(context.Background(), "20250106"))

	var f1Rows []string
	for _, row := range store.attributions["20250106"] {
		if row.StockCode == "f1" {
			f1Rows = append(f1Rows, row.ConceptName)
		}
	}
	// The prior niche concept broadens to the ancestor holding two of
	// today's limit-up stocks.
	assert.Equal(t, []string{"算力"}, f1Rows)
}

func TestRunRangeProcessesDaysInOrder(t *testing.T) {
	store := newFakeStore()
	store.tradeDates = []string{"20250106", "20250107"}
	e := newTestEngine(store, conceptgraph.New(map[string][]string{}), mapResolver{}, nil)

	require.NoError(t, e.RunRange(context.Background(), "20250106", "20250107"))

	require.GreaterOrEqual(t, len(store.calls), 3)
	assert.Equal(t, "delete 20250106 20250107", store.calls[0])
	assert.Equal(t, "replace 20250106", store.calls[1])
	assert.Equal(t, "replace 20250107", store.calls[2])
}

func TestAttributeDayDeterministic(t *testing.T) {
	build := func() []model.AttributionRow {
		store := newFakeStore()
		store.snaps["20250106"] = model.NewDaySnapshot("20250106", []model.LimitEvent{
			upEvent("s1", "一", "固态电池", "093100"),
			upEvent("s2", "二", "军工", "093200"),
			upEvent("s3", "三", "固态电池", "093300"),
			upEvent("s4", "四", "军工", "093400"),
			upEvent("s5", "五", "固态电池", "093500"),
		})
		res := mapResolver{"固态电池": {"固态电池"}, "军工": {"军工"}}
		e := newTestEngine(store, conceptgraph.New(map[string][]string{}), res, nil, "固态电池", "军工")
		require.NoError(t, e.AttributeDay(context.Background(), "20250106"))
		return store.attributions["20250106"]
	}

	first := build()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, build())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.EffectThreshold)
	assert.Equal(t, 5, cfg.StrongThreshold)
	assert.Equal(t, 2, cfg.MinSupport)
	assert.Equal(t, 1800, cfg.TimeWindowSeconds)
	assert.Equal(t, 5, cfg.LookbackDays)
	assert.True(t, sort.StringsAreSorted(cfg.HolidayExceptions))
}
