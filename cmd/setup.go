package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/limitup-cli/internal/attribution"
	"github.com/sells-group/limitup-cli/internal/audit"
	"github.com/sells-group/limitup-cli/internal/catalog"
	"github.com/sells-group/limitup-cli/internal/conceptgraph"
	"github.com/sells-group/limitup-cli/internal/resolver"
	"github.com/sells-group/limitup-cli/internal/store"
	"github.com/sells-group/limitup-cli/pkg/classifier"
	"github.com/sells-group/limitup-cli/pkg/translate"
	"github.com/sells-group/limitup-cli/pkg/websearch"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "limitup.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// loadGraph reads the concept hierarchy file.
func loadGraph() (*conceptgraph.Graph, error) {
	return conceptgraph.Load(cfg.Data.HierarchyPath)
}

// loadCatalog builds the eligible-concept catalog from the store plus the
// local custom-theme dictionary.
func loadCatalog(ctx context.Context, st store.Store) (*catalog.Catalog, error) {
	metas, err := st.LoadConceptCatalog(ctx)
	if err != nil {
		return nil, err
	}
	dict, err := catalog.LoadCustomDict(cfg.Data.CustomDictPath)
	if err != nil {
		return nil, err
	}
	return catalog.New(metas, dict), nil
}

// newResolver wires the tokenizer, classifier and search fallback behind the
// cached reason resolver.
func newResolver(ctx context.Context, st store.Store, graph *conceptgraph.Graph, cat *catalog.Catalog) (*resolver.Resolver, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (LIMITUP_ANTHROPIC_KEY)")
	}

	var tr translate.Translator = translate.StaticDict(nil)
	if cfg.Translate.AppID != "" {
		tr = translate.NewBaidu(cfg.Translate.AppID, cfg.Translate.Secret,
			translate.WithBaseURL(cfg.Translate.BaseURL))
	}

	tok, err := resolver.NewGseTokenizer(tr, cfg.Data.UserDicts...)
	if err != nil {
		return nil, err
	}

	llm := classifier.NewClient(cfg.Anthropic.Key,
		classifier.WithModel(cfg.Anthropic.Model),
		classifier.WithMaxTokens(cfg.Anthropic.MaxTokens),
		classifier.WithRateLimit(cfg.Anthropic.RequestsPerSecond),
	)

	search := websearch.NewClient(cfg.Search.Key,
		websearch.WithBaseURL(cfg.Search.BaseURL),
		websearch.WithMarket(cfg.Search.Market),
		websearch.WithLimit(cfg.Search.Limit),
	)

	return resolver.New(resolver.Params{
		Store:            st,
		Graph:            graph,
		Catalog:          cat,
		Tokenizer:        tok,
		Classifier:       llm,
		Search:           search,
		MaxDecodeRetries: cfg.Anthropic.MaxDecodeRetries,
	}), nil
}

// newEngine assembles the full attribution pipeline.
func newEngine(ctx context.Context, st store.Store) (*attribution.Engine, error) {
	graph, err := loadGraph()
	if err != nil {
		return nil, err
	}
	cat, err := loadCatalog(ctx, st)
	if err != nil {
		return nil, err
	}
	res, err := newResolver(ctx, st, graph, cat)
	if err != nil {
		return nil, err
	}
	sink, err := audit.NewLogger(cfg.Attribution.AuditPath)
	if err != nil {
		return nil, err
	}

	return attribution.New(attribution.Params{
		Store:    st,
		Graph:    graph,
		Resolver: res,
		Catalog:  cat,
		Audit:    sink,
		Config: attribution.Config{
			EffectThreshold:   cfg.Attribution.EffectThreshold,
			StrongThreshold:   cfg.Attribution.StrongThreshold,
			MinSupport:        cfg.Attribution.MinSupport,
			TimeWindowSeconds: cfg.Attribution.TimeWindowSeconds,
			LookbackDays:      cfg.Attribution.LookbackDays,
			HolidayExceptions: cfg.Attribution.HolidayExceptions,
		},
	}), nil
}
