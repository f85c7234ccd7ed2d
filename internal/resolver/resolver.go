// Package resolver maps limit-up reason text to market concept names. Results
// are memoized in memory and persisted to a write-once store cache, so any
// reason pays the external classification cost at most once.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/limitup-cli/internal/catalog"
	"github.com/sells-group/limitup-cli/internal/conceptgraph"
	"github.com/sells-group/limitup-cli/internal/model"
	"github.com/sells-group/limitup-cli/internal/resilience"
	"github.com/sells-group/limitup-cli/pkg/classifier"
	"github.com/sells-group/limitup-cli/pkg/websearch"
)

// CacheStore persists resolved reasons.
type CacheStore interface {
	// GetReasonCache returns nil when the reason has never been resolved.
	GetReasonCache(ctx context.Context, reason string) (*model.ReasonCacheEntry, error)
	PutReasonCache(ctx context.Context, entry model.ReasonCacheEntry) error
}

// Params collects the resolver's collaborators.
type Params struct {
	Store      CacheStore
	Graph      *conceptgraph.Graph
	Catalog    *catalog.Catalog
	Tokenizer  Tokenizer
	Classifier classifier.Client
	Search     websearch.Client
	// MaxDecodeRetries bounds repeat attempts when the classifier reply
	// cannot be parsed. Default 3.
	MaxDecodeRetries int
}

// Resolver resolves reason text to concept names.
type Resolver struct {
	store            CacheStore
	graph            *conceptgraph.Graph
	cat              *catalog.Catalog
	tok              Tokenizer
	llm              classifier.Client
	search           websearch.Client
	maxDecodeRetries int

	mu   sync.Mutex
	memo map[string][]string
}

// New creates a Resolver.
func New(p Params) *Resolver {
	if p.MaxDecodeRetries <= 0 {
		p.MaxDecodeRetries = 3
	}
	return &Resolver{
		store:            p.Store,
		graph:            p.Graph,
		cat:              p.Catalog,
		tok:              p.Tokenizer,
		llm:              p.Classifier,
		search:           p.Search,
		maxDecodeRetries: p.MaxDecodeRetries,
		memo:             make(map[string][]string),
	}
}

// Resolve returns the concepts attributed to reason, consulting the memo and
// the store cache before analyzing. Index-membership concepts are filtered
// from the returned list but kept in the cache as recorded.
func (r *Resolver) Resolve(ctx context.Context, reason string) ([]string, error) {
	r.mu.Lock()
	cached, ok := r.memo[reason]
	r.mu.Unlock()
	if ok {
		return filterExcluded(cached), nil
	}

	entry, err := r.store.GetReasonCache(ctx, reason)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		r.remember(reason, entry.Concepts)
		return filterExcluded(entry.Concepts), nil
	}

	zap.L().Info("resolver: analyzing uncached reason", zap.String("reason", reason))
	concepts, pre, err := r.analyze(ctx, reason)
	if err != nil {
		return nil, err
	}
	if err := r.persist(ctx, reason, pre, concepts); err != nil {
		return nil, err
	}
	r.remember(reason, concepts)
	return filterExcluded(concepts), nil
}

func (r *Resolver) remember(reason string, concepts []string) {
	r.mu.Lock()
	r.memo[reason] = concepts
	r.mu.Unlock()
}

// analyze runs the resolution pipeline for a reason not present in any cache.
// It returns the final concepts and the last candidate set sent to the
// classifier, for auditing.
func (r *Resolver) analyze(ctx context.Context, reason string) (concepts, pre []string, err error) {
	if name, ok := r.directMatch(reason); ok {
		zap.L().Info("resolver: direct rule hit",
			zap.String("reason", reason),
			zap.String("concept", name),
		)
		return []string{name}, nil, nil
	}

	tokens := r.tok.Tokens(ctx, reason)
	if containsNoise(tokens) {
		zap.L().Info("resolver: reason carries no thematic signal", zap.String("reason", reason))
		return nil, nil, nil
	}

	concepts, pre, err = r.analyzeTokens(ctx, reason, tokens, false)
	if err != nil || len(concepts) > 0 {
		return concepts, pre, err
	}

	// Rule-based tokens found nothing; ask for an associative decomposition.
	suggested, err := r.suggest(ctx, reason, tokens)
	if err != nil {
		return nil, pre, err
	}
	suggested = filterValid(suggested)
	if len(suggested) == 0 || sameTokens(suggested, tokens) {
		return nil, pre, nil
	}

	concepts, pre2, err := r.analyzeTokens(ctx, reason, suggested, true)
	if len(pre2) > 0 {
		pre = pre2
	}
	if err != nil || len(concepts) > 0 {
		return concepts, pre, err
	}

	// Last try: pool every failed token and ask once more.
	again, err := r.suggest(ctx, reason, append(append([]string{}, tokens...), suggested...))
	if err != nil {
		return nil, pre, err
	}
	again = filterValid(again)
	if len(again) == 0 || sameTokens(again, suggested) {
		return nil, pre, nil
	}
	concepts, pre3, err := r.analyzeTokens(ctx, reason, again, true)
	if len(pre3) > 0 {
		pre = pre3
	}
	return concepts, pre, err
}

// analyzeTokens builds a candidate set from tokens and asks the classifier to
// rank it. When enableSearch is set, an empty result with an unknown term
// triggers the web-search fallback.
func (r *Resolver) analyzeTokens(ctx context.Context, reason string, tokens []string, enableSearch bool) ([]string, []string, error) {
	candidates := r.candidates(tokens)
	if len(candidates) == 0 {
		return nil, nil, nil
	}
	zap.L().Debug("resolver: candidate concepts",
		zap.String("reason", reason),
		zap.Strings("candidates", candidates),
	)

	ranking, err := r.rank(ctx, reason, candidates, "")
	if err != nil {
		return nil, candidates, err
	}
	concepts := ranking.Concepts

	if len(concepts) == 0 && ranking.Unknown != "" && enableSearch {
		searched, searchCands, err := r.searchFallback(ctx, reason, ranking.Unknown)
		switch {
		case err != nil:
			zap.L().Warn("resolver: web search fallback failed",
				zap.String("term", ranking.Unknown),
				zap.Error(err),
			)
		case len(searchCands) > 0:
			candidates = searchCands
			concepts = searched
		}
	}

	if len(concepts) > 1 {
		refined := r.refine(concepts)
		zap.L().Info("resolver: refined concepts with hierarchy",
			zap.String("reason", reason),
			zap.Strings("before", concepts),
			zap.Strings("after", refined),
		)
		concepts = refined
	}
	return concepts, candidates, nil
}

// searchFallback looks the unknown term up on the web, rebuilds candidates
// from the result titles, and re-ranks with the snippets as background.
func (r *Resolver) searchFallback(ctx context.Context, reason, unknown string) ([]string, []string, error) {
	result, err := r.search.Search(ctx, unknown)
	if err != nil {
		return nil, nil, err
	}

	var cands []string
	var background strings.Builder
	for i, title := range result.Titles {
		titleCands := r.candidates(r.tok.Tokens(ctx, title))
		if len(titleCands) == 0 {
			continue
		}
		cands = append(cands, titleCands...)
		if i < len(result.Snippets) {
			background.WriteString("\n- ")
			background.WriteString(result.Snippets[i])
		}
	}
	if background.Len() == 0 {
		return nil, nil, nil
	}

	cands = dedupStrings(cands)
	zap.L().Info("resolver: candidates inferred from web search",
		zap.String("term", unknown),
		zap.Strings("candidates", cands),
	)
	ranking, err := r.rank(ctx, reason, cands, fmt.Sprintf("%s背景信息: %s", unknown, background.String()))
	if err != nil {
		return nil, cands, err
	}
	return ranking.Concepts, cands, nil
}

// candidates matches tokens against the catalog by substring and pulls in
// custom themes whose keywords overlap the tokens.
func (r *Resolver) candidates(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, name := range r.cat.Names() {
		for _, tok := range tokens {
			if tok != "" && strings.Contains(name, tok) {
				if !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
				break
			}
		}
	}
	for _, theme := range r.cat.ThemesMatchingTokens(tokens) {
		if !seen[theme] {
			seen[theme] = true
			out = append(out, theme)
		}
	}
	return out
}

func (r *Resolver) rank(ctx context.Context, reason string, candidates []string, background string) (*classifier.Ranking, error) {
	return resilience.DoVal(ctx, r.retryConfig("rank_concepts"), func(ctx context.Context) (*classifier.Ranking, error) {
		return r.llm.RankConcepts(ctx, reason, candidates, background)
	})
}

func (r *Resolver) suggest(ctx context.Context, reason string, failed []string) ([]string, error) {
	return resilience.DoVal(ctx, r.retryConfig("suggest_keywords"), func(ctx context.Context) ([]string, error) {
		return r.llm.SuggestKeywords(ctx, reason, failed)
	})
}

// retryConfig retries unparseable classifier replies and transient faults,
// bounded so a stubborn model cannot loop forever.
func (r *Resolver) retryConfig(operation string) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: r.maxDecodeRetries,
		ShouldRetry: func(err error) bool {
			var de *classifier.DecodeError
			return errors.As(err, &de) || resilience.IsTransient(err)
		},
		OnRetry: resilience.RetryLogger("classifier", operation),
	}
}

// persist records the resolution in the store cache. Writes are retried
// because the cache is the only defense against paying the classifier twice.
func (r *Resolver) persist(ctx context.Context, reason string, pre, concepts []string) error {
	cfg := resilience.RetryConfig{
		MaxAttempts: 5,
		ShouldRetry: func(error) bool { return true },
		OnRetry:     resilience.RetryLogger("store", "put_reason_cache"),
	}
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return r.store.PutReasonCache(ctx, model.ReasonCacheEntry{
			Reason:      reason,
			PreConcepts: pre,
			Concepts:    concepts,
		})
	})
	if err != nil {
		return eris.Wrap(err, "resolver: persist reason cache")
	}
	return nil
}

// sameTokens reports whether two token sets are equal ignoring order. Two
// empty sets count as different so an empty suggestion never short-circuits
// a retry.
func sameTokens(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, s := range a {
		counts[s]++
	}
	for _, s := range b {
		counts[s]--
		if counts[s] < 0 {
			return false
		}
	}
	return true
}

func filterExcluded(concepts []string) []string {
	var out []string
	for _, c := range dedupStrings(concepts) {
		if !catalog.IsExcluded(c) {
			out = append(out, c)
		}
	}
	return out
}
