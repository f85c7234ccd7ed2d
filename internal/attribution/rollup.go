package attribution

import (
	"go.uber.org/zap"

	"github.com/sells-group/limitup-cli/internal/model"
)

// rollUp merges small buckets upward: each bucket below the effect threshold
// pours its stocks into its concept's ancestors, nearest first, until some
// ancestor bucket reaches the threshold. Every concept that ends up showing
// an effect then clears its own stocks from all hierarchy-related buckets so
// a stock is counted once along any chain.
func (e *Engine) rollUp(buckets *BucketSet, snap *model.DaySnapshot) {
	type entry struct {
		concept string
		stocks  []string
	}
	snapshot := make([]entry, 0, len(buckets.Concepts()))
	for _, concept := range buckets.Concepts() {
		snapshot = append(snapshot, entry{concept, buckets.Stocks(concept)})
	}

	var targets []string
	for _, it := range snapshot {
		if len(it.stocks) >= e.cfg.EffectThreshold {
			targets = e.addEffectTarget(targets, it.concept)
			continue
		}
		if len(it.stocks) == 0 {
			continue
		}
		for _, anc := range e.graph.AncestorChain(it.concept) {
			for _, s := range it.stocks {
				buckets.Add(anc, s)
			}
			if buckets.Size(anc) >= e.cfg.EffectThreshold {
				zap.L().Info("attribution: small bucket rolled up",
					zap.String("from", it.concept),
					zap.String("to", anc),
					zap.Strings("stocks", names(snap, it.stocks)),
				)
				targets = append(targets, anc)
				break
			}
		}
	}

	for _, target := range dedup(targets) {
		targetSet := make(map[string]bool)
		for _, s := range buckets.Stocks(target) {
			targetSet[s] = true
		}
		for _, related := range e.graph.Related(target) {
			if !buckets.Has(related) {
				continue
			}
			for _, s := range buckets.Stocks(related) {
				if targetSet[s] {
					buckets.Remove(related, s)
				}
			}
		}
	}
}

// addEffectTarget registers a bucket already at the threshold, keeping only
// the most specific concept per hierarchy chain.
func (e *Engine) addEffectTarget(targets []string, concept string) []string {
	for i, t := range targets {
		// An ancestor target yields to its more specific descendant.
		if e.graph.IsAncestor(t, concept) {
			targets[i] = concept
			return targets
		}
		if e.graph.IsAncestor(concept, t) {
			return targets
		}
	}
	return append(targets, concept)
}

func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func names(snap *model.DaySnapshot, codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = snap.Names[c]
	}
	return out
}
