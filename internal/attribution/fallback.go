package attribution

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/limitup-cli/internal/model"
)

// secondAssignment places every stock no bucket kept: scan surviving buckets
// with minimum support, largest first, and attach the stock to the first one
// backed by both a verified catalog stock→concept relation and a correlated
// limit time. Stocks nothing can justify land in the catch-all bucket.
func (e *Engine) secondAssignment(ctx context.Context, snap *model.DaySnapshot, buckets *BucketSet) error {
	covered := buckets.Covered(1)

	// Snapshot order and membership so fallback additions don't feed
	// later candidates.
	order := buckets.ConceptsBySizeDesc()
	members := make(map[string][]string, len(order))
	for _, concept := range order {
		members[concept] = buckets.Stocks(concept)
	}

	for _, code := range snap.LimitUpCodes {
		if covered[code] {
			continue
		}
		ev := snap.LimitUp[code]

		assigned := false
		for _, concept := range order {
			if len(members[concept]) < e.cfg.MinSupport {
				continue
			}
			if !e.anyMemberCorrelated(snap, members[concept], ev) {
				continue
			}
			related, err := e.store.HasConceptStockRelation(ctx, code, concept)
			if err != nil {
				return eris.Wrap(err, "attribution: check stock-concept relation")
			}
			if related {
				zap.L().Info("attribution: fallback assignment",
					zap.String("trade_date", snap.TradeDate),
					zap.String("stock", code),
					zap.String("concept", concept),
					zap.Int("bucket_size", len(members[concept])),
				)
				buckets.Add(concept, code)
				assigned = true
				break
			}
		}
		if !assigned {
			zap.L().Info("attribution: fallback to catch-all",
				zap.String("trade_date", snap.TradeDate),
				zap.String("stock", code),
			)
			buckets.Add(CatchAllConcept, code)
		}
	}
	return nil
}

func (e *Engine) anyMemberCorrelated(snap *model.DaySnapshot, members []string, ev *model.LimitEvent) bool {
	for _, other := range members {
		otherEv, ok := snap.LimitUp[other]
		if !ok {
			continue
		}
		if model.WithinSeconds(otherEv.FirstTime, ev.FirstTime, e.cfg.TimeWindowSeconds) ||
			model.WithinSeconds(otherEv.LastTime, ev.LastTime, e.cfg.TimeWindowSeconds) {
			return true
		}
	}
	return false
}
