package attribution

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/limitup-cli/internal/model"
)

// timeCorrelate validates multi-bucket stocks against their bucket peers: a
// stock stays in a bucket only if some other member limited up (first or
// last touch) within the configured window. A stock stripped of every bucket
// gets restored to the bucket matching its primary reason segment when its
// original candidate buckets were all the same size, because size then gave
// no signal to prefer one over another.
func (e *Engine) timeCorrelate(ctx context.Context, buckets *BucketSet, snap *model.DaySnapshot) error {
	for _, code := range snap.LimitUpCodes {
		own := buckets.BucketsOf(code)
		if len(own) < 2 {
			continue
		}

		// Smallest buckets are the weakest claims, so they are tested first.
		ordered := orderBySizeAsc(buckets, own)
		equalSizes := allSizesEqual(buckets, ordered)

		for _, concept := range ordered {
			if e.correlated(buckets, snap, concept, code) {
				continue
			}
			zap.L().Info("attribution: bucket dropped by time check",
				zap.String("trade_date", snap.TradeDate),
				zap.String("stock", code),
				zap.String("concept", concept),
			)
			buckets.Remove(concept, code)
		}

		if len(buckets.BucketsOf(code)) == 0 && equalSizes {
			primary, err := e.primaryConcepts(ctx, snap.LimitUp[code].Reason)
			if err != nil {
				return err
			}
			for _, concept := range ordered {
				if containsString(primary, concept) {
					zap.L().Info("attribution: restored to primary-reason bucket",
						zap.String("stock", code),
						zap.String("concept", concept),
					)
					buckets.Add(concept, code)
					break
				}
			}
		}
	}
	return nil
}

// correlated reports whether another member of the bucket limited up within
// the window of this stock's first or last limit touch.
func (e *Engine) correlated(buckets *BucketSet, snap *model.DaySnapshot, concept, code string) bool {
	ev := snap.LimitUp[code]
	for _, other := range buckets.Stocks(concept) {
		if other == code {
			continue
		}
		otherEv, ok := snap.LimitUp[other]
		if !ok {
			continue
		}
		if model.WithinSeconds(ev.FirstTime, otherEv.FirstTime, e.cfg.TimeWindowSeconds) ||
			model.WithinSeconds(ev.LastTime, otherEv.LastTime, e.cfg.TimeWindowSeconds) {
			return true
		}
	}
	return false
}

// primaryConcepts resolves the first reason segment that yields any concept.
// The resolver memoizes, so this re-resolution costs nothing external.
func (e *Engine) primaryConcepts(ctx context.Context, reason string) ([]string, error) {
	for _, segment := range model.SplitReason(reason) {
		concepts, err := e.resolver.Resolve(ctx, segment)
		if err != nil {
			return nil, eris.Wrapf(err, "attribution: resolve primary segment %q", segment)
		}
		if len(concepts) > 0 {
			return concepts, nil
		}
	}
	return nil, nil
}

func orderBySizeAsc(buckets *BucketSet, concepts []string) []string {
	ordered := make([]string, 0, len(concepts))
	for _, c := range buckets.ConceptsBySizeAsc() {
		if containsString(concepts, c) {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

func allSizesEqual(buckets *BucketSet, concepts []string) bool {
	if len(concepts) == 0 {
		return true
	}
	first := buckets.Size(concepts[0])
	for _, c := range concepts[1:] {
		if buckets.Size(c) != first {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
