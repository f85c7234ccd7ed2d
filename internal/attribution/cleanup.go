package attribution

import "go.uber.org/zap"

// cleanup enforces minimum support: a stock already covered by some bucket at
// or above the threshold is removed from every below-threshold bucket, and
// buckets left empty disappear.
func (e *Engine) cleanup(buckets *BucketSet, threshold int) {
	covered := buckets.Covered(threshold)

	for _, concept := range buckets.Concepts() {
		if buckets.Size(concept) >= threshold {
			continue
		}
		for _, code := range buckets.Stocks(concept) {
			if covered[code] {
				zap.L().Debug("attribution: minimum-support removal",
					zap.String("concept", concept),
					zap.String("stock", code),
					zap.Int("threshold", threshold),
				)
				buckets.Remove(concept, code)
			}
		}
		if buckets.Size(concept) == 0 {
			buckets.Delete(concept)
		}
	}
}
