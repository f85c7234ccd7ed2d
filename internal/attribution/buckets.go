package attribution

import "sort"

// BucketSet maps concept names to the stocks attributed to them. Both bucket
// order and member order are insertion-ordered so a day's pipeline produces
// identical output on every run.
type BucketSet struct {
	order   []string
	members map[string][]string
}

// NewBucketSet creates an empty BucketSet.
func NewBucketSet() *BucketSet {
	return &BucketSet{members: make(map[string][]string)}
}

// Add puts stock into concept's bucket, creating the bucket at the end of the
// order if needed. Adding an existing member is a no-op.
func (b *BucketSet) Add(concept, stock string) {
	if _, ok := b.members[concept]; !ok {
		b.order = append(b.order, concept)
		b.members[concept] = nil
	}
	if !b.Contains(concept, stock) {
		b.members[concept] = append(b.members[concept], stock)
	}
}

// Has reports whether the bucket exists (possibly empty).
func (b *BucketSet) Has(concept string) bool {
	_, ok := b.members[concept]
	return ok
}

// Contains reports whether stock is in concept's bucket.
func (b *BucketSet) Contains(concept, stock string) bool {
	for _, s := range b.members[concept] {
		if s == stock {
			return true
		}
	}
	return false
}

// Size returns the bucket's member count, 0 for unknown buckets.
func (b *BucketSet) Size(concept string) int {
	return len(b.members[concept])
}

// Stocks returns a copy of the bucket's members in insertion order.
func (b *BucketSet) Stocks(concept string) []string {
	return append([]string(nil), b.members[concept]...)
}

// Concepts returns the bucket names in insertion order.
func (b *BucketSet) Concepts() []string {
	return append([]string(nil), b.order...)
}

// Remove drops stock from concept's bucket if present. The bucket itself
// stays, even when emptied.
func (b *BucketSet) Remove(concept, stock string) {
	stocks := b.members[concept]
	for i, s := range stocks {
		if s == stock {
			b.members[concept] = append(stocks[:i:i], stocks[i+1:]...)
			return
		}
	}
}

// Delete drops the whole bucket.
func (b *BucketSet) Delete(concept string) {
	if _, ok := b.members[concept]; !ok {
		return
	}
	delete(b.members, concept)
	for i, c := range b.order {
		if c == concept {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			return
		}
	}
}

// BucketsOf returns the buckets containing stock, in bucket insertion order.
func (b *BucketSet) BucketsOf(stock string) []string {
	var out []string
	for _, concept := range b.order {
		if b.Contains(concept, stock) {
			out = append(out, concept)
		}
	}
	return out
}

// ConceptsBySizeAsc returns bucket names sorted by ascending size, insertion
// order breaking ties.
func (b *BucketSet) ConceptsBySizeAsc() []string {
	out := b.Concepts()
	sort.SliceStable(out, func(i, j int) bool {
		return b.Size(out[i]) < b.Size(out[j])
	})
	return out
}

// ConceptsBySizeDesc returns bucket names sorted by descending size,
// insertion order breaking ties.
func (b *BucketSet) ConceptsBySizeDesc() []string {
	out := b.Concepts()
	sort.SliceStable(out, func(i, j int) bool {
		return b.Size(out[i]) > b.Size(out[j])
	})
	return out
}

// Covered returns the set of stocks present in any bucket with at least
// threshold members.
func (b *BucketSet) Covered(threshold int) map[string]bool {
	covered := make(map[string]bool)
	for _, concept := range b.order {
		if b.Size(concept) >= threshold {
			for _, s := range b.members[concept] {
				covered[s] = true
			}
		}
	}
	return covered
}
