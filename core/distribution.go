package core

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// BucketWidth is the width of one histogram bin.
const BucketWidth = 100

var bucketWidth = decimal.NewFromInt(BucketWidth)

// BucketFloor returns floor(amount/BucketWidth) * BucketWidth.
func BucketFloor(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(bucketWidth).Floor().Mul(bucketWidth)
}

// BucketLabel renders a bucket as "[key, key+99]". The label names whole
// currency units; the bucket itself is [key, key+BucketWidth), so 199.50
// is counted under "[100, 199]".
func BucketLabel(floor decimal.Decimal) string {
	upper := floor.Add(bucketWidth).Sub(decimal.NewFromInt(1))
	return fmt.Sprintf("[%s, %s]", floor.String(), upper.String())
}

// AmountDistribution counts bids per fixed-width amount bucket, ascending by bucket.
func AmountDistribution(bids []Bid) []DistributionBucket {
	counts := make(map[string]*DistributionBucket)
	for _, bid := range bids {
		floor := BucketFloor(bid.Amount)
		key := floor.String()
		bucket, ok := counts[key]
		if !ok {
			bucket = &DistributionBucket{Floor: floor, Label: BucketLabel(floor)}
			counts[key] = bucket
		}
		bucket.Count++
	}

	buckets := make([]DistributionBucket, 0, len(counts))
	for _, bucket := range counts {
		buckets = append(buckets, *bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Floor.LessThan(buckets[j].Floor)
	})
	return buckets
}
