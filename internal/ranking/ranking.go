// Package ranking orders scored feed items under the four sort modes.
// All orders are total so pagination stays stable across requests.
package ranking

import (
	"math"
	"sort"

	"github.com/trogers1052/pattern-review-service/internal/models"
)

// wilsonZ is the z-value for a 95% confidence interval.
const wilsonZ = 1.96

// Sort orders items in place for the given mode. Unknown modes fall back
// to "new".
func Sort(items []*models.Rankable, mode string) {
	less, ok := comparators[mode]
	if !ok {
		less = lessNew
	}
	sort.SliceStable(items, func(i, j int) bool {
		return less(items[i], items[j])
	})
}

type lessFunc func(a, b *models.Rankable) bool

var comparators = map[string]lessFunc{
	models.SortNew:           lessNew,
	models.SortTop:           lessTop,
	models.SortBest:          lessBest,
	models.SortControversial: lessControversial,
}

// Modes returns the supported sort mode names.
func Modes() []string {
	return []string{models.SortNew, models.SortTop, models.SortBest, models.SortControversial}
}

// Valid reports whether mode names a supported sort order.
func Valid(mode string) bool {
	_, ok := comparators[mode]
	return ok
}

// new: newest first, id ascending on equal timestamps.
func lessNew(a, b *models.Rankable) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ItemID < b.ItemID
}

// top: highest net score first, newer breaks ties.
func lessTop(a, b *models.Rankable) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return lessNew(a, b)
}

// best: Wilson lower bound of the upvote proportion. Items with no votes
// rank below any voted item.
func lessBest(a, b *models.Rankable) bool {
	wa, wb := WilsonLowerBound(a.Upvotes, a.Downvotes), WilsonLowerBound(b.Upvotes, b.Downvotes)
	if wa != wb {
		return wa > wb
	}
	va, vb := a.Upvotes+a.Downvotes > 0, b.Upvotes+b.Downvotes > 0
	if va != vb {
		return va
	}
	return lessNew(a, b)
}

// controversial: even splits with volume first.
func lessControversial(a, b *models.Rankable) bool {
	ca, cb := Controversy(a.Upvotes, a.Downvotes), Controversy(b.Upvotes, b.Downvotes)
	if ca != cb {
		return ca > cb
	}
	return lessNew(a, b)
}

// WilsonLowerBound computes the lower bound of the Wilson score interval
// for the upvote proportion at 95% confidence. Zero total votes yields 0.
func WilsonLowerBound(upvotes, downvotes int) float64 {
	n := float64(upvotes + downvotes)
	if n == 0 {
		return 0
	}
	phat := float64(upvotes) / n
	z := wilsonZ
	z2 := z * z
	denom := 1 + z2/n
	center := phat + z2/(2*n)
	margin := z * math.Sqrt((phat*(1-phat)+z2/(4*n))/n)
	return (center - margin) / denom
}

// Controversy scores how contested an item is: the magnitude term
// min(up, down) damped by the balance exponent min/max, so a lopsided
// split of any volume ranks under a modest even split. Items missing
// either side entirely score 0.
func Controversy(upvotes, downvotes int) float64 {
	if upvotes <= 0 || downvotes <= 0 {
		return 0
	}
	up, down := float64(upvotes), float64(downvotes)
	magnitude := math.Min(up, down)
	balance := magnitude / math.Max(up, down)
	return math.Pow(magnitude, balance)
}
