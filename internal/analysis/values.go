package analysis

import (
	"fmt"
	"time"

	"github.com/pricedash/pricedash/internal/query"
)

type accumulator struct {
	rows  int
	count int
	sum   float64
}

// add counts the row and includes value in the mean when it is numeric.
func (a *accumulator) add(value any) {
	a.rows++
	if number, ok := query.Float64(value); ok {
		a.count++
		a.sum += number
	}
}

func (a accumulator) mean() (float64, bool) {
	if a.count == 0 {
		return 0, false
	}
	return a.sum / float64(a.count), true
}

type groupedMeans struct {
	order   []string
	byGroup map[string]*accumulator
}

func groupMeans(data query.Dataset, value, group int) groupedMeans {
	byGroup := map[string]*accumulator{}
	seen := map[string]bool{}
	for _, row := range data.Rows {
		label, ok := groupLabel(row[group])
		if !ok {
			continue
		}
		acc, ok := byGroup[label]
		if !ok {
			acc = &accumulator{}
			byGroup[label] = acc
		}
		seen[label] = true
		acc.add(row[value])
	}
	return groupedMeans{order: sortedKeys(seen), byGroup: byGroup}
}

// max walks groups in lexicographic order and only replaces the leader on a
// strictly greater mean, so ties go to the first group.
func (g groupedMeans) max() (string, float64, bool) {
	var (
		bestLabel string
		bestMean  float64
		found     bool
	)
	for _, label := range g.order {
		mean, ok := g.byGroup[label].mean()
		if !ok {
			continue
		}
		if !found || mean > bestMean {
			bestLabel, bestMean, found = label, mean, true
		}
	}
	return bestLabel, bestMean, found
}

func groupLabel(value any) (string, bool) {
	switch typed := value.(type) {
	case nil:
		return "", false
	case string:
		return typed, true
	case time.Time:
		return typed.Format(time.DateOnly), true
	case fmt.Stringer:
		return typed.String(), true
	default:
		return fmt.Sprint(typed), true
	}
}
