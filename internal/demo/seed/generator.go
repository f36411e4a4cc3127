package seed

import (
	"math"
	"math/rand"
)

var DefaultSets = []string{
	"Alpha",
	"Beta",
	"Unlimited",
	"Arabian Nights",
	"Antiquities",
	"Legends",
	"The Dark",
	"Ice Age",
}

// PriceRow is one observation: the average price of a set's cards a number
// of days after the set launched.
type PriceRow struct {
	DateDiff int64
	AvgUSD   float64
	SetName  string
}

type Generator struct {
	rnd      *rand.Rand
	sets     []string
	days     int
	stepDays int
}

func NewGenerator(seed int64, sets []string, days, stepDays int) *Generator {
	if stepDays <= 0 {
		stepDays = 1
	}
	return &Generator{
		rnd:      rand.New(rand.NewSource(seed)),
		sets:     append([]string(nil), sets...),
		days:     days,
		stepDays: stepDays,
	}
}

// Series walks every set from launch to the configured horizon. premium
// scales the launch price, e.g. for foil printings.
func (g *Generator) Series(premium float64) []PriceRow {
	if premium <= 0 {
		premium = 1
	}
	rows := make([]PriceRow, 0, len(g.sets)*(g.days/g.stepDays+1))
	for _, set := range g.sets {
		price := round2((0.5 + g.rnd.Float64()*4.5) * premium)
		drift := 0.002 + g.rnd.Float64()*0.01
		for day := 0; day <= g.days; day += g.stepDays {
			rows = append(rows, PriceRow{DateDiff: int64(day), AvgUSD: price, SetName: set})
			shock := (g.rnd.Float64() - 0.5) * 0.04
			price = math.Max(0.05, round2(price*(1+drift*float64(g.stepDays)/7+shock)))
		}
	}
	return rows
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
