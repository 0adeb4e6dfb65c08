package processor

import (
	"math"
	"testing"

	"moverscan/models"
)

func candle(open, close float64, closeTime int64) models.Candle {
	return models.Candle{
		Open:      models.SomeFloat(open),
		Close:     models.SomeFloat(close),
		CloseTime: models.SomeInt(closeTime),
	}
}

func TestMovement(t *testing.T) {
	candles := []models.Candle{
		{Close: models.SomeFloat(50)}, // no open or closeTime
		candle(99, 100, 1699990000000),
		candle(100, 104, 1699995000000),
		candle(104, 110, 1700000000000),
		{Open: models.SomeFloat(110), CloseTime: models.SomeInt(1700005000000)}, // no close
	}
	pct, ts, ok := Movement(candles)
	if !ok {
		t.Fatal("expected movement")
	}
	if math.Abs(pct-10.0) > 1e-9 {
		t.Fatalf("movement = %v, want 10.0", pct)
	}
	if ts != 1700000000000 {
		t.Fatalf("timestamp = %d, want 1700000000000", ts)
	}
}

func TestMovementSingleValidCandle(t *testing.T) {
	pct, ts, ok := Movement([]models.Candle{{}, candle(1, 2, 42), {}})
	if !ok || pct != 0 || ts != 42 {
		t.Fatalf("single valid candle: got %v/%d/%v", pct, ts, ok)
	}
}

func TestMovementExclusions(t *testing.T) {
	cases := map[string][]models.Candle{
		"empty":          nil,
		"all missing":    {{}, {}, {}},
		"zero first":     {candle(1, 0, 1), candle(1, 5, 2)},
		"missing opens":  {{Close: models.SomeFloat(1), CloseTime: models.SomeInt(1)}},
		"missing closes": {{Open: models.SomeFloat(1), CloseTime: models.SomeInt(1)}},
	}
	for name, candles := range cases {
		t.Run(name, func(t *testing.T) {
			pct, _, ok := Movement(candles)
			if ok {
				t.Fatalf("expected exclusion, got %v", pct)
			}
			if math.IsNaN(pct) || math.IsInf(pct, 0) {
				t.Fatalf("non-finite value leaked: %v", pct)
			}
		})
	}
}

func TestRSIBoundsAndEdges(t *testing.T) {
	if _, ok := RSI([]float64{1, 2, 3}, 14); ok {
		t.Fatal("too few closes must yield no value")
	}
	if _, ok := RSI([]float64{1, 2, 3}, 0); ok {
		t.Fatal("period below one must yield no value")
	}

	tests := []struct {
		name   string
		closes []float64
		period int
		want   float64
	}{
		{"falling then rising", []float64{10, 10.5, 10, 9.5}, 3, 16.216216216216214},
		{"only gains", []float64{1, 2, 3, 4, 5}, 3, 99.3421052631579},
		{"only losses", []float64{5, 4, 3, 2, 1}, 3, 0.6578947368421053},
		{"flat", []float64{7, 7, 7}, 3, 50},
		{"single close", []float64{42}, 1, 50},
		{"mixed", []float64{44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00}, 14, 61.48315043905483},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := RSI(tt.closes, tt.period)
			if !ok {
				t.Fatal("expected value")
			}
			if v <= 0 || v >= 100 {
				t.Fatalf("RSI = %v, want strictly between 0 and 100", v)
			}
			if math.Abs(v-tt.want) > 1e-9 {
				t.Fatalf("RSI = %v, want %v", v, tt.want)
			}
		})
	}
}

func TestRSIExponentialSmoothing(t *testing.T) {
	// period 2 => k = 2/3, both averages seeded with 0.1
	// +2: up 0.1/3 + 4/3,  down 0.1/3
	// -1: up/3,            down/3 + 2/3
	// +1: up/3 + 2/3,      down/3
	up, down := 0.1, 0.1
	up, down = up/3+4.0/3, down/3
	up, down = up/3, down/3+2.0/3
	up, down = up/3+2.0/3, down/3
	want := 100 * up / (up + down)

	v, ok := RSI([]float64{10, 12, 11, 12}, 2)
	if !ok {
		t.Fatal("expected value")
	}
	if math.Abs(v-want) > 1e-9 {
		t.Fatalf("RSI = %v, want %v", v, want)
	}
	if math.Abs(v-78.36879432624113) > 1e-9 {
		t.Fatalf("RSI = %v, want 78.3688", v)
	}
}

func TestRank(t *testing.T) {
	results := []models.MovementResult{
		{Symbol: "A", MovementPct: 5.0},
		{Symbol: "B", MovementPct: -3.0},
		{Symbol: "C", MovementPct: 12.0},
	}
	Rank(results)
	want := []float64{12.0, 5.0, -3.0}
	for i, r := range results {
		if r.MovementPct != want[i] {
			t.Fatalf("position %d: got %v want %v", i, r.MovementPct, want[i])
		}
	}
}

func TestRankIsStable(t *testing.T) {
	results := []models.MovementResult{
		{Symbol: "A", MovementPct: 1},
		{Symbol: "B", MovementPct: 2},
		{Symbol: "C", MovementPct: 1},
		{Symbol: "D", MovementPct: 2},
	}
	Rank(results)
	order := ""
	for _, r := range results {
		order += r.Symbol
	}
	if order != "BDAC" {
		t.Fatalf("unexpected order %s", order)
	}
}

func TestRankMovesNaNLast(t *testing.T) {
	results := []models.MovementResult{
		{Symbol: "A", MovementPct: 3},
		{Symbol: "N", MovementPct: math.NaN()},
		{Symbol: "B", MovementPct: 5},
		{Symbol: "M", MovementPct: math.NaN()},
		{Symbol: "C", MovementPct: -1},
	}
	Rank(results)
	order := ""
	for _, r := range results {
		order += r.Symbol
	}
	if order != "BACNM" {
		t.Fatalf("unexpected order %s", order)
	}
}

func TestReduce(t *testing.T) {
	captures := []models.FetchResult{
		{Symbol: "AAA", SubTypes: []string{"Meme"}, Klines: []models.Candle{candle(1, 100, 10), candle(1, 105, 20)}},
		{Symbol: "BBB", Klines: []models.Candle{{}, {}}},
		{Symbol: "CCC", SubTypes: []string{"Layer-1"}, Klines: []models.Candle{candle(1, 100, 10), candle(1, 97, 30)}},
		{Symbol: "DDD", Klines: []models.Candle{candle(1, 10, 5), candle(1, 12, 25)}},
	}

	snap := Reduce(captures, 2)
	if snap.LastUpdatedTimestamp != 30 {
		t.Fatalf("as-of = %d, want 30", snap.LastUpdatedTimestamp)
	}
	if len(snap.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(snap.Results))
	}
	order := []string{"DDD", "AAA", "CCC"}
	for i, r := range snap.Results {
		if r.Symbol != order[i] {
			t.Fatalf("position %d: got %s want %s", i, r.Symbol, order[i])
		}
		if r.RSI == nil {
			t.Fatalf("%s: expected rsi", r.Symbol)
		}
		if r.SubTypes == nil {
			t.Fatalf("%s: subtypes must encode as a list", r.Symbol)
		}
	}
	if snap.Results[1].SubTypes[0] != "Meme" {
		t.Fatalf("subtypes not carried: %+v", snap.Results[1])
	}

	if plain := Reduce(captures, 0); plain.Results[0].RSI != nil {
		t.Fatal("rsi must be absent when disabled")
	}
}

func TestReduceEmpty(t *testing.T) {
	snap := Reduce(nil, 14)
	if len(snap.Results) != 0 || snap.LastUpdatedTimestamp != 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
