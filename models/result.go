package models

// MovementResult is the reduced view of one instrument.
type MovementResult struct {
	Symbol      string   `json:"symbol"`
	MovementPct float64  `json:"movement_pct"`
	SubTypes    []string `json:"subType"`
	RSI         *float64 `json:"rsi,omitempty"`
	CloseTime   int64    `json:"close_time"`
}

// Snapshot is the published ranking.
type Snapshot struct {
	LastUpdatedTimestamp int64            `json:"last_updated_timestamp"`
	RunID                string           `json:"run_id,omitempty"`
	Results              []MovementResult `json:"results"`
}
