package model

// ImportStats aggregates feed import runs over a window.
type ImportStats struct {
	Total         int `json:"total"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	Running       int `json:"running"`
	ItemsImported int `json:"items_imported"`
	ItemsSkipped  int `json:"items_skipped"`
}

// GenerationStats aggregates AI usage over a window.
type GenerationStats struct {
	Calls   int     `json:"calls"`
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}
