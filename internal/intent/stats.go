package intent

import "github.com/shopspring/decimal"

// DashboardStats aggregates the counters shown on the dashboard surface.
type DashboardStats struct {
	TotalIntents  int             `json:"total_intents"`
	ActivePlans   int             `json:"active_plans"`
	ExecutedToday int             `json:"executed_today"`
	TotalRecords  int             `json:"total_records"`
	// TotalValue is the nominal sum of the amounts carried by active intents.
	TotalValue decimal.Decimal `json:"total_value"`
}
