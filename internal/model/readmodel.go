package model

// Health status values reported by the health endpoint.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// TicketIndex is the index holding tickets in the backing search cluster.
const TicketIndex = "voiceops-tickets"

// HealthStatus is the backend health snapshot.
type HealthStatus struct {
	Status          string         `json:"status"`
	JiraConfigured  bool           `json:"jira_configured"`
	SlackConfigured bool           `json:"slack_configured"`
	Indices         map[string]int `json:"indices"`
}

// Healthy reports whether the backend declared itself healthy.
func (h HealthStatus) Healthy() bool {
	return h.Status == HealthHealthy
}

// TicketCount returns the document count of the ticket index.
func (h HealthStatus) TicketCount() int {
	return h.Indices[TicketIndex]
}

// ESQLColumn describes one column of an ES|QL result.
type ESQLColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ESQLResult is the tabular output of a preset ES|QL query.
type ESQLResult struct {
	Query   string       `json:"query"`
	Columns []ESQLColumn `json:"columns"`
	Values  [][]any      `json:"values"`
	Error   string       `json:"error,omitempty"`
}

// Analytics is the read-only analytics snapshot.
type Analytics struct {
	TotalActions   int            `json:"total_actions"`
	SuccessRate    float64        `json:"success_rate"`
	AvgDurationMs  float64        `json:"avg_duration_ms"`
	ActionsByType  map[string]int `json:"actions_by_type"`
	TicketsByState map[string]int `json:"tickets_by_status"`
}

// Impact is the read-only impact metrics snapshot.
type Impact struct {
	CommandsProcessed int     `json:"commands_processed"`
	ActionsExecuted   int     `json:"actions_executed"`
	TimeSavedMinutes  float64 `json:"time_saved_minutes"`
	TicketsCreated    int     `json:"tickets_created"`
}
