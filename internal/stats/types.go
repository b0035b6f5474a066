package stats

// InsightStats is the immutable usage snapshot embedded in a report and
// written to the export directory as stats.json.
type InsightStats struct {
	Period       Period         `json:"period"`
	Usage        Usage          `json:"usage"`
	Activity     Activity       `json:"activity"`
	ModelUsage   []ModelUsage   `json:"modelUsage"`
	ProjectUsage []ProjectUsage `json:"projectUsage"`
	ModeUsage    ModeUsage      `json:"modeUsage"`
	Trend        []TrendPoint   `json:"trend"`
}

type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Type  string `json:"type"`
}

type Usage struct {
	TotalTokens  int64   `json:"totalTokens"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	TotalCostUSD float64 `json:"totalCostUsd"`
	APICalls     int64   `json:"apiCalls"`
}

type Activity struct {
	ActiveDays    int64 `json:"activeDays"`
	PeakHour      int   `json:"peakHour"`
	SessionsCount int64 `json:"sessionsCount"`
	ChatsCount    int64 `json:"chatsCount"`
}

type ModelUsage struct {
	Model      string  `json:"model"`
	Tokens     int64   `json:"tokens"`
	Calls      int64   `json:"calls"`
	Percentage float64 `json:"percentage"`
}

type ProjectUsage struct {
	ProjectID   string  `json:"projectId"`
	ProjectName string  `json:"projectName"`
	Tokens      int64   `json:"tokens"`
	Calls       int64   `json:"calls"`
	Percentage  float64 `json:"percentage"`
}

type ModeBucket struct {
	Tokens int64 `json:"tokens"`
	Calls  int64 `json:"calls"`
}

type ModeUsage struct {
	Plan  ModeBucket `json:"plan"`
	Agent ModeBucket `json:"agent"`
}

type TrendPoint struct {
	Label  string `json:"label"`
	Tokens int64  `json:"tokens"`
	Calls  int64  `json:"calls"`
}
