package domain

// DailyActivity is one point on the weekly activity chart.
type DailyActivity struct {
	Date     string `json:"date"`
	Day      string `json:"day"`
	Comments int    `json:"comments"`
	DMs      int    `json:"dms"`
}

// Stats is the response body of GET /api/logs/stats.
type Stats struct {
	TotalComments   int             `json:"total_comments"`
	TotalDMsSent    int             `json:"total_dms_sent"`
	ActiveRules     int             `json:"active_rules"`
	EngagementRate  float64         `json:"engagement_rate"`
	TodayComments   int             `json:"today_comments"`
	TodayDMsSent    int             `json:"today_dms_sent"`
	ResponseTimeAvg float64         `json:"response_time_avg"`
	SuccessRate     float64         `json:"success_rate"`
	FailedActions   int             `json:"failed_actions"`
	WeeklyActivity  []DailyActivity `json:"weekly_activity"`
	TodayDate       string          `json:"today_date"`
}
