package models

import "time"

// HealthMetrics is the composite health evaluation of a schedule.
type HealthMetrics struct {
	ScheduleID           string    `json:"schedule_id"`
	OverallScore         float64   `json:"overall_score"`
	ConflictScore        float64   `json:"conflict_score"`
	BalanceScore         float64   `json:"balance_score"`
	UtilizationScore     float64   `json:"utilization_score"`
	ComplianceScore      float64   `json:"compliance_score"`
	CoverageScore        float64   `json:"coverage_score"`
	TotalConflicts       int       `json:"total_conflicts"`
	CriticalConflicts    int       `json:"critical_conflicts"`
	WarningConflicts     int       `json:"warning_conflicts"`
	OverEnrolledSections int       `json:"over_enrolled_sections"`
	UnbalancedSections   int       `json:"unbalanced_sections"`
	CriticalIssues       []string  `json:"critical_issues"`
	Recommendations      []string  `json:"recommendations"`
	CalculatedAt         time.Time `json:"calculated_at"`
}
