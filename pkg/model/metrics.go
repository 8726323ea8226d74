package model

import "time"

// Metrics report statuses
const (
	MetricsStatusQueued   = "queued"
	MetricsStatusRunning  = "running"
	MetricsStatusComplete = "complete"
	MetricsStatusFailed   = "failed"
)

// ProjectMetrics is a generated (or queued) metrics report over projects
type ProjectMetrics struct {
	ID                  uint      `gorm:"column:id;primaryKey" json:"id"`
	ReportName          string    `gorm:"column:report_name" json:"report_name"`
	ReportNameGenerated string    `gorm:"column:report_name_generated" json:"report_name_generated"`
	Report              string    `gorm:"column:report" json:"report"`
	Projects            []Project `gorm:"many2many:project_metrics_projects;joinForeignKey:ProjectMetricsID;joinReferences:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
	Status              string    `gorm:"column:status;size:20" json:"status"`
	Error               string    `gorm:"column:error" json:"error"`
	TaskID              string    `gorm:"column:task_id" json:"task_id"`
	CreateTime          time.Time `gorm:"column:create_time;autoCreateTime" json:"create_time"`
}

func (ProjectMetrics) TableName() string {
	return "project_metrics"
}
