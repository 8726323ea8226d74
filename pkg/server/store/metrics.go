package store

import "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"

// MetricsStore abstracts metrics report storage
type MetricsStore interface {
	CRUDStore[model.ProjectMetrics]

	// GetFull loads the report with its projects
	GetFull(id uint) (*model.ProjectMetrics, error)

	SetProjects(metricsID uint, projectIDs []uint) error

	// SetStatus records a status transition and its error message
	SetStatus(metricsID uint, status, errMsg string) error
}
