package gorm

import (
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Ensure MetricsStore implements store.MetricsStore
var _ store.MetricsStore = (*MetricsStore)(nil)

// MetricsStore implements store.MetricsStore using GORM
type MetricsStore struct {
	*CRUD[model.ProjectMetrics]
	db *gorm.DB
}

// NewMetricsStore creates a new MetricsStore
func NewMetricsStore(db *gorm.DB) *MetricsStore {
	return &MetricsStore{CRUD: NewCRUD[model.ProjectMetrics](db, "Projects"), db: db}
}

func (s *MetricsStore) GetFull(id uint) (*model.ProjectMetrics, error) {
	var m model.ProjectMetrics
	if err := s.db.Preload("Projects").First(&m, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (s *MetricsStore) SetProjects(metricsID uint, projectIDs []uint) error {
	return replaceJoin(s.db, "project_metrics_projects", "project_metrics_id", metricsID, "project_id", projectIDs)
}

func (s *MetricsStore) SetStatus(metricsID uint, status, errMsg string) error {
	res := s.db.Model(&model.ProjectMetrics{}).Where("id = ?", metricsID).
		Updates(map[string]interface{}{"status": status, "error": errMsg})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
