package gorm

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

var _ store.HealthStore = (*HealthStore)(nil)

type HealthStore struct {
	db *gorm.DB
}

func NewHealthStore(db *gorm.DB) *HealthStore {
	return &HealthStore{db: db}
}

// Ping queries the users table so an unmigrated database is reported too
func (s *HealthStore) Ping() error {
	if err := s.db.Exec("SELECT 1 FROM users LIMIT 1").Error; err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	return nil
}
