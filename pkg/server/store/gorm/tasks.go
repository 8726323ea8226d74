package gorm

import (
	"time"

	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Ensure TasksStore implements store.TasksStore
var _ store.TasksStore = (*TasksStore)(nil)

// TasksStore implements store.TasksStore using GORM
type TasksStore struct {
	db *gorm.DB
}

// NewTasksStore creates a new TasksStore
func NewTasksStore(db *gorm.DB) *TasksStore {
	return &TasksStore{db: db}
}

func (s *TasksStore) Enqueue(t *model.Task) error {
	t.Status = model.TaskStatusQueued
	return mapErr(s.db.Create(t).Error)
}

func (s *TasksStore) Get(id string) (*model.Task, error) {
	var t model.Task
	if err := s.db.Where("id = ?", id).First(&t).Error; err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

// ClaimNext marks the oldest queued task as running. The conditional
// update lets concurrent workers race safely for the same row.
func (s *TasksStore) ClaimNext(queue string) (*model.Task, error) {
	var claimed model.Task
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("queue = ? AND status = ?", queue, model.TaskStatusQueued).
			Order("created_at, id").First(&claimed).Error; err != nil {
			return err
		}
		now := time.Now()
		res := tx.Model(&model.Task{}).
			Where("id = ? AND status = ?", claimed.ID, model.TaskStatusQueued).
			Updates(map[string]interface{}{
				"status":     model.TaskStatusRunning,
				"started_at": now,
				"attempts":   gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		claimed.Status = model.TaskStatusRunning
		claimed.StartedAt = &now
		claimed.Attempts++
		return nil
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return &claimed, nil
}

func (s *TasksStore) Finish(id string, runErr error) error {
	updates := map[string]interface{}{
		"status":      model.TaskStatusComplete,
		"error":       "",
		"finished_at": time.Now(),
	}
	if runErr != nil {
		updates["status"] = model.TaskStatusFailed
		updates["error"] = runErr.Error()
	}
	res := s.db.Model(&model.Task{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *TasksStore) FailRunning() (int64, error) {
	res := s.db.Model(&model.Task{}).
		Where("status = ?", model.TaskStatusRunning).
		Updates(map[string]interface{}{
			"status":      model.TaskStatusFailed,
			"error":       "interrupted by shutdown",
			"finished_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (s *TasksStore) Delete(id string) error {
	res := s.db.Where("id = ? AND status <> ?", id, model.TaskStatusRunning).Delete(&model.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *TasksStore) List(queue, status string) ([]model.Task, error) {
	q := s.db.Order("created_at, id")
	if queue != "" {
		q = q.Where("queue = ?", queue)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var tasks []model.Task
	err := q.Find(&tasks).Error
	return tasks, err
}
