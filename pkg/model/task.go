package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task statuses
const (
	TaskStatusQueued   = "queued"
	TaskStatusRunning  = "running"
	TaskStatusComplete = "complete"
	TaskStatusFailed   = "failed"
)

// Task is a persisted background job
type Task struct {
	ID         string     `gorm:"column:id;primaryKey;size:36" json:"id"`
	Queue      string     `gorm:"column:queue;size:100;index" json:"queue"`
	Name       string     `gorm:"column:name;size:100;not null" json:"name"`
	Payload    []byte     `gorm:"column:payload" json:"payload"`
	Status     string     `gorm:"column:status;size:20;index" json:"status"`
	Error      string     `gorm:"column:error" json:"error"`
	Attempts   int        `gorm:"column:attempts" json:"attempts"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	StartedAt  *time.Time `gorm:"column:started_at" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at"`
}

func (Task) TableName() string {
	return "background_tasks"
}

// BeforeCreate assigns a random id to new tasks
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
