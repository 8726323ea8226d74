package annotation

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/jobs"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
)

// TaskPrepareDocuments is the job name of background document preparation
const TaskPrepareDocuments = "prepare_documents"

type preparePayload struct {
	UserID      uint           `json:"user_id"`
	ProjectID   uint           `json:"project_id"`
	DocumentIDs []uint         `json:"document_ids"`
	Options     PrepareOptions `json:"options"`
}

// EnableBackgroundPrepare registers the preparation job with runner so
// QueuePrepare can be used.
func (s *Service) EnableBackgroundPrepare(runner *jobs.Runner) {
	s.jobs = runner
	runner.Register(TaskPrepareDocuments, s.handlePrepare)
}

// QueuePrepare enqueues PrepareDocuments on the prepare queue
func (s *Service) QueuePrepare(ctx context.Context, userID, projectID uint, documentIDs []uint, opts PrepareOptions) (*model.Task, error) {
	if s.jobs == nil {
		return nil, errors.New("background preparation is not enabled")
	}
	if _, err := s.project(ctx, projectID); err != nil {
		return nil, err
	}
	return s.jobs.Enqueue(ctx, jobs.QueuePrepare, TaskPrepareDocuments, preparePayload{
		UserID:      userID,
		ProjectID:   projectID,
		DocumentIDs: documentIDs,
		Options:     opts,
	})
}

func (s *Service) handlePrepare(ctx context.Context, task *model.Task) error {
	var p preparePayload
	if err := jobs.Decode(task, &p); err != nil {
		return err
	}
	s.logger.Info("preparing documents in background",
		zap.Uint("project", p.ProjectID), zap.Int("documents", len(p.DocumentIDs)))
	return s.PrepareDocuments(ctx, p.UserID, p.ProjectID, p.DocumentIDs, p.Options)
}
