package annotation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/jobs"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/modelcache"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Service keeps stored annotations and cached models in step
type Service struct {
	store  store.Store
	models *modelcache.Cache
	media  media.Root
	jobs   *jobs.Runner
	logger *zap.Logger
}

// NewService creates a new annotation service
func NewService(st store.Store, models *modelcache.Cache, root media.Root, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, models: models, media: root, logger: logger}
}

// Models returns the model cache the service trains
func (s *Service) Models() *modelcache.Cache {
	return s.models
}

func (s *Service) project(ctx context.Context, id uint) (*model.Project, error) {
	p, err := s.store.WithContext(ctx).Projects().GetFull(id)
	if err != nil {
		return nil, fmt.Errorf("project %d: %w", id, err)
	}
	return p, nil
}

func (s *Service) document(ctx context.Context, p *model.Project, id uint) (*model.Document, error) {
	doc, err := s.store.WithContext(ctx).Documents().Get(id)
	if err != nil {
		return nil, fmt.Errorf("document %d: %w", id, err)
	}
	if doc.DatasetID != p.DatasetID {
		return nil, &model.ValidationError{
			Field:   "document_id",
			Message: fmt.Sprintf("document %d is not part of the dataset of project %d", id, p.ID),
		}
	}
	return doc, nil
}

// conceptDBID returns the ConceptDB concept rows of the project are indexed
// under, if any.
func conceptDBID(p *model.Project) (uint, bool) {
	if p.ConceptDBID != nil {
		return *p.ConceptDBID, true
	}
	if p.ModelPack != nil && p.ModelPack.ConceptDBID != nil {
		return *p.ModelPack.ConceptDBID, true
	}
	return 0, false
}
