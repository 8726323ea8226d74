package annotation

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
)

// TrainMedCAT feeds the validated annotations of a document back into the
// model. Killed annotations unlink their name from the concept, deleted
// ones count against the link, and correct or alternative ones count for
// it. Projects whose ConceptDB is not marked for training are skipped.
func (s *Service) TrainMedCAT(ctx context.Context, cat *nlp.CAT, p *model.Project, doc *model.Document) error {
	if p.ConceptDB != nil && !p.ConceptDB.UseForTraining {
		s.logger.Info("concept db not used for training, skipping",
			zap.Uint("project", p.ID), zap.Uint("concept_db", p.ConceptDB.ID))
		return nil
	}

	annos, err := s.store.WithContext(ctx).Annotations().ListForDocument(p.ID, doc.ID)
	if err != nil {
		return err
	}

	trained := 0
	for i := range annos {
		a := &annos[i]
		if !a.Validated || a.Entity == nil {
			continue
		}
		cui := a.Entity.Label
		switch {
		case a.Killed:
			cat.UnlinkName(cui, a.Value)
		case a.Deleted:
			cat.TrainNegative(cui, a.Value)
		case a.Correct || a.Alternative:
			cat.TrainPositive(cui, a.Value)
		default:
			continue
		}
		trained++
	}
	s.logger.Info("trained model from document",
		zap.Uint("project", p.ID), zap.Uint("document", doc.ID), zap.Int("annotations", trained))
	return nil
}

// SubmitDocument records a document as validated and, for projects that
// train on submit, trains the project model from it.
func (s *Service) SubmitDocument(ctx context.Context, projectID, documentID uint) error {
	p, err := s.project(ctx, projectID)
	if err != nil {
		return err
	}
	doc, err := s.document(ctx, p, documentID)
	if err != nil {
		return err
	}
	if err := s.store.WithContext(ctx).Projects().MarkValidated(p.ID, doc.ID); err != nil {
		return err
	}
	if !p.TrainModelOnSubmit {
		return nil
	}
	cat, err := s.models.GetMedCAT(ctx, p)
	if err != nil {
		return err
	}
	return s.TrainMedCAT(ctx, cat, p, doc)
}

// SaveModels writes the cached model of a project back to its files. A
// CDB/Vocab project saves its ConceptDB file, a model pack project
// rewrites the pack.
func (s *Service) SaveModels(ctx context.Context, projectID uint) error {
	p, err := s.project(ctx, projectID)
	if err != nil {
		return err
	}
	cat, err := s.models.GetMedCAT(ctx, p)
	if err != nil {
		return err
	}

	if p.ModelPack != nil {
		packPath := s.media.Path(p.ModelPack.ModelPackFile)
		dir := nlp.UnpackDir(packPath)
		if err := cat.CDB.Save(filepath.Join(dir, nlp.ModelPackCDBFile)); err != nil {
			return err
		}
		if err := nlp.Zip(dir, packPath); err != nil {
			return fmt.Errorf("failed to repack model pack: %w", err)
		}
		s.logger.Info("saved model pack", zap.Uint("project", p.ID), zap.String("path", packPath))
		return nil
	}

	if p.ConceptDB == nil {
		return fmt.Errorf("project %d has no concept db", p.ID)
	}
	path := s.media.Path(p.ConceptDB.CDBFile)
	if err := cat.CDB.Save(path); err != nil {
		return err
	}
	s.logger.Info("saved concept db", zap.Uint("project", p.ID), zap.String("path", path))
	return nil
}

// ResubmitAll retrains the models of annotating projects from every
// document validated so far. Failures are logged per project and the
// remaining projects still run. It returns the number of documents used.
func (s *Service) ResubmitAll(ctx context.Context) (int, error) {
	projects, err := s.store.WithContext(ctx).Projects().ListByStatus(model.ProjectStatusAnnotating)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, summary := range projects {
		if !summary.TrainModelOnSubmit {
			continue
		}
		n, err := s.resubmitProject(ctx, summary.ID)
		if err != nil {
			s.logger.Error("failed to resubmit project", zap.Uint("project", summary.ID), zap.Error(err))
			continue
		}
		total += n
	}
	return total, nil
}

func (s *Service) resubmitProject(ctx context.Context, projectID uint) (int, error) {
	p, err := s.project(ctx, projectID)
	if err != nil {
		return 0, err
	}
	st := s.store.WithContext(ctx)
	ids, err := st.Projects().ValidatedDocumentIDs(p.ID)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	docs, err := st.Documents().GetMany(ids)
	if err != nil {
		return 0, err
	}
	cat, err := s.models.GetMedCAT(ctx, p)
	if err != nil {
		return 0, err
	}
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := s.TrainMedCAT(ctx, cat, p, &docs[i]); err != nil {
			return i, err
		}
	}
	return len(docs), nil
}
