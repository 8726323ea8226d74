// Package modelfiles registers uploaded model files (concept databases,
// vocabs and model packs) and removes their files and dependent rows when
// they are deleted.
package modelfiles

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/modelcache"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

var nonNameRgx = regexp.MustCompile(`[^a-z0-9_-]+`)

// Service manages model files under the media root
type Service struct {
	store  store.Store
	media  media.Root
	models *modelcache.Cache
	logger *zap.Logger
}

// NewService creates a new model files service. models may be nil.
func NewService(st store.Store, root media.Root, models *modelcache.Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, media: root, models: models, logger: logger}
}

// RegisterModelPack unpacks the zip of mp and creates the pack with rows
// for its CDB, Vocab and MetaCAT models. Every MetaCAT gets a meta task of
// the same name predicted by it, created if missing.
func (s *Service) RegisterModelPack(ctx context.Context, mp *model.ModelPack) error {
	var pack *nlp.ModelPack
	err := s.store.WithContext(ctx).Transaction(func(tx store.Store) error {
		var err error
		pack, err = RegisterModelPackIn(tx, s.media, mp)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("registered model pack",
		zap.Uint("model_pack", mp.ID), zap.String("name", mp.Name), zap.Int("meta_cats", len(pack.MetaCATs)))
	return nil
}

// RegisterModelPackIn is RegisterModelPack within the transaction tx
func RegisterModelPackIn(tx store.Store, root media.Root, mp *model.ModelPack) (*nlp.ModelPack, error) {
	if mp.ModelPackFile == "" {
		return nil, &model.ValidationError{Field: "model_pack", Message: "model pack file is required"}
	}
	if !strings.EqualFold(filepath.Ext(mp.ModelPackFile), ".zip") {
		return nil, &model.ValidationError{Field: "model_pack", Message: "model pack must be a .zip file"}
	}
	pack, err := nlp.LoadModelPack(root.Path(mp.ModelPackFile))
	if err != nil {
		return nil, &model.ValidationError{Field: "model_pack", Message: fmt.Sprintf("failed to load model pack: %v", err)}
	}
	dirRef := nlp.UnpackDir(mp.ModelPackFile)
	if mp.Name == "" {
		mp.Name = strings.TrimSuffix(filepath.Base(mp.ModelPackFile), filepath.Ext(mp.ModelPackFile))
	}

	cdb := &model.ConceptDB{
		Name:           ConceptDBName(mp.Name),
		CDBFile:        path.Join(dirRef, nlp.ModelPackCDBFile),
		UseForTraining: true,
	}
	if err := tx.ConceptDBs().Create(cdb); err != nil {
		return nil, err
	}
	mp.ConceptDBID = &cdb.ID

	if pack.Vocab != nil {
		vocab := &model.Vocabulary{Name: mp.Name + "_vocab", VocabFile: path.Join(dirRef, nlp.ModelPackVocabFile)}
		if err := tx.Vocabs().Create(vocab); err != nil {
			return nil, err
		}
		mp.VocabID = &vocab.ID
	}

	if err := tx.ModelPacks().Create(mp); err != nil {
		return nil, err
	}

	metaIDs := make([]uint, 0, len(pack.MetaCATs))
	mp.MetaCATs = mp.MetaCATs[:0]
	for _, m := range pack.MetaCATs {
		row := &model.MetaCATModel{
			Name:       m.Name,
			MetaCATDir: path.Join(dirRef, filepath.Base(pack.MetaCATDirs[m.Name])),
		}
		if err := tx.MetaCATModels().Create(row); err != nil {
			return nil, err
		}
		metaIDs = append(metaIDs, row.ID)
		mp.MetaCATs = append(mp.MetaCATs, *row)
		if err := ensurePredictedTask(tx, m, row.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.ModelPacks().SetMetaCATs(mp.ID, metaIDs); err != nil {
		return nil, err
	}
	return pack, nil
}

// ensurePredictedTask points the meta task named after the MetaCAT at it,
// adding the MetaCAT values as task options.
func ensurePredictedTask(tx store.Store, m *nlp.MetaCAT, metaCATID uint) error {
	task, err := tx.MetaTasks().GetByName(m.Name)
	if errors.Is(err, store.ErrNotFound) {
		task = &model.MetaTask{Name: m.Name}
		err = tx.MetaTasks().Create(task)
	}
	if err != nil {
		return err
	}

	valueIDs := make([]uint, 0, len(m.Values))
	for _, name := range m.Values {
		v, err := tx.MetaTaskValues().GetOrCreate(name)
		if err != nil {
			return err
		}
		valueIDs = append(valueIDs, v.ID)
		if name == m.Default {
			task.DefaultID = &v.ID
		}
	}
	task.PredictionModelID = &metaCATID
	if err := tx.MetaTasks().Update(task); err != nil {
		return err
	}
	return tx.MetaTasks().SetValues(task.ID, valueIDs)
}

// ConceptDBName derives a valid ConceptDB name from a display name
func ConceptDBName(name string) string {
	clean := strings.Trim(nonNameRgx.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if clean == "" || clean[0] < 'a' || clean[0] > 'z' {
		clean = "cdb_" + clean
	}
	return strings.TrimSuffix(clean, "_")
}

// DeleteModelPack removes the pack, its MetaCAT, ConceptDB and Vocab rows,
// and its zip with the unpacked directory.
func (s *Service) DeleteModelPack(ctx context.Context, id uint) error {
	st := s.store.WithContext(ctx)
	mp, err := st.ModelPacks().GetFull(id)
	if err != nil {
		return err
	}

	err = st.Transaction(func(tx store.Store) error {
		for _, m := range mp.MetaCATs {
			if err := tx.MetaCATModels().Delete(m.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		if err := tx.ModelPacks().Delete(mp.ID); err != nil {
			return err
		}
		if mp.ConceptDBID != nil {
			if _, err := tx.Concepts().DeleteForCDB(*mp.ConceptDBID); err != nil {
				return err
			}
			if err := tx.ConceptDBs().Delete(*mp.ConceptDBID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		if mp.VocabID != nil {
			if err := tx.Vocabs().Delete(*mp.VocabID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.models != nil && mp.ConceptDBID != nil {
		s.models.ClearCachedCDB(*mp.ConceptDBID)
	}
	if err := s.media.Remove(nlp.UnpackDir(mp.ModelPackFile)); err != nil {
		s.logger.Warn("failed to remove model pack dir", zap.Uint("model_pack", id), zap.Error(err))
	}
	if err := s.media.Remove(mp.ModelPackFile); err != nil {
		s.logger.Warn("failed to remove model pack zip", zap.Uint("model_pack", id), zap.Error(err))
	}
	return nil
}

// DeleteConceptDB removes a ConceptDB row, its indexed concepts and its file
func (s *Service) DeleteConceptDB(ctx context.Context, id uint) error {
	st := s.store.WithContext(ctx)
	cdb, err := st.ConceptDBs().Get(id)
	if err != nil {
		return err
	}
	err = st.Transaction(func(tx store.Store) error {
		if _, err := tx.Concepts().DeleteForCDB(id); err != nil {
			return err
		}
		return tx.ConceptDBs().Delete(id)
	})
	if err != nil {
		return err
	}
	if s.models != nil {
		s.models.ClearCachedCDB(id)
	}
	if err := s.media.Remove(cdb.CDBFile); err != nil {
		s.logger.Warn("failed to remove concept db file", zap.Uint("concept_db", id), zap.Error(err))
	}
	return nil
}

// DeleteVocab removes a Vocabulary row and its file
func (s *Service) DeleteVocab(ctx context.Context, id uint) error {
	st := s.store.WithContext(ctx)
	v, err := st.Vocabs().Get(id)
	if err != nil {
		return err
	}
	if err := st.Vocabs().Delete(id); err != nil {
		return err
	}
	if s.models != nil {
		s.models.ClearCachedVocab(id)
	}
	if err := s.media.Remove(v.VocabFile); err != nil {
		s.logger.Warn("failed to remove vocab file", zap.Uint("vocab", id), zap.Error(err))
	}
	return nil
}

// SyncModelPackTasks overwrites the meta tasks of a model pack project
// with the tasks predicted by the pack's MetaCAT models. Projects without
// a model pack are left alone.
func (s *Service) SyncModelPackTasks(ctx context.Context, projectID uint) error {
	st := s.store.WithContext(ctx)
	p, err := st.Projects().Get(projectID)
	if err != nil {
		return err
	}
	if p.ModelPackID == nil {
		return nil
	}
	mp, err := st.ModelPacks().GetFull(*p.ModelPackID)
	if err != nil {
		return err
	}

	var taskIDs []uint
	for _, m := range mp.MetaCATs {
		tasks, _, err := st.MetaTasks().List(store.ListOptions{
			Filters:  map[string]interface{}{"prediction_model_id": m.ID},
			PageSize: 1,
		})
		if err != nil {
			return err
		}
		if len(tasks) > 0 {
			taskIDs = append(taskIDs, tasks[0].ID)
		}
	}
	return st.Projects().SetTasks(p.ID, taskIDs)
}
