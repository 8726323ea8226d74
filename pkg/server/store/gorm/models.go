package gorm

import (
	"strings"

	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

var (
	_ store.ModelPacksStore = (*ModelPacksStore)(nil)
	_ store.ConceptsStore   = (*ConceptsStore)(nil)
)

// ModelPacksStore implements store.ModelPacksStore using GORM
type ModelPacksStore struct {
	*CRUD[model.ModelPack]
	db *gorm.DB
}

// NewModelPacksStore creates a new ModelPacksStore
func NewModelPacksStore(db *gorm.DB) *ModelPacksStore {
	return &ModelPacksStore{CRUD: NewCRUD[model.ModelPack](db, "MetaCATs"), db: db}
}

func (s *ModelPacksStore) GetFull(id uint) (*model.ModelPack, error) {
	var mp model.ModelPack
	err := s.db.Preload("ConceptDB").Preload("Vocab").Preload("MetaCATs").First(&mp, id).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &mp, nil
}

func (s *ModelPacksStore) SetMetaCATs(modelPackID uint, metaCATIDs []uint) error {
	return replaceJoin(s.db, "model_pack_meta_cats", "model_pack_id", modelPackID, "meta_cat_model_id", metaCATIDs)
}

// ConceptsStore implements store.ConceptsStore using GORM
type ConceptsStore struct {
	*CRUD[model.Concept]
	db *gorm.DB
}

// NewConceptsStore creates a new ConceptsStore
func NewConceptsStore(db *gorm.DB) *ConceptsStore {
	return &ConceptsStore{CRUD: NewCRUD[model.Concept](db), db: db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Upsert inserts or refreshes the concept row of (cdb, cui)
func (s *ConceptsStore) Upsert(c *model.Concept) error {
	var existing model.Concept
	err := s.db.Where("cdb_id = ? AND cui = ?", c.CDBID, c.CUI).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return mapErr(s.db.Create(c).Error)
	}
	if err != nil {
		return err
	}
	c.ID = existing.ID
	return mapErr(s.db.Save(c).Error)
}

// ReplaceForCDB swaps the whole index of a CDB
func (s *ConceptsStore) ReplaceForCDB(cdbID uint, concepts []model.Concept) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cdb_id = ?", cdbID).Delete(&model.Concept{}).Error; err != nil {
			return err
		}
		if len(concepts) == 0 {
			return nil
		}
		for i := range concepts {
			concepts[i].CDBID = cdbID
		}
		return tx.CreateInBatches(&concepts, 500).Error
	})
}

func (s *ConceptsStore) DeleteForCDB(cdbID uint) (int64, error) {
	res := s.db.Where("cdb_id = ?", cdbID).Delete(&model.Concept{})
	return res.RowsAffected, res.Error
}

// Search matches a case insensitive prefix of the pretty name or an exact
// CUI, at most limit rows per CDB, keeping the first row of each CUI.
func (s *ConceptsStore) Search(cdbIDs []uint, query string, limit int) ([]model.Concept, error) {
	prefix := likeEscaper.Replace(strings.ToLower(query)) + "%"
	seen := map[string]bool{}
	var out []model.Concept
	for _, cdbID := range cdbIDs {
		var rows []model.Concept
		err := s.db.
			Where(`cdb_id = ? AND (LOWER(pretty_name) LIKE ? ESCAPE '\' OR cui = ?)`, cdbID, prefix, query).
			Order("pretty_name, id").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, c := range rows {
			if seen[c.CUI] {
				continue
			}
			seen[c.CUI] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *ConceptsStore) GetByCUI(cdbID uint, cui string) (*model.Concept, error) {
	var c model.Concept
	if err := s.db.Where("cdb_id = ? AND cui = ?", cdbID, cui).First(&c).Error; err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}
