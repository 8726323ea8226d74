// Package dbtest opens throwaway in-memory SQLite databases carrying the
// trainer schema, for store and service unit tests.
package dbtest

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
)

// New returns a migrated database private to the test
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedUser inserts a user with the given name
func SeedUser(t testing.TB, db *gorm.DB, username string, superuser bool) *model.User {
	t.Helper()
	u := &model.User{Username: username, PasswordHash: "x", IsSuperuser: superuser}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedDataset inserts a dataset holding one document per text, named doc0..docN
func SeedDataset(t testing.TB, db *gorm.DB, name string, texts ...string) (*model.Dataset, []model.Document) {
	t.Helper()
	ds := &model.Dataset{Name: name}
	if err := db.Create(ds).Error; err != nil {
		t.Fatalf("seed dataset: %v", err)
	}
	docs := make([]model.Document, 0, len(texts))
	for i, text := range texts {
		docs = append(docs, model.Document{Name: "doc" + strconv.Itoa(i), Text: text, DatasetID: ds.ID})
	}
	if len(docs) > 0 {
		if err := db.Create(&docs).Error; err != nil {
			t.Fatalf("seed documents: %v", err)
		}
	}
	return ds, docs
}

// SeedConceptDB saves cdb under dir and inserts a ConceptDB row for it
func SeedConceptDB(t testing.TB, db *gorm.DB, dir, name string, cdb *nlp.CDB) *model.ConceptDB {
	t.Helper()
	path := filepath.Join(dir, name+".dat")
	if err := cdb.Save(path); err != nil {
		t.Fatalf("save cdb: %v", err)
	}
	row := &model.ConceptDB{Name: name, CDBFile: path, UseForTraining: true}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed concept db: %v", err)
	}
	return row
}

// SeedVocab saves vocab under dir and inserts a Vocabulary row for it
func SeedVocab(t testing.TB, db *gorm.DB, dir, name string, vocab *nlp.Vocab) *model.Vocabulary {
	t.Helper()
	path := filepath.Join(dir, name+".dat")
	if err := vocab.Save(path); err != nil {
		t.Fatalf("save vocab: %v", err)
	}
	row := &model.Vocabulary{Name: name, VocabFile: path}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("seed vocab: %v", err)
	}
	return row
}

// SeedProject inserts a project over the dataset using the CDB and Vocab
func SeedProject(t testing.TB, db *gorm.DB, name string, datasetID, cdbID, vocabID uint) *model.Project {
	t.Helper()
	p := model.NewProject(name, datasetID)
	p.ConceptDBID = &cdbID
	p.VocabID = &vocabID
	if err := db.Omit(clause.Associations).Create(p).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return p
}
