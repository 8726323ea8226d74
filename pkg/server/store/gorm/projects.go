package gorm

import (
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Ensure ProjectsStore implements store.ProjectsStore
var _ store.ProjectsStore = (*ProjectsStore)(nil)

// ProjectsStore implements store.ProjectsStore using GORM
type ProjectsStore struct {
	*CRUD[model.Project]
	db *gorm.DB
}

// NewProjectsStore creates a new ProjectsStore
func NewProjectsStore(db *gorm.DB) *ProjectsStore {
	return &ProjectsStore{CRUD: NewCRUD[model.Project](db), db: db}
}

// GetFull loads the project with every association the services need
func (s *ProjectsStore) GetFull(id uint) (*model.Project, error) {
	var p model.Project
	err := s.db.
		Preload("Members").
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("ordering, id") }).
		Preload("Tasks.Values").
		Preload("Tasks.PredictionModel").
		Preload("Relations").
		Preload("CDBSearchFilter").
		Preload("ConceptDB").
		Preload("Vocab").
		Preload("ModelPack").
		Preload("Dataset").
		First(&p, id).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// ListForUser lists only projects the user is a member of
func (s *ProjectsStore) ListForUser(userID uint, opts store.ListOptions) ([]model.Project, int64, error) {
	members := s.db.Table("project_members").Select("project_id").Where("user_id = ?", userID)
	return listPage[model.Project](s.db.Model(&model.Project{}).Where("id IN (?)", members), nil, opts)
}

// ListByStatus lists projects in the given status
func (s *ProjectsStore) ListByStatus(status string) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.Where("project_status = ?", status).Order("id").Find(&projects).Error
	return projects, err
}

// IsMember reports whether the user belongs to the project
func (s *ProjectsStore) IsMember(projectID, userID uint) (bool, error) {
	var count int64
	err := s.db.Table("project_members").
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *ProjectsStore) SetMembers(projectID uint, userIDs []uint) error {
	return replaceJoin(s.db, "project_members", "project_id", projectID, "user_id", userIDs)
}

func (s *ProjectsStore) SetTasks(projectID uint, taskIDs []uint) error {
	return replaceJoin(s.db, "project_tasks", "project_id", projectID, "meta_task_id", taskIDs)
}

func (s *ProjectsStore) SetRelations(projectID uint, relationIDs []uint) error {
	return replaceJoin(s.db, "project_relations", "project_id", projectID, "relation_id", relationIDs)
}

func (s *ProjectsStore) SetCDBSearchFilter(projectID uint, cdbIDs []uint) error {
	return replaceJoin(s.db, "project_cdb_search_filter", "project_id", projectID, "concept_db_id", cdbIDs)
}

func (s *ProjectsStore) MarkValidated(projectID, documentID uint) error {
	return insertJoin(s.db, "project_validated_documents", "project_id", projectID, "document_id", documentID)
}

func (s *ProjectsStore) UnmarkValidated(projectID, documentID uint) error {
	return deleteJoin(s.db, "project_validated_documents", "project_id", projectID, "document_id", documentID)
}

func (s *ProjectsStore) MarkPrepared(projectID, documentID uint) error {
	return insertJoin(s.db, "project_prepared_documents", "project_id", projectID, "document_id", documentID)
}

func (s *ProjectsStore) ValidatedDocumentIDs(projectID uint) ([]uint, error) {
	return pluckJoin(s.db, "project_validated_documents", "project_id", projectID, "document_id")
}

func (s *ProjectsStore) PreparedDocumentIDs(projectID uint) ([]uint, error) {
	return pluckJoin(s.db, "project_prepared_documents", "project_id", projectID, "document_id")
}

// Progress returns validated and total document counts per project
func (s *ProjectsStore) Progress(projectIDs []uint) (map[uint]store.Progress, error) {
	out := map[uint]store.Progress{}
	if len(projectIDs) == 0 {
		return out, nil
	}

	var projects []model.Project
	if err := s.db.Select("id", "dataset_id").Where("id IN ?", projectIDs).Find(&projects).Error; err != nil {
		return nil, err
	}
	for _, p := range projects {
		var prog store.Progress
		if err := s.db.Model(&model.Document{}).Where("dataset_id = ?", p.DatasetID).Count(&prog.Total).Error; err != nil {
			return nil, err
		}
		if err := s.db.Table("project_validated_documents").Where("project_id = ?", p.ID).Count(&prog.Validated).Error; err != nil {
			return nil, err
		}
		out[p.ID] = prog
	}
	return out, nil
}
