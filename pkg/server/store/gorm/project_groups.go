package gorm

import (
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Ensure ProjectGroupsStore implements store.ProjectGroupsStore
var _ store.ProjectGroupsStore = (*ProjectGroupsStore)(nil)

// ProjectGroupsStore implements store.ProjectGroupsStore using GORM
type ProjectGroupsStore struct {
	*CRUD[model.ProjectGroup]
	db *gorm.DB
}

// NewProjectGroupsStore creates a new ProjectGroupsStore
func NewProjectGroupsStore(db *gorm.DB) *ProjectGroupsStore {
	return &ProjectGroupsStore{CRUD: NewCRUD[model.ProjectGroup](db), db: db}
}

func byID(db *gorm.DB) *gorm.DB { return db.Order("id") }

// GetFull loads the group with every link table
func (s *ProjectGroupsStore) GetFull(id uint) (*model.ProjectGroup, error) {
	var g model.ProjectGroup
	err := s.db.
		Preload("Administrators", byID).
		Preload("Annotators", byID).
		Preload("Tasks", byID).
		Preload("Relations", byID).
		Preload("CDBSearchFilter", byID).
		First(&g, id).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &g, nil
}

// Projects lists the projects of the group by id
func (s *ProjectGroupsStore) Projects(groupID uint) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.Where("group_id = ?", groupID).Order("id").Find(&projects).Error
	return projects, err
}

func (s *ProjectGroupsStore) SetAdministrators(groupID uint, userIDs []uint) error {
	return replaceJoin(s.db, "project_group_administrators", "project_group_id", groupID, "user_id", userIDs)
}

func (s *ProjectGroupsStore) SetAnnotators(groupID uint, userIDs []uint) error {
	return replaceJoin(s.db, "project_group_annotators", "project_group_id", groupID, "user_id", userIDs)
}

func (s *ProjectGroupsStore) SetTasks(groupID uint, taskIDs []uint) error {
	return replaceJoin(s.db, "project_group_tasks", "project_group_id", groupID, "meta_task_id", taskIDs)
}

func (s *ProjectGroupsStore) SetRelations(groupID uint, relationIDs []uint) error {
	return replaceJoin(s.db, "project_group_relations", "project_group_id", groupID, "relation_id", relationIDs)
}

func (s *ProjectGroupsStore) SetCDBSearchFilter(groupID uint, cdbIDs []uint) error {
	return replaceJoin(s.db, "project_group_cdb_search_filter", "project_group_id", groupID, "concept_db_id", cdbIDs)
}
