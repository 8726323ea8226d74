package store

import "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"

// ProjectGroupsStore abstracts project group storage and its link tables
type ProjectGroupsStore interface {
	CRUDStore[model.ProjectGroup]

	// GetFull loads the group with its administrators, annotators (by
	// id), meta tasks, relations and search filter.
	GetFull(id uint) (*model.ProjectGroup, error)

	// Projects lists the projects of the group by id
	Projects(groupID uint) ([]model.Project, error)

	SetAdministrators(groupID uint, userIDs []uint) error
	SetAnnotators(groupID uint, userIDs []uint) error
	SetTasks(groupID uint, taskIDs []uint) error
	SetRelations(groupID uint, relationIDs []uint) error
	SetCDBSearchFilter(groupID uint, cdbIDs []uint) error
}
