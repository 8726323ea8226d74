package store

import "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"

// Progress counts the validated documents of a project
type Progress struct {
	Validated int64 `json:"validated_count"`
	Total     int64 `json:"dataset_count"`
}

// ProjectsStore abstracts project storage and project membership tables
type ProjectsStore interface {
	CRUDStore[model.Project]

	// GetFull loads the project with its members, meta tasks (and their
	// values), relations, search filter and model rows.
	GetFull(id uint) (*model.Project, error)

	// ListForUser lists only projects the user is a member of
	ListForUser(userID uint, opts ListOptions) ([]model.Project, int64, error)

	// ListByStatus lists projects in the given status
	ListByStatus(status string) ([]model.Project, error)

	IsMember(projectID, userID uint) (bool, error)

	SetMembers(projectID uint, userIDs []uint) error
	SetTasks(projectID uint, taskIDs []uint) error
	SetRelations(projectID uint, relationIDs []uint) error
	SetCDBSearchFilter(projectID uint, cdbIDs []uint) error

	MarkValidated(projectID, documentID uint) error
	UnmarkValidated(projectID, documentID uint) error
	MarkPrepared(projectID, documentID uint) error
	ValidatedDocumentIDs(projectID uint) ([]uint, error)
	PreparedDocumentIDs(projectID uint) ([]uint, error)

	// Progress returns validated and total document counts per project
	Progress(projectIDs []uint) (map[uint]Progress, error)
}
