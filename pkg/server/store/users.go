package store

import "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"

// UsersStore abstracts user account storage
type UsersStore interface {
	CRUDStore[model.User]

	// GetByUsername returns ErrNotFound for unknown usernames
	GetByUsername(username string) (*model.User, error)

	// ByUsernames returns the known users keyed by username
	ByUsernames(usernames []string) (map[string]model.User, error)
}
