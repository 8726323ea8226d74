package gorm

import (
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Ensure UsersStore implements store.UsersStore
var _ store.UsersStore = (*UsersStore)(nil)

// UsersStore implements store.UsersStore using GORM
type UsersStore struct {
	*CRUD[model.User]
	db *gorm.DB
}

// NewUsersStore creates a new UsersStore
func NewUsersStore(db *gorm.DB) *UsersStore {
	return &UsersStore{CRUD: NewCRUD[model.User](db), db: db}
}

// GetByUsername returns store.ErrNotFound for unknown usernames
func (s *UsersStore) GetByUsername(username string) (*model.User, error) {
	var u model.User
	if err := s.db.Where("username = ?", username).First(&u).Error; err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// ByUsernames returns the known users keyed by username
func (s *UsersStore) ByUsernames(usernames []string) (map[string]model.User, error) {
	out := map[string]model.User{}
	if len(usernames) == 0 {
		return out, nil
	}
	var users []model.User
	if err := s.db.Where("username IN ?", usernames).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.Username] = u
	}
	return out, nil
}
