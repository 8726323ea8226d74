package endpoints

import (
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator/authn"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/config"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
)

// TestSecretKey signs the tokens of test servers
var TestSecretKey = []byte("test-secret-key")

// NewTestServer creates a server instance for testing with every endpoint
// registered. The database must already carry the trainer schema.
func NewTestServer(db *gorm.DB, mediaRoot string) (*server.Server, error) {
	cfg := config.NewDefault()
	cfg.MediaRoot = mediaRoot
	cfg.JobWorkers = 1

	s, err := server.NewServer(cfg, server.Options{
		DB:        db,
		SecretKey: TestSecretKey,
		Host:      "127.0.0.1",
		Port:      "0",
	})
	if err != nil {
		return nil, err
	}
	RegisterAll(s)
	return s, nil
}

// SetupTestUser creates a user with the password and returns a token
// issued for them.
func SetupTestUser(s *server.Server, username, password string, superuser bool) (*model.User, string, error) {
	hash, err := authn.HashPassword([]byte(password))
	if err != nil {
		return nil, "", err
	}
	user := &model.User{Username: username, PasswordHash: hash, IsSuperuser: superuser}
	if err := s.Store.Users().Create(user); err != nil {
		return nil, "", err
	}
	token, _, err := s.Tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}
