package endpoints

import (
	"errors"
	"net/http"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

var errForbidden = errors.New("you do not have permission to perform this action")

// requireSuperuser rejects callers that are not administrators
func requireSuperuser(r *http.Request) error {
	if !currentUser(r).IsSuperuser {
		return errForbidden
	}
	return nil
}

// requireProjectAccess allows superusers and members of the project
func requireProjectAccess(st store.Store, r *http.Request, projectID uint) error {
	id := currentUser(r)
	if id.IsSuperuser {
		return nil
	}
	if _, err := st.WithContext(r.Context()).Projects().Get(projectID); err != nil {
		return err
	}
	member, err := st.WithContext(r.Context()).Projects().IsMember(projectID, id.UserID)
	if err != nil {
		return err
	}
	if !member {
		return errForbidden
	}
	return nil
}

// requireProjectsAccess checks requireProjectAccess for every project
func requireProjectsAccess(st store.Store, r *http.Request, projectIDs []uint) error {
	for _, id := range projectIDs {
		if err := requireProjectAccess(st, r, id); err != nil {
			return err
		}
	}
	return nil
}
