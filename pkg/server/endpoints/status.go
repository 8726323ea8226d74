package endpoints

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// AuthenticatorsResponse represents the response from /api/authenticators/
type AuthenticatorsResponse struct {
	Installed []string `json:"installed"`
	Enabled   []string `json:"enabled"`
}

// AuthenticatorStatusResponse represents the response from the authenticator status endpoint
type AuthenticatorStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RegisterStatusEndpoints registers the public version and health endpoints
func RegisterStatusEndpoints(s *server.Server) {
	s.Router.HandleFunc("/api/version/", handleVersion()).Methods("GET")
	s.Router.HandleFunc("/api/health/", handleHealth(s.Store)).Methods("GET")
	s.Router.HandleFunc("/api/authenticators/", handleAuthenticators(s.Authenticators)).Methods("GET")
	s.Router.HandleFunc("/api/authenticators/{authenticator}/status/", handleAuthenticatorStatus(s.Store, s.Authenticators)).Methods("GET")
}

func handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"version": server.Version})
	}
}

func handleHealth(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.WithContext(r.Context()).Health().Ping(); err != nil {
			respondWithJSON(w, http.StatusServiceUnavailable, AuthenticatorStatusResponse{
				Status: "error",
				Error:  "database connectivity check failed",
			})
			return
		}
		respondWithJSON(w, http.StatusOK, AuthenticatorStatusResponse{Status: "ok"})
	}
}

func handleAuthenticators(registry *authenticator.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, AuthenticatorsResponse{
			Installed: registry.Installed(),
			Enabled:   registry.Enabled(),
		})
	}
}

func handleAuthenticatorStatus(st store.Store, registry *authenticator.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["authenticator"]

		// Check 1: Database connectivity
		if err := st.WithContext(r.Context()).Health().Ping(); err != nil {
			respondWithJSON(w, http.StatusServiceUnavailable, AuthenticatorStatusResponse{
				Status: "error",
				Error:  "database connectivity check failed",
			})
			return
		}

		// Check 2: Authenticator is installed and enabled
		auth, ok := registry.Get(name)
		if !ok {
			respondWithJSON(w, http.StatusNotFound, AuthenticatorStatusResponse{
				Status: "error",
				Error:  "authenticator is not installed",
			})
			return
		}
		if !registry.IsEnabled(name) {
			respondWithJSON(w, http.StatusNotImplemented, AuthenticatorStatusResponse{
				Status: "error",
				Error:  "authenticator is not enabled",
			})
			return
		}

		// Check 3: The authenticator's own status
		if err := auth.Status(r.Context()); err != nil {
			respondWithJSON(w, http.StatusInternalServerError, AuthenticatorStatusResponse{
				Status: "error",
				Error:  err.Error(),
			})
			return
		}

		respondWithJSON(w, http.StatusOK, AuthenticatorStatusResponse{Status: "ok"})
	}
}
