package endpoints

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
)

type cdbRequest struct {
	CDBID uint     `json:"cdb_id"`
	CUIs  []string `json:"cuis"`
}

// RegisterConceptEndpoints registers concept search and hierarchy browsing
func RegisterConceptEndpoints(s *server.Server, api *mux.Router) {
	api.HandleFunc("/search-concepts/", handleSearchConcepts(s)).Methods("GET")
	api.HandleFunc("/import-cdb-concepts/", handleImportConcepts(s)).Methods("POST")
	api.HandleFunc("/concept-db-search-index-created/", handleIndexCreated(s)).Methods("GET")
	api.HandleFunc("/model-concept-children/{cdb_id}/", handleConceptChildren(s)).Methods("GET")
	api.HandleFunc("/concept-path/", handleConceptPath(s)).Methods("GET")
	api.HandleFunc("/generate-concept-filter/", handleGenerateConceptFilter(s)).Methods("POST")
	api.HandleFunc("/generate-concept-filter-json/", handleGenerateConceptFilterFile(s)).Methods("POST")
}

func handleSearchConcepts(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cdbIDs, err := parseIDList("cdbs", r.URL.Query().Get("cdbs"))
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		results, err := s.Concepts.Search(r.Context(), cdbIDs, r.URL.Query().Get("search"))
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"results": results})
	}
}

func handleImportConcepts(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requireSuperuser(r); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		var req cdbRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		task, err := s.Concepts.QueueImport(r.Context(), req.CDBID)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusAccepted, map[string]string{
			"message": "Concept import queued",
			"task_id": task.ID,
		})
	}
}

func handleIndexCreated(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cdbIDs, err := parseIDList("cdbs", r.URL.Query().Get("cdbs"))
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		available, err := s.Concepts.IndexAvailable(r.Context(), cdbIDs)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"results": available})
	}
}

func handleConceptChildren(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cdbID, err := pathID(r, "cdb_id")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		cui := strings.TrimSpace(r.URL.Query().Get("parent_cui"))
		nodes, err := s.Concepts.Children(r.Context(), cdbID, cui)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"results": nodes})
	}
}

func handleConceptPath(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := parseIDList("cdb_id", r.URL.Query().Get("cdb_id"))
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		cui := strings.TrimSpace(r.URL.Query().Get("cui"))
		if len(ids) != 1 || cui == "" {
			respondWithErr(w, s.Logger, badRequest("cui", "cdb_id and cui are required"))
			return
		}
		path, err := s.Concepts.ConceptPath(r.Context(), ids[0], cui)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"results": path})
	}
}

func handleGenerateConceptFilter(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cdbRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		filter, err := s.Concepts.GenerateConceptFilter(r.Context(), req.CDBID, req.CUIs)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"filter_len": len(filter),
			"filter":     filter,
		})
	}
}

// handleGenerateConceptFilterFile returns the expanded filter as a JSON
// file that can be uploaded as a project cuis file.
func handleGenerateConceptFilterFile(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cdbRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		filter, err := s.Concepts.GenerateConceptFilter(r.Context(), req.CDBID, req.CUIs)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="filter.json"`)
		respondWithJSON(w, http.StatusOK, filter)
	}
}
