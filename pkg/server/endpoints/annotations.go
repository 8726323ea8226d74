package endpoints

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/annotation"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/audit"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
)

type prepareRequest struct {
	ProjectID   uint   `json:"project_id"`
	DocumentIDs []uint `json:"document_ids"`
	Force       bool   `json:"force"`
	Update      bool   `json:"update"`
	// Background queues the work instead of waiting for it
	Background bool `json:"background"`
}

type documentRequest struct {
	ProjectID  uint `json:"project_id"`
	DocumentID uint `json:"document_id"`
}

type metaAnnotationRequest struct {
	ProjectID     uint `json:"project_id"`
	AnnotationID  uint `json:"annotation_id"`
	MetaTaskID    uint `json:"meta_task_id"`
	MetaTaskValue uint `json:"meta_task_value"`
}

type annotateTextRequest struct {
	ProjectID uint     `json:"project_id"`
	Message   string   `json:"message"`
	CUIs      []string `json:"cuis"`
}

// RegisterAnnotationEndpoints registers the annotation workflow endpoints
func RegisterAnnotationEndpoints(s *server.Server, api *mux.Router) {
	api.HandleFunc("/prepare-documents/", handlePrepareDocuments(s)).Methods("POST")
	api.HandleFunc("/add-annotation/", handleAddAnnotation(s)).Methods("POST")
	api.HandleFunc("/add-concept/", handleAddConcept(s)).Methods("POST")
	api.HandleFunc("/submit-document/", handleSubmitDocument(s)).Methods("POST")
	api.HandleFunc("/save-models/", handleSaveModels(s)).Methods("POST")
	api.HandleFunc("/get-create-entity/", handleGetCreateEntity(s)).Methods("POST")
	api.HandleFunc("/update-meta-annotation/", handleUpdateMetaAnnotation(s)).Methods("POST")
	api.HandleFunc("/annotate-text/", handleAnnotateText(s)).Methods("POST")
	api.HandleFunc("/project-progress/", handleProjectProgress(s)).Methods("GET")
}

func handlePrepareDocuments(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req prepareRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if err := requireProjectAccess(s.Store, r, req.ProjectID); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		user := currentUser(r)
		opts := annotation.PrepareOptions{Force: req.Force, Update: req.Update}

		if req.Background {
			task, err := s.Annotations.QueuePrepare(r.Context(), user.UserID, req.ProjectID, req.DocumentIDs, opts)
			if err != nil {
				respondWithErr(w, s.Logger, err)
				return
			}
			respondWithJSON(w, http.StatusAccepted, map[string]string{
				"message": "Documents queued for preparation",
				"task_id": task.ID,
			})
			return
		}

		if err := s.Annotations.PrepareDocuments(r.Context(), user.UserID, req.ProjectID, req.DocumentIDs, opts); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithMessage(w, "Documents prepared successfully")
	}
}

func handleAddAnnotation(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req annotation.NewAnnotation
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if err := requireProjectAccess(s.Store, r, req.ProjectID); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		ann, err := s.Annotations.CreateAnnotation(r.Context(), currentUser(r).UserID, req)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Annotation added successfully",
			"id":      ann.ID,
		})
	}
}

func handleAddConcept(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req annotation.NewConcept
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if err := requireProjectAccess(s.Store, r, req.ProjectID); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		ann, err := s.Annotations.AddConcept(r.Context(), currentUser(r).UserID, req)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"message": "Concept added successfully",
			"id":      ann.ID,
		})
	}
}

func handleSubmitDocument(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req documentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if err := requireProjectAccess(s.Store, r, req.ProjectID); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		user := currentUser(r)
		event := audit.SubmitDocumentEvent{
			Username:   user.Username,
			ClientIP:   user.ClientIP(),
			ProjectID:  req.ProjectID,
			DocumentID: req.DocumentID,
		}
		if p, err := s.Store.WithContext(r.Context()).Projects().Get(req.ProjectID); err == nil {
			event.Trained = p.TrainModelOnSubmit
		}

		if err := s.Annotations.SubmitDocument(r.Context(), req.ProjectID, req.DocumentID); err != nil {
			event.ErrorMessage = err.Error()
			audit.Log(event)
			respondWithErr(w, s.Logger, err)
			return
		}
		event.Success = true
		audit.Log(event)
		respondWithMessage(w, "Document submited successfully")
	}
}

func handleSaveModels(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req documentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if err := requireProjectAccess(s.Store, r, req.ProjectID); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		user := currentUser(r)
		event := audit.SaveModelEvent{Username: user.Username, ClientIP: user.ClientIP(), ProjectID: req.ProjectID}

		if err := s.Annotations.SaveModels(r.Context(), req.ProjectID); err != nil {
			event.ErrorMessage = err.Error()
			audit.Log(event)
			respondWithErr(w, s.Logger, err)
			return
		}
		event.Success = true
		audit.Log(event)
		respondWithMessage(w, "Models saved")
	}
}

func handleGetCreateEntity(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Label string `json:"label"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		label := strings.TrimSpace(req.Label)
		if label == "" {
			respondWithErr(w, s.Logger, badRequest("label", "label is required"))
			return
		}
		ent, err := s.Store.WithContext(r.Context()).Entities().GetOrCreate(label)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]uint{"entity_id": ent.ID})
	}
}

func handleUpdateMetaAnnotation(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req metaAnnotationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if err := requireProjectAccess(s.Store, r, req.ProjectID); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		meta, err := s.Annotations.UpdateMetaAnnotation(r.Context(), req.ProjectID, req.AnnotationID, req.MetaTaskID, req.MetaTaskValue)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"message":            "Meta Annotation added successfully",
			"meta_annotation_id": meta.ID,
		})
	}
}

func handleAnnotateText(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req annotateTextRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if err := requireProjectAccess(s.Store, r, req.ProjectID); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		entities, err := s.Annotations.AnnotateText(r.Context(), req.ProjectID, req.Message, req.CUIs)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		s.Logger.Debug("annotated text", zap.Uint("project", req.ProjectID), zap.Int("entities", len(entities)))
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"message":  req.Message,
			"entities": entities,
		})
	}
}

func handleProjectProgress(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := parseIDList("projects", r.URL.Query().Get("projects"))
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if len(ids) == 0 {
			respondWithErr(w, s.Logger, badRequest("projects", "at least one project id is required"))
			return
		}
		if err := requireProjectsAccess(s.Store, r, ids); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		progress, err := s.Annotations.ProjectProgress(r.Context(), ids)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, progress)
	}
}
