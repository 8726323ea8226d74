package endpoints

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// maxUploadMemory is the part of a multipart upload kept in memory, the
// rest spills to temporary files.
const maxUploadMemory = 32 << 20

// RegisterModelEndpoints registers model file resources and the model
// cache controls.
func RegisterModelEndpoints(s *server.Server, api *mux.Router) {
	registerResource(s, api, resource[model.ConceptDB]{
		path:    "concept-dbs",
		records: func(st store.Store) store.CRUDStore[model.ConceptDB] { return st.ConceptDBs() },
		id:      func(v *model.ConceptDB) *uint { return &v.ID },
		filters: map[string]filter{"id": {"id", filterUint}, "name": {"name", filterString}},
		update:  true, remove: true,
		prepare: func(_ *http.Request, v *model.ConceptDB) error { return v.Validate() },
		destroy: func(r *http.Request, id uint) error { return s.ModelFiles.DeleteConceptDB(r.Context(), id) },
	})
	api.HandleFunc("/concept-dbs/", handleUploadConceptDB(s)).Methods("POST")

	registerResource(s, api, resource[model.Vocabulary]{
		path:    "vocabs",
		records: func(st store.Store) store.CRUDStore[model.Vocabulary] { return st.Vocabs() },
		id:      func(v *model.Vocabulary) *uint { return &v.ID },
		filters: map[string]filter{"id": {"id", filterUint}, "name": {"name", filterString}},
		update:  true, remove: true,
		destroy: func(r *http.Request, id uint) error { return s.ModelFiles.DeleteVocab(r.Context(), id) },
	})
	api.HandleFunc("/vocabs/", handleUploadVocab(s)).Methods("POST")

	registerResource(s, api, resource[model.ModelPack]{
		path:    "model-packs",
		records: func(st store.Store) store.CRUDStore[model.ModelPack] { return st.ModelPacks() },
		id:      func(v *model.ModelPack) *uint { return &v.ID },
		filters: map[string]filter{
			"id":         {"id", filterUint},
			"name":       {"name", filterString},
			"concept_db": {"concept_db_id", filterUint},
			"vocab":      {"vocab_id", filterUint},
		},
		update: true, remove: true,
		destroy: func(r *http.Request, id uint) error { return s.ModelFiles.DeleteModelPack(r.Context(), id) },
	})
	api.HandleFunc("/model-packs/", handleUploadModelPack(s)).Methods("POST")

	api.HandleFunc("/model-loaded/", handleModelLoaded(s)).Methods("GET")
	api.HandleFunc("/cache-model/{project_id}/", handleCacheModel(s)).Methods("GET", "POST")
	api.HandleFunc("/clear-model/{project_id}/", handleClearModel(s)).Methods("GET", "POST")
}

// uploadedFile returns the named file of a multipart request
func uploadedFile(r *http.Request, field string) (io.ReadCloser, string, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, "", badRequest(field, "expected a multipart upload: %v", err)
	}
	f, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", badRequest(field, "%s file is required", field)
	}
	return f, header.Filename, nil
}

// saveUpload stores the named upload under dir of the media root
func saveUpload(s *server.Server, r *http.Request, field, dir string) (string, error) {
	f, name, err := uploadedFile(r, field)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.Media.Save(dir, name, f)
}

func handleUploadConceptDB(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requireSuperuser(r); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		cdb := &model.ConceptDB{UseForTraining: true}
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			respondWithErr(w, s.Logger, badRequest("cdb_file", "expected a multipart upload: %v", err))
			return
		}
		cdb.Name = r.FormValue("name")
		if raw := r.FormValue("use_for_training"); raw != "" {
			cdb.UseForTraining, _ = strconv.ParseBool(raw)
		}
		if err := cdb.Validate(); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		ref, err := saveUpload(s, r, "cdb_file", "cdbs")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		cdb.CDBFile = ref
		if err := s.Store.WithContext(r.Context()).ConceptDBs().Create(cdb); err != nil {
			_ = s.Media.Remove(ref)
			respondWithErr(w, s.Logger, err)
			return
		}
		s.Logger.Info("uploaded concept db", zap.Uint("concept_db", cdb.ID), zap.String("name", cdb.Name))
		respondWithJSON(w, http.StatusCreated, cdb)
	}
}

func handleUploadVocab(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requireSuperuser(r); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		ref, err := saveUpload(s, r, "vocab_file", "vocabs")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		vocab := &model.Vocabulary{Name: r.FormValue("name"), VocabFile: ref}
		if err := s.Store.WithContext(r.Context()).Vocabs().Create(vocab); err != nil {
			_ = s.Media.Remove(ref)
			respondWithErr(w, s.Logger, err)
			return
		}
		s.Logger.Info("uploaded vocab", zap.Uint("vocab", vocab.ID))
		respondWithJSON(w, http.StatusCreated, vocab)
	}
}

func handleUploadModelPack(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requireSuperuser(r); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		ref, err := saveUpload(s, r, "model_pack", "model_packs")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		mp := &model.ModelPack{Name: r.FormValue("name"), ModelPackFile: ref}
		if err := s.ModelFiles.RegisterModelPack(r.Context(), mp); err != nil {
			_ = s.Media.Remove(ref)
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, mp)
	}
}

func handleModelLoaded(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.Store.WithContext(r.Context())
		user := currentUser(r)
		opts := store.ListOptions{}

		var projects []model.Project
		var err error
		if user.IsSuperuser {
			projects, _, err = st.Projects().List(opts)
		} else {
			projects, _, err = st.Projects().ListForUser(user.UserID, opts)
		}
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		states := make(map[uint]bool, len(projects))
		for i := range projects {
			states[projects[i].ID] = s.Models.IsModelLoaded(&projects[i])
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"model_states": states})
	}
}

func handleCacheModel(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := modelProject(s, r)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if _, err := s.Models.GetMedCAT(r.Context(), p); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"result": "Successfully loaded model"})
	}
}

func handleClearModel(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := modelProject(s, r)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		s.Models.ClearCachedMedCAT(p)
		respondWithMessage(w, "Successfully cleared model")
	}
}

func modelProject(s *server.Server, r *http.Request) (*model.Project, error) {
	id, err := pathID(r, "project_id")
	if err != nil {
		return nil, err
	}
	if err := requireProjectAccess(s.Store, r, id); err != nil {
		return nil, err
	}
	return s.Store.WithContext(r.Context()).Projects().GetFull(id)
}
