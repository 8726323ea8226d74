package endpoints

import (
	"bytes"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/dataset"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

const defaultDatasetDescription = "An API created dataset"

// createDatasetRequest carries a dataset as parallel name and text columns
type createDatasetRequest struct {
	DatasetName string `json:"dataset_name"`
	Description string `json:"description"`
	Dataset     struct {
		Name []string `json:"name"`
		Text []string `json:"text"`
	} `json:"dataset"`
}

// RegisterDatasetEndpoints registers dataset CRUD and JSON dataset creation
func RegisterDatasetEndpoints(s *server.Server, api *mux.Router) {
	// file replacement shares the item route with the JSON update
	api.HandleFunc("/datasets/{id}/", handleReplaceDatasetFile(s)).
		Methods("PUT", "PATCH").
		HeadersRegexp("Content-Type", "^multipart/form-data")
	api.HandleFunc("/datasets/", handleUploadDataset(s)).Methods("POST")

	registerResource(s, api, resource[model.Dataset]{
		path:    "datasets",
		records: func(st store.Store) store.CRUDStore[model.Dataset] { return st.Datasets() },
		id:      func(v *model.Dataset) *uint { return &v.ID },
		filters: map[string]filter{"id": {"id", filterUint}, "name": {"name", filterString}},
		update:  true, remove: true,
		prepare: func(_ *http.Request, v *model.Dataset) error {
			if v.Name == "" {
				return badRequest("name", "name is required")
			}
			return nil
		},
		destroy: func(r *http.Request, id uint) error { return s.Datasets.DeleteDataset(r.Context(), id) },
	})

	api.HandleFunc("/create-dataset/", handleCreateDataset(s)).Methods("POST")
}

func handleUploadDataset(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requireSuperuser(r); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		f, fileName, err := uploadedFile(r, "original_file")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		defer f.Close()

		ds := &model.Dataset{Name: r.FormValue("name"), Description: r.FormValue("description")}
		if _, err := s.Datasets.CreateDataset(r.Context(), ds, fileName, f); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusCreated, ds)
	}
}

func handleReplaceDatasetFile(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requireSuperuser(r); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		id, err := pathID(r, "id")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		f, fileName, err := uploadedFile(r, "original_file")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		defer f.Close()

		ds, err := s.Datasets.ReplaceFile(r.Context(), id, fileName, f)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, ds)
	}
}

func handleCreateDataset(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requireSuperuser(r); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		var req createDatasetRequest
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if len(req.Dataset.Name) != len(req.Dataset.Text) {
			respondWithErr(w, s.Logger, badRequest("dataset", "name and text columns must have the same length"))
			return
		}

		rows := make([]dataset.Row, len(req.Dataset.Name))
		for i := range rows {
			rows[i] = dataset.Row{Name: req.Dataset.Name[i], Text: req.Dataset.Text[i]}
		}
		var buf bytes.Buffer
		if err := dataset.WriteCSV(&buf, rows); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}

		ds := &model.Dataset{Name: req.DatasetName, Description: req.Description}
		if ds.Description == "" {
			ds.Description = defaultDatasetDescription
		}
		if _, err := s.Datasets.CreateDataset(r.Context(), ds, req.DatasetName+".csv", &buf); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]uint{"dataset_id": ds.ID})
	}
}
