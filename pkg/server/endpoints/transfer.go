package endpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/audit"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/export"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
)

// RegisterTransferEndpoints registers the annotation and deployment
// export and import endpoints.
func RegisterTransferEndpoints(s *server.Server, api *mux.Router) {
	api.HandleFunc("/download-annos/", handleDownloadAnnotations(s)).Methods("GET")
	api.HandleFunc("/upload-annotations/", handleUploadAnnotations(s)).Methods("POST")
	api.HandleFunc("/download-deployment/", handleDownloadDeployment(s)).Methods("GET")
	api.HandleFunc("/upload-deployment/", handleUploadDeployment(s)).Methods("POST")
}

// exportProjectIDs reads the project_ids query parameter
func exportProjectIDs(r *http.Request) ([]uint, error) {
	ids, err := parseIDList("project_ids", r.URL.Query().Get("project_ids"))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, badRequest("project_ids", "at least one project id is required")
	}
	return ids, nil
}

// uploadBody returns the uploaded file of a multipart request, or the
// request body itself.
func uploadBody(r *http.Request) (io.ReadCloser, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.Body, nil
	}
	f, _, err := uploadedFile(r, "file")
	return f, err
}

func handleDownloadAnnotations(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		event := audit.ExportEvent{Username: user.Username, ClientIP: user.ClientIP(), Kind: audit.KindAnnotations}
		fail := func(err error) {
			event.ErrorMessage = err.Error()
			audit.Log(event)
			respondWithErr(w, s.Logger, err)
		}

		if err := requireSuperuser(r); err != nil {
			fail(err)
			return
		}
		ids, err := exportProjectIDs(r)
		if err != nil {
			fail(err)
			return
		}
		event.ProjectIDs = ids
		opts := export.Options{
			WithText:     queryBool(r, "with_text", true),
			WithDocName:  queryBool(r, "with_doc_name", false),
			AllDocuments: queryBool(r, "all_documents", false),
		}
		exp, err := s.Exports.RetrieveProjectData(r.Context(), ids, opts)
		if err != nil {
			fail(err)
			return
		}
		event.Success = true
		audit.Log(event)

		name := "MedCAT_Export"
		if opts.WithText {
			name += "_With_Text"
		}
		w.Header().Set("Content-Disposition",
			fmt.Sprintf(`attachment; filename="%s_%s.json"`, name, time.Now().UTC().Format("2006-01-02_15-04-05")))
		respondWithJSON(w, http.StatusOK, exp)
	}
}

func handleUploadAnnotations(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		event := audit.ImportEvent{Username: user.Username, ClientIP: user.ClientIP(), Kind: audit.KindAnnotations}
		fail := func(err error) {
			event.ErrorMessage = err.Error()
			audit.Log(event)
			respondWithErr(w, s.Logger, err)
		}

		if err := requireSuperuser(r); err != nil {
			fail(err)
			return
		}
		body, err := uploadBody(r)
		if err != nil {
			fail(err)
			return
		}
		defer body.Close()

		var exp export.Export
		if err := json.NewDecoder(body).Decode(&exp); err != nil {
			fail(badRequest("file", "invalid annotation export: %v", err))
			return
		}
		projects, err := s.Exports.UploadProjectsExport(r.Context(), &exp)
		if err != nil {
			fail(err)
			return
		}
		event.Projects = len(projects)
		event.Success = true
		audit.Log(event)

		ids := make([]uint, 0, len(projects))
		for _, p := range projects {
			ids = append(ids, p.ID)
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"message":  "Data uploaded successfully",
			"projects": ids,
		})
	}
}

func handleDownloadDeployment(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		event := audit.ExportEvent{Username: user.Username, ClientIP: user.ClientIP(), Kind: audit.KindDeployment}
		fail := func(err error) {
			event.ErrorMessage = err.Error()
			audit.Log(event)
			respondWithErr(w, s.Logger, err)
		}

		if err := requireSuperuser(r); err != nil {
			fail(err)
			return
		}
		ids, err := exportProjectIDs(r)
		if err != nil {
			fail(err)
			return
		}
		event.ProjectIDs = ids

		// the archive is staged on disk so a failure can still be reported
		tmp, err := os.CreateTemp("", "deployment-*.tar.gz")
		if err != nil {
			fail(err)
			return
		}
		defer os.Remove(tmp.Name())
		defer tmp.Close()

		manifest, err := s.Deployments.Export(r.Context(), ids, tmp)
		if err != nil {
			fail(err)
			return
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			fail(err)
			return
		}
		event.Success = true
		audit.Log(event)

		name := fmt.Sprintf("medcattrainer_deployment_%s.tar.gz", manifest.ExportedAt.UTC().Format("2006-01-02_15-04-05"))
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
		if _, err := io.Copy(w, tmp); err != nil {
			s.Logger.Warn("failed to send deployment archive", zap.Error(err))
		}
	}
}

func handleUploadDeployment(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		event := audit.ImportEvent{Username: user.Username, ClientIP: user.ClientIP(), Kind: audit.KindDeployment}
		fail := func(err error) {
			event.ErrorMessage = err.Error()
			audit.Log(event)
			respondWithErr(w, s.Logger, err)
		}

		if err := requireSuperuser(r); err != nil {
			fail(err)
			return
		}
		body, err := uploadBody(r)
		if err != nil {
			fail(err)
			return
		}
		defer body.Close()

		summary, err := s.Deployments.Import(r.Context(), body)
		if err != nil {
			fail(err)
			return
		}
		event.Projects = len(summary.Projects)
		event.Success = true
		audit.Log(event)
		respondWithJSON(w, http.StatusOK, summary)
	}
}
