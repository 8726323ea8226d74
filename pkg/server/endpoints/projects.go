package endpoints

import (
	"bytes"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"
	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// annoConfPrefix marks environment variables exposed to the annotation UI
const annoConfPrefix = "ANNO_TOOL_CONF_"

var projectFilters = map[string]filter{
	"id":                        {"id", filterUint},
	"name":                      {"name", filterString},
	"dataset":                   {"dataset_id", filterUint},
	"project_status":            {"project_status", filterString},
	"project_locked":            {"project_locked", filterBool},
	"annotation_classification": {"annotation_classification", filterBool},
	"concept_db":                {"concept_db_id", filterUint},
	"vocab":                     {"vocab_id", filterUint},
	"model_pack":                {"model_pack_id", filterUint},
}

// ProjectResponse is a project with its membership tables as id lists
type ProjectResponse struct {
	*model.Project
	DescriptionHTML string `json:"description_html"`
	Members         []uint `json:"members"`
	Tasks           []uint `json:"tasks"`
	Relations       []uint `json:"relations"`
	CDBSearchFilter []uint `json:"cdb_search_filter"`
}

// RegisterProjectEndpoints registers project CRUD and the UI configuration
func RegisterProjectEndpoints(s *server.Server, api *mux.Router) {
	api.HandleFunc("/project-annotate-entities/", handleListProjects(s)).Methods("GET")
	api.HandleFunc("/project-annotate-entities/", handleCreateProject(s)).Methods("POST")
	api.HandleFunc("/project-annotate-entities/{id}/", handleGetProject(s)).Methods("GET")
	api.HandleFunc("/project-annotate-entities/{id}/", handleUpdateProject(s)).Methods("PUT", "PATCH")
	api.HandleFunc("/project-annotate-entities/{id}/", handleDeleteProject(s)).Methods("DELETE")

	api.HandleFunc("/anno-conf/", handleAnnoConf()).Methods("GET")
}

func handleListProjects(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := listOptions(r, projectFilters, s.Config.MaxPageSize)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		st := s.Store.WithContext(r.Context())
		user := currentUser(r)

		var projects []model.Project
		var count int64
		if user.IsSuperuser {
			projects, count, err = st.Projects().List(opts)
		} else {
			projects, count, err = st.Projects().ListForUser(user.UserID, opts)
		}
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}

		results := make([]ProjectResponse, 0, len(projects))
		for _, p := range projects {
			full, err := st.Projects().GetFull(p.ID)
			if err != nil {
				respondWithErr(w, s.Logger, err)
				return
			}
			results = append(results, presentProject(full))
		}
		respondWithJSON(w, http.StatusOK, ListResponse{Count: count, Results: results})
	}
}

func handleGetProject(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if err := requireProjectAccess(s.Store, r, id); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		p, err := s.Store.WithContext(r.Context()).Projects().GetFull(id)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, presentProject(p))
	}
}

func handleCreateProject(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requireSuperuser(r); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		p := model.NewProject("", 0)
		if err := body.into(p); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		p.ID = 0

		out, err := saveProject(s, r, p, body, true)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		s.Logger.Info("created project", zap.Uint("project", p.ID), zap.String("name", p.Name))
		respondWithJSON(w, http.StatusCreated, out)
	}
}

func handleUpdateProject(s *server.Server) http.HandlerFunc {
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
		body, err := readBody(w, r)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		p, err := s.Store.WithContext(r.Context()).Projects().Get(id)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		if err := body.into(p); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		p.ID = id

		out, err := saveProject(s, r, p, body, false)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, out)
	}
}

// saveProject writes the project row and the membership tables named in
// the body, then lines up the meta tasks of model pack projects.
func saveProject(s *server.Server, r *http.Request, p *model.Project, body *jsonBody, create bool) (*ProjectResponse, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	err := s.Store.WithContext(r.Context()).Transaction(func(tx store.Store) error {
		var err error
		if create {
			err = tx.Projects().Create(p)
		} else {
			err = tx.Projects().Update(p)
		}
		if err != nil {
			return err
		}
		return setProjectLinks(tx, p.ID, body.fields)
	})
	if err != nil {
		return nil, err
	}
	if _, ok := body.fields["tasks"]; !ok || create {
		if err := s.ModelFiles.SyncModelPackTasks(r.Context(), p.ID); err != nil {
			return nil, err
		}
	}
	full, err := s.Store.WithContext(r.Context()).Projects().GetFull(p.ID)
	if err != nil {
		return nil, err
	}
	out := presentProject(full)
	return &out, nil
}

func setProjectLinks(tx store.Store, projectID uint, fields map[string]interface{}) error {
	links := []struct {
		field string
		set   func(uint, []uint) error
	}{
		{"members", tx.Projects().SetMembers},
		{"tasks", tx.Projects().SetTasks},
		{"relations", tx.Projects().SetRelations},
		{"cdb_search_filter", tx.Projects().SetCDBSearchFilter},
	}
	for _, link := range links {
		raw, ok := fields[link.field]
		if !ok {
			continue
		}
		ids, err := idsFromJSON(link.field, raw)
		if err != nil {
			return err
		}
		if err := link.set(projectID, ids); err != nil {
			return err
		}
	}
	return nil
}

func handleDeleteProject(s *server.Server) http.HandlerFunc {
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
		if err := s.Store.WithContext(r.Context()).Projects().Delete(id); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		s.Logger.Info("deleted project", zap.Uint("project", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

func presentProject(p *model.Project) ProjectResponse {
	out := ProjectResponse{
		Project:         p,
		DescriptionHTML: renderMarkdown(p.Description),
		Members:         p.MemberIDs(),
		Tasks:           make([]uint, 0, len(p.Tasks)),
		Relations:       make([]uint, 0, len(p.Relations)),
		CDBSearchFilter: make([]uint, 0, len(p.CDBSearchFilter)),
	}
	for _, t := range p.Tasks {
		out.Tasks = append(out.Tasks, t.ID)
	}
	for _, rel := range p.Relations {
		out.Relations = append(out.Relations, rel.ID)
	}
	for _, cdb := range p.CDBSearchFilter {
		out.CDBSearchFilter = append(out.CDBSearchFilter, cdb.ID)
	}
	return out
}

// renderMarkdown renders a project description for the annotation UI.
// Raw HTML in the source is not passed through.
func renderMarkdown(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return ""
	}
	return buf.String()
}

func handleAnnoConf() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conf := map[string]string{}
		for _, kv := range os.Environ() {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || !strings.HasPrefix(key, annoConfPrefix) {
				continue
			}
			conf[strings.TrimPrefix(key, annoConfPrefix)] = value
		}
		respondWithJSON(w, http.StatusOK, conf)
	}
}
