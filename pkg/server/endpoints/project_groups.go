package endpoints

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/projectgroups"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// ProjectGroupResponse is a group with its link tables and member
// projects as id lists
type ProjectGroupResponse struct {
	*model.ProjectGroup
	Administrators  []uint `json:"administrators"`
	Annotators      []uint `json:"annotators"`
	Tasks           []uint `json:"tasks"`
	Relations       []uint `json:"relations"`
	CDBSearchFilter []uint `json:"cdb_search_filter"`
	Projects        []uint `json:"projects"`
}

// RegisterProjectGroupEndpoints registers project group CRUD. Saving a
// group creates or refreshes the projects of its annotators.
func RegisterProjectGroupEndpoints(s *server.Server, api *mux.Router) {
	registerResource(s, api, resource[model.ProjectGroup]{
		path:    "project-groups",
		records: func(st store.Store) store.CRUDStore[model.ProjectGroup] { return st.ProjectGroups() },
		id:      func(v *model.ProjectGroup) *uint { return &v.ID },
		filters: map[string]filter{
			"id":      {"id", filterUint},
			"name":    {"name", filterString},
			"dataset": {"dataset_id", filterUint},
		},
		create: true, update: true, remove: true,
		fresh: func() *model.ProjectGroup { return model.NewProjectGroup("", 0) },
		prepare: func(_ *http.Request, v *model.ProjectGroup) error {
			return v.Validate()
		},
		afterWrite: func(st store.Store, v *model.ProjectGroup, body map[string]interface{}) error {
			links, err := groupLinks(body)
			if err != nil {
				return err
			}
			_, err = s.Groups.Sync(st, v.ID, links)
			return err
		},
		present: presentProjectGroup,
	})
}

func groupLinks(body map[string]interface{}) (projectgroups.Links, error) {
	var links projectgroups.Links
	fields := []struct {
		name string
		ids  *[]uint
	}{
		{"administrators", &links.Administrators},
		{"annotators", &links.Annotators},
		{"tasks", &links.Tasks},
		{"relations", &links.Relations},
		{"cdb_search_filter", &links.CDBSearchFilter},
	}
	for _, f := range fields {
		raw, ok := body[f.name]
		if !ok {
			continue
		}
		ids, err := idsFromJSON(f.name, raw)
		if err != nil {
			return links, err
		}
		if ids == nil {
			ids = []uint{}
		}
		*f.ids = ids
	}
	return links, nil
}

func presentProjectGroup(st store.Store, v *model.ProjectGroup) (interface{}, error) {
	g, err := st.ProjectGroups().GetFull(v.ID)
	if err != nil {
		return nil, err
	}
	projects, err := st.ProjectGroups().Projects(v.ID)
	if err != nil {
		return nil, err
	}
	out := ProjectGroupResponse{
		ProjectGroup:    g,
		Administrators:  make([]uint, 0, len(g.Administrators)),
		Annotators:      make([]uint, 0, len(g.Annotators)),
		Tasks:           make([]uint, 0, len(g.Tasks)),
		Relations:       make([]uint, 0, len(g.Relations)),
		CDBSearchFilter: make([]uint, 0, len(g.CDBSearchFilter)),
		Projects:        make([]uint, 0, len(projects)),
	}
	for _, u := range g.Administrators {
		out.Administrators = append(out.Administrators, u.ID)
	}
	for _, u := range g.Annotators {
		out.Annotators = append(out.Annotators, u.ID)
	}
	for _, t := range g.Tasks {
		out.Tasks = append(out.Tasks, t.ID)
	}
	for _, rel := range g.Relations {
		out.Relations = append(out.Relations, rel.ID)
	}
	for _, cdb := range g.CDBSearchFilter {
		out.CDBSearchFilter = append(out.CDBSearchFilter, cdb.ID)
	}
	for _, p := range projects {
		out.Projects = append(out.Projects, p.ID)
	}
	return out, nil
}
