package endpoints

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

const defaultPageSize = 25

// ListResponse is the paged body of every list endpoint
type ListResponse struct {
	Count   int64       `json:"count"`
	Results interface{} `json:"results"`
}

type filterKind int

const (
	filterUint filterKind = iota
	filterBool
	filterString
)

// filter maps a query parameter to an equality condition on column
type filter struct {
	column string
	kind   filterKind
}

// resource describes a record type served under /api/{path}/
type resource[T any] struct {
	path    string
	records func(store.Store) store.CRUDStore[T]
	id      func(*T) *uint
	filters map[string]filter

	// Allowed write methods. Writes by non superusers need userWrite.
	create, update, remove bool
	userWrite              bool

	// fresh returns the record a create body is decoded over
	fresh func() *T
	// authorize checks the caller may write v
	authorize func(st store.Store, r *http.Request, v *T) error
	// prepare runs before a record is created or updated
	prepare func(r *http.Request, v *T) error
	// present shapes a record for the response
	present func(st store.Store, v *T) (interface{}, error)
	// afterWrite receives the raw body of a create or update
	afterWrite func(st store.Store, v *T, body map[string]interface{}) error
	// destroy replaces the plain row delete
	destroy func(r *http.Request, id uint) error
}

// RegisterResourceEndpoints registers the plain CRUD endpoints
func RegisterResourceEndpoints(s *server.Server, api *mux.Router) {
	registerResource(s, api, resource[model.User]{
		path:    "users",
		records: func(st store.Store) store.CRUDStore[model.User] { return st.Users() },
		id:      func(v *model.User) *uint { return &v.ID },
		filters: map[string]filter{
			"id":       {"id", filterUint},
			"username": {"username", filterString},
		},
	})

	registerResource(s, api, resource[model.Entity]{
		path:      "entities",
		records:   func(st store.Store) store.CRUDStore[model.Entity] { return st.Entities() },
		id:        func(v *model.Entity) *uint { return &v.ID },
		filters:   map[string]filter{"id": {"id", filterUint}, "label": {"label", filterString}},
		create:    true,
		userWrite: true,
		prepare: func(_ *http.Request, v *model.Entity) error {
			if strings.TrimSpace(v.Label) == "" {
				return badRequest("label", "label is required")
			}
			return nil
		},
	})

	registerResource(s, api, resource[model.Document]{
		path:    "documents",
		records: func(st store.Store) store.CRUDStore[model.Document] { return st.Documents() },
		id:      func(v *model.Document) *uint { return &v.ID },
		filters: map[string]filter{
			"id":      {"id", filterUint},
			"name":    {"name", filterString},
			"dataset": {"dataset_id", filterUint},
		},
		create: true, update: true, remove: true,
	})

	registerResource(s, api, resource[model.AnnotatedEntity]{
		path:    "annotated-entities",
		records: func(st store.Store) store.CRUDStore[model.AnnotatedEntity] { return st.Annotations() },
		id:      func(v *model.AnnotatedEntity) *uint { return &v.ID },
		filters: map[string]filter{
			"id":        {"id", filterUint},
			"user":      {"user_id", filterUint},
			"project":   {"project_id", filterUint},
			"document":  {"document_id", filterUint},
			"entity":    {"entity_id", filterUint},
			"validated": {"validated", filterBool},
			"deleted":   {"deleted", filterBool},
		},
		create: true, update: true, remove: true, userWrite: true,
		authorize: func(st store.Store, r *http.Request, v *model.AnnotatedEntity) error {
			return requireProjectAccess(st, r, v.ProjectID)
		},
		prepare: func(r *http.Request, v *model.AnnotatedEntity) error {
			if v.UserID == 0 {
				v.UserID = currentUser(r).UserID
			}
			return nil
		},
	})

	registerResource(s, api, resource[model.MetaAnnotation]{
		path:    "meta-annotations",
		records: func(st store.Store) store.CRUDStore[model.MetaAnnotation] { return st.MetaAnnotations() },
		id:      func(v *model.MetaAnnotation) *uint { return &v.ID },
		filters: map[string]filter{
			"id":               {"id", filterUint},
			"annotated_entity": {"annotated_entity_id", filterUint},
			"meta_task":        {"meta_task_id", filterUint},
			"validated":        {"validated", filterBool},
		},
		create: true, update: true, remove: true, userWrite: true,
		authorize: func(st store.Store, r *http.Request, v *model.MetaAnnotation) error {
			ann, err := st.WithContext(r.Context()).Annotations().Get(v.AnnotatedEntityID)
			if err != nil {
				return err
			}
			return requireProjectAccess(st, r, ann.ProjectID)
		},
	})

	registerResource(s, api, resource[model.MetaTask]{
		path:    "meta-tasks",
		records: func(st store.Store) store.CRUDStore[model.MetaTask] { return st.MetaTasks() },
		id:      func(v *model.MetaTask) *uint { return &v.ID },
		filters: map[string]filter{"id": {"id", filterUint}, "name": {"name", filterString}},
		create:  true, update: true, remove: true,
		present: presentMetaTask,
		afterWrite: func(st store.Store, v *model.MetaTask, body map[string]interface{}) error {
			raw, ok := body["values"]
			if !ok {
				return nil
			}
			ids, err := idsFromJSON("values", raw)
			if err != nil {
				return err
			}
			if err := st.MetaTasks().SetValues(v.ID, ids); err != nil {
				return err
			}
			full, err := st.MetaTasks().Get(v.ID)
			if err != nil {
				return err
			}
			v.Values = full.Values
			return nil
		},
	})

	registerResource(s, api, resource[model.MetaTaskValue]{
		path:    "meta-task-values",
		records: func(st store.Store) store.CRUDStore[model.MetaTaskValue] { return st.MetaTaskValues() },
		id:      func(v *model.MetaTaskValue) *uint { return &v.ID },
		filters: map[string]filter{"id": {"id", filterUint}, "name": {"name", filterString}},
		create:  true, update: true, remove: true,
	})

	registerResource(s, api, resource[model.Relation]{
		path:    "relations",
		records: func(st store.Store) store.CRUDStore[model.Relation] { return st.Relations() },
		id:      func(v *model.Relation) *uint { return &v.ID },
		filters: map[string]filter{"id": {"id", filterUint}, "label": {"label", filterString}},
		create:  true, update: true, remove: true,
	})

	registerResource(s, api, resource[model.EntityRelation]{
		path:    "entity-relations",
		records: func(st store.Store) store.CRUDStore[model.EntityRelation] { return st.EntityRelations() },
		id:      func(v *model.EntityRelation) *uint { return &v.ID },
		filters: map[string]filter{
			"id":        {"id", filterUint},
			"user":      {"user_id", filterUint},
			"project":   {"project_id", filterUint},
			"document":  {"document_id", filterUint},
			"relation":  {"relation_id", filterUint},
			"validated": {"validated", filterBool},
		},
		create: true, update: true, remove: true, userWrite: true,
		authorize: func(st store.Store, r *http.Request, v *model.EntityRelation) error {
			return requireProjectAccess(st, r, v.ProjectID)
		},
		prepare: func(r *http.Request, v *model.EntityRelation) error {
			if v.UserID == 0 {
				v.UserID = currentUser(r).UserID
			}
			return nil
		},
	})

	registerResource(s, api, resource[model.Concept]{
		path:    "concepts",
		records: func(st store.Store) store.CRUDStore[model.Concept] { return st.Concepts() },
		id:      func(v *model.Concept) *uint { return &v.ID },
		filters: map[string]filter{
			"id":  {"id", filterUint},
			"cui": {"cui", filterString},
			"cdb": {"cdb_id", filterUint},
		},
	})
}

// metaTaskResponse lists the option ids next to the task fields
type metaTaskResponse struct {
	*model.MetaTask
	Values []uint `json:"values"`
}

func presentMetaTask(_ store.Store, v *model.MetaTask) (interface{}, error) {
	ids := make([]uint, 0, len(v.Values))
	for _, val := range v.Values {
		ids = append(ids, val.ID)
	}
	return metaTaskResponse{MetaTask: v, Values: ids}, nil
}

func registerResource[T any](s *server.Server, api *mux.Router, res resource[T]) {
	collection := "/" + res.path + "/"
	item := "/" + res.path + "/{id}/"

	api.HandleFunc(collection, handleListRecords(s, res)).Methods("GET")
	api.HandleFunc(item, handleGetRecord(s, res)).Methods("GET")
	if res.create {
		api.HandleFunc(collection, handleCreateRecord(s, res)).Methods("POST")
	}
	if res.update {
		api.HandleFunc(item, handleUpdateRecord(s, res)).Methods("PUT", "PATCH")
	}
	if res.remove {
		api.HandleFunc(item, handleDeleteRecord(s, res)).Methods("DELETE")
	}
}

func handleListRecords[T any](s *server.Server, res resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := listOptions(r, res.filters, s.Config.MaxPageSize)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		st := s.Store.WithContext(r.Context())
		rows, count, err := res.records(st).List(opts)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		results := make([]interface{}, 0, len(rows))
		for i := range rows {
			out, err := presentRecord(st, res, &rows[i])
			if err != nil {
				respondWithErr(w, s.Logger, err)
				return
			}
			results = append(results, out)
		}
		respondWithJSON(w, http.StatusOK, ListResponse{Count: count, Results: results})
	}
}

func handleGetRecord[T any](s *server.Server, res resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		st := s.Store.WithContext(r.Context())
		v, err := res.records(st).Get(id)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		out, err := presentRecord(st, res, v)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, out)
	}
}

func handleCreateRecord[T any](s *server.Server, res resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !res.userWrite {
			if err := requireSuperuser(r); err != nil {
				respondWithErr(w, s.Logger, err)
				return
			}
		}
		body, err := readBody(w, r)
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		v := new(T)
		if res.fresh != nil {
			v = res.fresh()
		}
		if err := body.into(v); err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		*res.id(v) = 0

		var out interface{}
		err = s.Store.WithContext(r.Context()).Transaction(func(tx store.Store) error {
			if err := writeRecord(tx, r, res, v); err != nil {
				return err
			}
			if err := res.records(tx).Create(v); err != nil {
				return err
			}
			if res.afterWrite != nil {
				if err := res.afterWrite(tx, v, body.fields); err != nil {
					return err
				}
			}
			out, err = presentRecord(tx, res, v)
			return err
		})
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		s.Logger.Debug("created record", zap.String("resource", res.path), zap.Uint("id", *res.id(v)))
		respondWithJSON(w, http.StatusCreated, out)
	}
}

func handleUpdateRecord[T any](s *server.Server, res resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !res.userWrite {
			if err := requireSuperuser(r); err != nil {
				respondWithErr(w, s.Logger, err)
				return
			}
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

		var out interface{}
		err = s.Store.WithContext(r.Context()).Transaction(func(tx store.Store) error {
			v, err := res.records(tx).Get(id)
			if err != nil {
				return err
			}
			// the caller must be allowed to touch the stored record as well
			if res.authorize != nil {
				if err := res.authorize(tx, r, v); err != nil {
					return err
				}
			}
			if err := body.into(v); err != nil {
				return err
			}
			*res.id(v) = id
			if err := writeRecord(tx, r, res, v); err != nil {
				return err
			}
			if err := res.records(tx).Update(v); err != nil {
				return err
			}
			if res.afterWrite != nil {
				if err := res.afterWrite(tx, v, body.fields); err != nil {
					return err
				}
			}
			out, err = presentRecord(tx, res, v)
			return err
		})
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		respondWithJSON(w, http.StatusOK, out)
	}
}

func handleDeleteRecord[T any](s *server.Server, res resource[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !res.userWrite {
			if err := requireSuperuser(r); err != nil {
				respondWithErr(w, s.Logger, err)
				return
			}
		}
		id, err := pathID(r, "id")
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		st := s.Store.WithContext(r.Context())
		if res.authorize != nil {
			v, err := res.records(st).Get(id)
			if err != nil {
				respondWithErr(w, s.Logger, err)
				return
			}
			if err := res.authorize(st, r, v); err != nil {
				respondWithErr(w, s.Logger, err)
				return
			}
		}
		if res.destroy != nil {
			err = res.destroy(r, id)
		} else {
			err = res.records(st).Delete(id)
		}
		if err != nil {
			respondWithErr(w, s.Logger, err)
			return
		}
		s.Logger.Debug("deleted record", zap.String("resource", res.path), zap.Uint("id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeRecord[T any](st store.Store, r *http.Request, res resource[T], v *T) error {
	if res.prepare != nil {
		if err := res.prepare(r, v); err != nil {
			return err
		}
	}
	if res.authorize != nil {
		return res.authorize(st, r, v)
	}
	return nil
}

func presentRecord[T any](st store.Store, res resource[T], v *T) (interface{}, error) {
	if res.present == nil {
		return v, nil
	}
	return res.present(st, v)
}

// listOptions reads the declared filters and the page parameters. Page
// sizes above maxPageSize are clamped to it.
func listOptions(r *http.Request, filters map[string]filter, maxPageSize int) (store.ListOptions, error) {
	q := r.URL.Query()
	opts := store.ListOptions{Filters: map[string]interface{}{}, Page: 1, PageSize: defaultPageSize}

	for name, f := range filters {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		switch f.kind {
		case filterUint:
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return opts, badRequest(name, "invalid id %q", raw)
			}
			opts.Filters[f.column] = uint(id)
		case filterBool:
			b, err := strconv.ParseBool(strings.ToLower(raw))
			if err != nil {
				return opts, badRequest(name, "invalid boolean %q", raw)
			}
			opts.Filters[f.column] = b
		default:
			opts.Filters[f.column] = raw
		}
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return opts, badRequest("page", "invalid page %q", raw)
		}
		opts.Page = page
	}
	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return opts, badRequest("page_size", "invalid page size %q", raw)
		}
		opts.PageSize = size
	}
	if maxPageSize > 0 && opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	return opts, nil
}
