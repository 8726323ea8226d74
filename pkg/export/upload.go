package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/dataset"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// ImportedSuffix is appended to the name of every uploaded project
const ImportedSuffix = " IMPORTED"

// UploadProjectsExport recreates the projects of an export. Each project
// gets a new dataset built from the exported documents, and every
// document is recorded as validated. Annotations and relations of users
// unknown to this deployment are skipped.
func (s *Service) UploadProjectsExport(ctx context.Context, exp *Export) ([]model.Project, error) {
	out := make([]model.Project, 0, len(exp.Projects))
	for i := range exp.Projects {
		p, err := s.uploadProject(ctx, &exp.Projects[i])
		if err != nil {
			return out, fmt.Errorf("failed to import project %q: %w", exp.Projects[i].Name, err)
		}
		s.logger.Info("finished annotation import for project", zap.String("project", exp.Projects[i].Name))
		out = append(out, *p)
	}
	s.logger.Info("finished importing all projects", zap.Int("projects", len(out)))
	return out, nil
}

// uploadRefs collects the labels, tasks and users an exported project
// refers to.
type uploadRefs struct {
	labels    []string
	tasks     map[string][]string
	relations []string
	usernames []string
}

func collectRefs(proj *Project) uploadRefs {
	labels, rels, users := map[string]bool{}, map[string]bool{}, map[string]bool{}
	tasks := map[string]map[string]bool{}
	for _, doc := range proj.Documents {
		for _, anno := range doc.Annotations {
			labels[anno.CUI] = true
			users[anno.User] = true
			for name, meta := range anno.MetaAnns {
				if meta.Name != "" {
					name = meta.Name
				}
				if tasks[name] == nil {
					tasks[name] = map[string]bool{}
				}
				if meta.Value != "" {
					tasks[name][meta.Value] = true
				}
			}
		}
		for _, rel := range doc.Relations {
			rels[rel.Relation] = true
			users[rel.User] = true
		}
	}
	refs := uploadRefs{
		labels:    sortedKeys(labels),
		relations: sortedKeys(rels),
		usernames: sortedKeys(users),
		tasks:     map[string][]string{},
	}
	for name, values := range tasks {
		refs.tasks[name] = sortedKeys(values)
	}
	return refs
}

func (s *Service) uploadProject(ctx context.Context, proj *Project) (*model.Project, error) {
	name := proj.Name + ImportedSuffix
	refs := collectRefs(proj)

	st := s.store.WithContext(ctx)
	users, err := st.Users().ByUsernames(refs.usernames)
	if err != nil {
		return nil, err
	}
	for _, u := range refs.usernames {
		if _, ok := users[u]; !ok {
			s.logger.Warn("username not present in this trainer deployment", zap.String("username", u))
		}
	}

	var written []string
	cleanup := func() {
		for _, ref := range written {
			_ = s.media.Remove(ref)
		}
	}

	p := model.NewProject(name, 0)
	// the threshold applies to the length of the cuis field, not the count
	if len(proj.CUIs) > s.largeCUIList {
		data, err := json.Marshal(splitCUIs(proj.CUIs))
		if err != nil {
			return nil, err
		}
		ref := media.SafeName(name+"_cuis_file") + ".json"
		if _, err := s.media.WriteFile(ref, data); err != nil {
			return nil, err
		}
		written = append(written, ref)
		p.CUIsFile = ref
	} else {
		p.CUIs = proj.CUIs
	}
	p.TUIs = proj.TUIs

	rows := documentRows(proj.Documents)
	var csv bytes.Buffer
	if err := dataset.WriteCSV(&csv, rows); err != nil {
		return nil, err
	}
	dsRef := media.SafeName(name+"_dataset") + ".csv"
	if _, err := s.media.WriteFile(dsRef, csv.Bytes()); err != nil {
		cleanup()
		return nil, err
	}
	written = append(written, dsRef)

	err = st.Transaction(func(tx store.Store) error {
		ds := &model.Dataset{Name: name + "_dataset", OriginalFile: dsRef}
		if err := tx.Datasets().Create(ds); err != nil {
			return err
		}
		docs := dataset.Documents(ds.ID, rows)
		if err := tx.Documents().CreateBatch(docs); err != nil {
			return err
		}

		p.DatasetID = ds.ID
		if err := tx.Projects().Create(p); err != nil {
			return err
		}

		restorer, err := NewRestorer(tx, proj, users, s.logger)
		if err != nil {
			return err
		}
		if err := tx.Projects().SetTasks(p.ID, restorer.TaskIDs()); err != nil {
			return err
		}
		if err := tx.Projects().SetRelations(p.ID, restorer.RelationIDs()); err != nil {
			return err
		}
		memberIDs := make([]uint, 0, len(users))
		for _, u := range users {
			memberIDs = append(memberIDs, u.ID)
		}
		sort.Slice(memberIDs, func(i, j int) bool { return memberIDs[i] < memberIDs[j] })
		if err := tx.Projects().SetMembers(p.ID, memberIDs); err != nil {
			return err
		}

		for i := range docs {
			if err := tx.Projects().MarkValidated(p.ID, docs[i].ID); err != nil {
				return err
			}
			if _, err := restorer.RestoreDocument(p.ID, docs[i].ID, &proj.Documents[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cleanup()
		return nil, err
	}
	return p, nil
}

// documentRows names the dataset rows after the exported documents,
// numbering them when the names clash.
func documentRows(docs []Document) []dataset.Row {
	rows := make([]dataset.Row, len(docs))
	seen := map[string]bool{}
	unique := true
	for i, d := range docs {
		rows[i] = dataset.Row{Name: d.Name, Text: d.Text}
		if seen[d.Name] {
			unique = false
		}
		seen[d.Name] = true
	}
	if !unique {
		for i := range rows {
			rows[i].Name = fmt.Sprintf("%d - %s", i, rows[i].Name)
		}
	}
	return rows
}

type refIDs struct {
	entities  map[string]uint
	tasks     map[string]*model.MetaTask
	relations map[string]uint
}

func (r refIDs) taskIDs() []uint {
	ids := make([]uint, 0, len(r.tasks))
	for _, t := range r.tasks {
		ids = append(ids, t.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ensureRefs creates the entities, meta tasks (with their options) and
// relation labels the project refers to.
func ensureRefs(tx store.Store, refs uploadRefs) (refIDs, error) {
	ids := refIDs{
		entities:  map[string]uint{},
		tasks:     map[string]*model.MetaTask{},
		relations: map[string]uint{},
	}
	for _, label := range refs.labels {
		e, err := tx.Entities().GetOrCreate(label)
		if err != nil {
			return ids, err
		}
		ids.entities[label] = e.ID
	}
	for _, label := range refs.relations {
		r, err := tx.Relations().GetOrCreate(label)
		if err != nil {
			return ids, err
		}
		ids.relations[label] = r.ID
	}
	for name, values := range refs.tasks {
		task, err := ensureTask(tx, name, values)
		if err != nil {
			return ids, err
		}
		ids.tasks[name] = task
	}
	return ids, nil
}

func ensureTask(tx store.Store, name string, values []string) (*model.MetaTask, error) {
	task, err := tx.MetaTasks().GetByName(name)
	if errors.Is(err, store.ErrNotFound) {
		task = &model.MetaTask{Name: name}
		err = tx.MetaTasks().Create(task)
	}
	if err != nil {
		return nil, err
	}

	missing := false
	for _, v := range values {
		if _, ok := task.ValueNamed(v); !ok {
			missing = true
		}
	}
	if !missing {
		return task, nil
	}
	valueIDs := make([]uint, 0, len(task.Values)+len(values))
	for _, v := range task.Values {
		valueIDs = append(valueIDs, v.ID)
	}
	for _, v := range values {
		if _, ok := task.ValueNamed(v); ok {
			continue
		}
		val, err := tx.MetaTaskValues().GetOrCreate(v)
		if err != nil {
			return nil, err
		}
		task.Values = append(task.Values, *val)
		valueIDs = append(valueIDs, val.ID)
	}
	if err := tx.MetaTasks().SetValues(task.ID, valueIDs); err != nil {
		return nil, err
	}
	return task, nil
}

// Restorer recreates exported annotations inside a transaction. It makes
// sure the entities, meta tasks and relation labels an exported project
// refers to exist first.
type Restorer struct {
	tx     store.Store
	ids    refIDs
	users  map[string]model.User
	logger *zap.Logger
}

// NewRestorer prepares the restoration of proj. Annotations of users
// missing from users are skipped.
func NewRestorer(tx store.Store, proj *Project, users map[string]model.User, logger *zap.Logger) (*Restorer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ids, err := ensureRefs(tx, collectRefs(proj))
	if err != nil {
		return nil, err
	}
	return &Restorer{tx: tx, ids: ids, users: users, logger: logger}, nil
}

// RestoreDocument recreates the annotations, meta annotations and
// relations of an exported document on the stored document docID. It
// returns the number of annotations created.
func (r *Restorer) RestoreDocument(projectID, docID uint, in *Document) (int, error) {
	annos := make([]model.AnnotatedEntity, 0, len(in.Annotations))
	sources := make([]*Annotation, 0, len(in.Annotations))
	for i := range in.Annotations {
		a := &in.Annotations[i]
		user, ok := r.users[a.User]
		if !ok {
			continue
		}
		annos = append(annos, model.AnnotatedEntity{
			UserID:          user.ID,
			ProjectID:       projectID,
			DocumentID:      docID,
			EntityID:        r.ids.entities[a.CUI],
			Value:           a.Value,
			StartInd:        a.Start,
			EndInd:          a.End,
			Acc:             a.Acc,
			Comment:         a.Comment,
			Validated:       a.Validated,
			Correct:         a.Correct,
			Alternative:     a.Alternative,
			ManuallyCreated: a.ManuallyCreated,
			Deleted:         a.Deleted,
			Killed:          a.Killed,
			Irrelevant:      a.Irrelevant,
			CreateTime:      ParseTime(a.CreateTime),
			LastModified:    ParseTime(a.LastModified),
		})
		sources = append(sources, a)
	}
	if err := r.tx.Annotations().CreateBatch(annos); err != nil {
		return 0, err
	}

	var metas []model.MetaAnnotation
	byStart := make(map[int]uint, len(annos))
	for i := range annos {
		byStart[annos[i].StartInd] = annos[i].ID
		for key, meta := range sources[i].MetaAnns {
			name := meta.Name
			if name == "" {
				name = key
			}
			task := r.ids.tasks[name]
			if task == nil {
				continue
			}
			m := model.MetaAnnotation{
				AnnotatedEntityID: annos[i].ID,
				MetaTaskID:        task.ID,
				Acc:               meta.Acc,
				Validated:         meta.Validated,
			}
			if v, ok := task.ValueNamed(meta.Value); ok {
				m.MetaTaskValueID = &v.ID
			}
			metas = append(metas, m)
		}
	}
	if err := r.tx.MetaAnnotations().CreateBatch(metas); err != nil {
		return 0, err
	}

	for i := range in.Relations {
		rel := &in.Relations[i]
		user, ok := r.users[rel.User]
		if !ok {
			continue
		}
		start, okStart := byStart[rel.StartEntityStartIdx]
		end, okEnd := byStart[rel.EndEntityStartIdx]
		if !okStart || !okEnd {
			r.logger.Warn("skipping relation with unknown annotation",
				zap.Uint("document", docID), zap.String("relation", rel.Relation))
			continue
		}
		er := &model.EntityRelation{
			UserID:        user.ID,
			ProjectID:     projectID,
			DocumentID:    docID,
			RelationID:    r.ids.relations[rel.Relation],
			StartEntityID: start,
			EndEntityID:   end,
			Validated:     rel.Validated,
			CreateTime:    ParseTime(rel.CreateTime),
			LastModified:  ParseTime(rel.LastModifiedTime),
		}
		if err := r.tx.EntityRelations().Create(er); err != nil {
			return 0, err
		}
	}
	return len(annos), nil
}

// TaskIDs returns the ids of the meta tasks the project refers to
func (r *Restorer) TaskIDs() []uint {
	return r.ids.taskIDs()
}

// RelationIDs returns the ids of the relation labels the project refers to
func (r *Restorer) RelationIDs() []uint {
	return mapValues(r.ids.relations)
}

func splitCUIs(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func mapValues(m map[string]uint) []uint {
	out := make([]uint, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Usernames returns the users that annotated the project, sorted
func (p *Project) Usernames() []string {
	return collectRefs(p).usernames
}
