package export

import (
	"context"
	"fmt"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// metaChunk bounds the IN lists of meta annotation lookups
const metaChunk = 500

// Options selects what an export carries
type Options struct {
	// WithText keeps the document text
	WithText bool
	// WithDocName keeps the document names
	WithDocName bool
	// AllDocuments exports every dataset document instead of only the
	// validated ones.
	AllDocuments bool
}

// RetrieveProjectData builds the annotation export of the given projects.
// Projects are exported in the order given.
func (s *Service) RetrieveProjectData(ctx context.Context, projectIDs []uint, opts Options) (*Export, error) {
	st := s.store.WithContext(ctx)
	out := &Export{Projects: make([]Project, 0, len(projectIDs))}
	for _, id := range projectIDs {
		p, err := st.Projects().GetFull(id)
		if err != nil {
			return nil, fmt.Errorf("project %d: %w", id, err)
		}
		proj, err := retrieveProject(st, p, opts)
		if err != nil {
			return nil, err
		}
		out.Projects = append(out.Projects, *proj)
	}
	return out, nil
}

func retrieveProject(st store.Store, p *model.Project, opts Options) (*Project, error) {
	var docs []model.Document
	var err error
	if opts.AllDocuments {
		docs, err = st.Documents().ListByDataset(p.DatasetID)
	} else {
		var ids []uint
		ids, err = st.Projects().ValidatedDocumentIDs(p.ID)
		if err == nil {
			docs, err = st.Documents().GetMany(ids)
		}
	}
	if err != nil {
		return nil, err
	}

	annos, err := st.Annotations().ListForProject(p.ID)
	if err != nil {
		return nil, err
	}
	metas, err := metaAnnotations(st, annos)
	if err != nil {
		return nil, err
	}
	byDoc := map[uint][]Annotation{}
	for i := range annos {
		a := &annos[i]
		byDoc[a.DocumentID] = append(byDoc[a.DocumentID], annotation(a, metas[a.ID]))
	}

	proj := &Project{
		Name:      p.Name,
		ID:        p.ID,
		CUIs:      p.CUIs,
		TUIs:      p.TUIs,
		Documents: make([]Document, 0, len(docs)),
	}
	for i := range docs {
		d := &docs[i]
		rels, err := st.EntityRelations().ListForDocument(p.ID, d.ID)
		if err != nil {
			return nil, err
		}
		doc := Document{
			ID:           d.ID,
			LastModified: FormatTime(d.LastModified),
			Annotations:  byDoc[d.ID],
			Relations:    make([]Relation, 0, len(rels)),
		}
		if doc.Annotations == nil {
			doc.Annotations = []Annotation{}
		}
		if opts.WithText {
			doc.Text = d.Text
		}
		if opts.WithDocName {
			doc.Name = d.Name
		}
		for j := range rels {
			doc.Relations = append(doc.Relations, relation(&rels[j]))
		}
		proj.Documents = append(proj.Documents, doc)
	}
	return proj, nil
}

func metaAnnotations(st store.Store, annos []model.AnnotatedEntity) (map[uint]map[string]MetaAnn, error) {
	out := map[uint]map[string]MetaAnn{}
	for start := 0; start < len(annos); start += metaChunk {
		end := start + metaChunk
		if end > len(annos) {
			end = len(annos)
		}
		ids := make([]uint, 0, end-start)
		for _, a := range annos[start:end] {
			ids = append(ids, a.ID)
		}
		metas, err := st.MetaAnnotations().ListForAnnotations(ids)
		if err != nil {
			return nil, err
		}
		for _, m := range metas {
			if m.MetaTask == nil {
				continue
			}
			ma := MetaAnn{Name: m.MetaTask.Name, Acc: m.Acc, Validated: m.Validated}
			if m.MetaTaskValue != nil {
				ma.Value = m.MetaTaskValue.Name
			}
			if out[m.AnnotatedEntityID] == nil {
				out[m.AnnotatedEntityID] = map[string]MetaAnn{}
			}
			out[m.AnnotatedEntityID][m.MetaTask.Name] = ma
		}
	}
	return out, nil
}

func annotation(a *model.AnnotatedEntity, metas map[string]MetaAnn) Annotation {
	if metas == nil {
		metas = map[string]MetaAnn{}
	}
	out := Annotation{
		ID:              a.ID,
		Value:           a.Value,
		Start:           a.StartInd,
		End:             a.EndInd,
		Validated:       a.Validated,
		Correct:         a.Correct,
		Deleted:         a.Deleted,
		Alternative:     a.Alternative,
		Killed:          a.Killed,
		Irrelevant:      a.Irrelevant,
		ManuallyCreated: a.ManuallyCreated,
		Acc:             a.Acc,
		Comment:         a.Comment,
		CreateTime:      FormatTime(a.CreateTime),
		LastModified:    FormatTime(a.LastModified),
		MetaAnns:        metas,
	}
	if a.User != nil {
		out.User = a.User.Username
	}
	if a.Entity != nil {
		out.CUI = a.Entity.Label
	}
	return out
}

func relation(r *model.EntityRelation) Relation {
	out := Relation{
		ID:               r.ID,
		StartEntity:      r.StartEntityID,
		EndEntity:        r.EndEntityID,
		Validated:        r.Validated,
		CreateTime:       FormatTime(r.CreateTime),
		LastModifiedTime: FormatTime(r.LastModified),
	}
	if r.User != nil {
		out.User = r.User.Username
	}
	if r.Relation != nil {
		out.Relation = r.Relation.Label
	}
	if e := r.StartEntity; e != nil {
		out.StartEntityValue = e.Value
		out.StartEntityStartIdx = e.StartInd
		out.StartEntityEndIdx = e.EndInd
		if e.Entity != nil {
			out.StartEntityCUI = e.Entity.Label
		}
	}
	if e := r.EndEntity; e != nil {
		out.EndEntityValue = e.Value
		out.EndEntityStartIdx = e.StartInd
		out.EndEntityEndIdx = e.EndInd
		if e.Entity != nil {
			out.EndEntityCUI = e.Entity.Label
		}
	}
	return out
}
