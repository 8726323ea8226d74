package annotation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// NewAnnotation is an annotator-selected span of a document
type NewAnnotation struct {
	ProjectID  uint   `json:"project_id"`
	DocumentID uint   `json:"document_id"`
	CUI        string `json:"cui"`
	// SourceValue is the selected text
	SourceValue string `json:"source_value"`
	// SelectionOccurrence picks which occurrence of SourceValue in the
	// document was selected, counting from zero.
	SelectionOccurrence int `json:"selection_occur_idx"`
}

// NewConcept is a concept an annotator adds to the project model along
// with its first annotation.
type NewConcept struct {
	NewAnnotation
	Name        string   `json:"name"`
	TypeIDs     []string `json:"type_ids"`
	Description string   `json:"description"`
}

// CreateAnnotation stores a manually selected annotation. Manual
// annotations are validated and correct.
func (s *Service) CreateAnnotation(ctx context.Context, userID uint, req NewAnnotation) (*model.AnnotatedEntity, error) {
	p, err := s.project(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	doc, err := s.document(ctx, p, req.DocumentID)
	if err != nil {
		return nil, err
	}
	return s.createAnnotation(ctx, userID, p, doc, req)
}

func (s *Service) createAnnotation(ctx context.Context, userID uint, p *model.Project, doc *model.Document, req NewAnnotation) (*model.AnnotatedEntity, error) {
	if req.CUI == "" {
		return nil, &model.ValidationError{Field: "cui", Message: "cui is required"}
	}
	start, ok := nthIndex(doc.Text, req.SourceValue, req.SelectionOccurrence)
	if !ok {
		return nil, &model.ValidationError{
			Field: "selection_occur_idx",
			Message: fmt.Sprintf("occurrence %d of %q not found in document %d",
				req.SelectionOccurrence, req.SourceValue, doc.ID),
		}
	}

	st := s.store.WithContext(ctx)
	entity, err := st.Entities().GetOrCreate(req.CUI)
	if err != nil {
		return nil, err
	}
	anno := &model.AnnotatedEntity{
		UserID:          userID,
		ProjectID:       p.ID,
		DocumentID:      doc.ID,
		EntityID:        entity.ID,
		Value:           req.SourceValue,
		StartInd:        start,
		EndInd:          start + len(req.SourceValue),
		Acc:             1,
		Validated:       true,
		Correct:         true,
		ManuallyCreated: true,
	}
	if err := st.Annotations().Create(anno); err != nil {
		return nil, err
	}
	anno.Entity = entity
	return anno, nil
}

// nthIndex returns the byte offset of the n-th non-overlapping occurrence
// of sub in text.
func nthIndex(text, sub string, n int) (int, bool) {
	if sub == "" || n < 0 {
		return 0, false
	}
	offset := 0
	for i := 0; ; i++ {
		idx := strings.Index(text[offset:], sub)
		if idx < 0 {
			return 0, false
		}
		if i == n {
			return offset + idx, true
		}
		offset += idx + len(sub)
	}
}

// AddConcept adds a new concept to the project model, trains it on the
// selected text and annotates the selection with it. When the project
// restricts concept lookup to its CUI filter the new CUI joins the filter.
func (s *Service) AddConcept(ctx context.Context, userID uint, req NewConcept) (*model.AnnotatedEntity, error) {
	p, err := s.project(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if !p.AddNewEntities {
		return nil, &model.ValidationError{Field: "project_id", Message: "project does not allow adding new concepts"}
	}
	doc, err := s.document(ctx, p, req.DocumentID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &model.ValidationError{Field: "name", Message: "name is required"}
	}

	cat, err := s.models.GetMedCAT(ctx, p)
	if err != nil {
		return nil, err
	}
	if existing, ok := cat.CDB.Concept(req.CUI); ok {
		return nil, &model.ValidationError{
			Field: "cui",
			Message: fmt.Sprintf("cannot add a concept %q with cui %s, cui already linked to %s",
				name, req.CUI, existing.PrettyName),
		}
	}

	cat.AddConcept(req.CUI, name, name, req.TypeIDs...)
	if req.Description != "" {
		cat.CDB.SetDescription(req.CUI, req.Description)
	}
	cat.TrainPositive(req.CUI, req.SourceValue)

	anno, err := s.createAnnotation(ctx, userID, p, doc, req.NewAnnotation)
	if err != nil {
		return nil, err
	}

	st := s.store.WithContext(ctx)
	if err := upsertConcept(st, p, cat.CDB, req.CUI); err != nil {
		return nil, err
	}
	if (p.CUIs != "" || p.CUIsFile != "") && p.RestrictConceptLookup {
		p.CUIs = strings.Trim(p.CUIs+","+req.CUI, ",")
		if err := st.Projects().Update(p); err != nil {
			return nil, err
		}
	}
	s.logger.Info("added concept",
		zap.Uint("project", p.ID), zap.String("cui", req.CUI), zap.String("name", name))
	return anno, nil
}

// UpdateMetaAnnotation sets the annotator's value of a meta task for an
// annotation, creating the meta annotation when missing.
func (s *Service) UpdateMetaAnnotation(ctx context.Context, projectID, annotationID, taskID, valueID uint) (*model.MetaAnnotation, error) {
	var out *model.MetaAnnotation
	err := s.store.WithContext(ctx).Transaction(func(tx store.Store) error {
		anno, err := tx.Annotations().Get(annotationID)
		if err != nil {
			return fmt.Errorf("annotation %d: %w", annotationID, err)
		}
		if anno.ProjectID != projectID {
			return &model.ValidationError{Field: "annotation_id", Message: "annotation does not belong to the project"}
		}
		task, err := tx.MetaTasks().Get(taskID)
		if err != nil {
			return fmt.Errorf("meta task %d: %w", taskID, err)
		}
		if _, err := tx.MetaTaskValues().Get(valueID); err != nil {
			return fmt.Errorf("meta task value %d: %w", valueID, err)
		}

		meta, err := tx.MetaAnnotations().Find(anno.ID, task.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			meta = &model.MetaAnnotation{AnnotatedEntityID: anno.ID, MetaTaskID: task.ID}
			meta.MetaTaskValueID = &valueID
			meta.Validated = true
			err = tx.MetaAnnotations().Create(meta)
		case err == nil:
			meta.MetaTaskValueID = &valueID
			meta.Validated = true
			err = tx.MetaAnnotations().Update(meta)
		}
		out = meta
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TextEntity is a concept found by AnnotateText
type TextEntity struct {
	Entity   uint    `json:"entity"`
	Value    string  `json:"value"`
	StartInd int     `json:"start_ind"`
	EndInd   int     `json:"end_ind"`
	Acc      float64 `json:"acc"`
}

// AnnotateText runs the project model over free text without storing
// anything. Only concepts already known as entities are reported, and of
// overlapping links only the first is kept. A non-empty cuis list
// restricts the result further.
func (s *Service) AnnotateText(ctx context.Context, projectID uint, text string, cuis []string) ([]TextEntity, error) {
	p, err := s.project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	cat, err := s.models.GetMedCAT(ctx, p)
	if err != nil {
		return nil, err
	}

	allowed := map[string]bool{}
	for _, cui := range cuis {
		allowed[cui] = true
	}

	st := s.store.WithContext(ctx)
	out := []TextEntity{}
	lastEnd := -1
	for _, sp := range cat.Annotate(text) {
		if len(allowed) > 0 && !allowed[sp.CUI] {
			continue
		}
		if sp.Start < lastEnd {
			continue
		}
		found, _, err := st.Entities().List(store.ListOptions{Filters: map[string]interface{}{"label": sp.CUI}})
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			continue
		}
		lastEnd = sp.End
		out = append(out, TextEntity{
			Entity:   found[0].ID,
			Value:    sp.Text,
			StartInd: sp.Start,
			EndInd:   sp.End,
			Acc:      sp.Acc,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartInd < out[j].StartInd })
	return out, nil
}

// ProjectProgress returns validated and total document counts per project
func (s *Service) ProjectProgress(ctx context.Context, projectIDs []uint) (map[uint]store.Progress, error) {
	return s.store.WithContext(ctx).Projects().Progress(projectIDs)
}
