package annotation

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// PrepareOptions controls how existing annotations are treated when
// documents are prepared.
type PrepareOptions struct {
	// Force removes every annotation of the document first
	Force bool `json:"force"`
	// Update removes unvalidated annotations and re-runs the model
	Update bool `json:"update"`
}

// PrepareDocuments runs the project model over documents that have no
// annotations yet and stores the results as annotations of userID. Every
// document is recorded as prepared.
func (s *Service) PrepareDocuments(ctx context.Context, userID, projectID uint, documentIDs []uint, opts PrepareOptions) error {
	p, err := s.project(ctx, projectID)
	if err != nil {
		return err
	}
	filter, err := s.ProjectCUIFilter(p)
	if err != nil {
		return err
	}
	tuis := ProjectTUIFilter(p)
	st := s.store.WithContext(ctx)

	for _, docID := range documentIDs {
		doc, err := s.document(ctx, p, docID)
		if err != nil {
			return err
		}

		switch {
		case opts.Force:
			if err := s.RemoveAnnotations(ctx, doc.ID, p.ID, false); err != nil {
				return err
			}
		case opts.Update:
			if err := s.RemoveAnnotations(ctx, doc.ID, p.ID, true); err != nil {
				return err
			}
		}

		existing, err := st.Annotations().ListForDocument(p.ID, doc.ID)
		if err != nil {
			return err
		}
		if len(existing) == 0 || opts.Update {
			cat, err := s.models.GetMedCAT(ctx, p)
			if err != nil {
				return err
			}
			spans := FilterTypes(cat.Annotate(doc.Text), tuis)
			if _, err := s.AddAnnotations(ctx, userID, p, doc, cat.CDB, spans, filter); err != nil {
				return err
			}
		}

		if err := st.Projects().MarkPrepared(p.ID, doc.ID); err != nil {
			return err
		}
		s.logger.Debug("prepared document",
			zap.Uint("project", p.ID), zap.Uint("document", doc.ID), zap.Int("existing", len(existing)))
	}
	return nil
}

// RemoveAnnotations deletes the annotations of a document in a project.
// With partial only the unvalidated ones go.
func (s *Service) RemoveAnnotations(ctx context.Context, documentID, projectID uint, partial bool) error {
	n, err := s.store.WithContext(ctx).Annotations().DeleteForDocument(projectID, documentID, partial)
	if err != nil {
		return err
	}
	s.logger.Debug("removed annotations",
		zap.Uint("project", projectID), zap.Uint("document", documentID), zap.Int64("count", n))
	return nil
}

// AddAnnotations stores model spans as annotations of a document. Spans
// outside the CUI filter, or overlapping an annotation already stored for
// the document, are dropped; of the remaining spans that overlap each
// other only the longest is kept. Predicted meta annotations are stored
// for the project's meta tasks.
func (s *Service) AddAnnotations(
	ctx context.Context,
	userID uint,
	p *model.Project,
	doc *model.Document,
	cdb *nlp.CDB,
	spans []nlp.Span,
	filter []string,
) ([]model.AnnotatedEntity, error) {
	var created []model.AnnotatedEntity

	err := s.store.WithContext(ctx).Transaction(func(tx store.Store) error {
		existing, err := tx.Annotations().ListForDocument(p.ID, doc.ID)
		if err != nil {
			return err
		}
		selected := SelectSpans(spans, existing, filter)
		if len(selected) == 0 {
			return nil
		}

		entities := map[string]uint{}
		for _, sp := range selected {
			if _, ok := entities[sp.CUI]; ok {
				continue
			}
			e, err := tx.Entities().GetOrCreate(sp.CUI)
			if err != nil {
				return err
			}
			entities[sp.CUI] = e.ID
			if err := upsertConcept(tx, p, cdb, sp.CUI); err != nil {
				return err
			}
		}

		autoValidate := !p.RequireEntityValidation
		created = make([]model.AnnotatedEntity, 0, len(selected))
		for _, sp := range selected {
			created = append(created, model.AnnotatedEntity{
				UserID:     userID,
				ProjectID:  p.ID,
				DocumentID: doc.ID,
				EntityID:   entities[sp.CUI],
				Value:      sp.Text,
				StartInd:   sp.Start,
				EndInd:     sp.End,
				Acc:        sp.Acc,
				Validated:  autoValidate,
				Correct:    autoValidate,
			})
		}
		if err := tx.Annotations().CreateBatch(created); err != nil {
			return err
		}

		metas := predictedMetaAnnotations(p.Tasks, selected, created)
		return tx.MetaAnnotations().CreateBatch(metas)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SelectSpans applies the CUI filter, drops spans overlapping stored
// annotations and resolves overlaps between the remaining spans in favour
// of the longest, then the most accurate, then the earliest. The result is
// ordered by start.
func SelectSpans(spans []nlp.Span, existing []model.AnnotatedEntity, filter []string) []nlp.Span {
	allowed := make(map[string]bool, len(filter))
	for _, cui := range filter {
		allowed[cui] = true
	}

	candidates := make([]nlp.Span, 0, len(spans))
	for _, sp := range spans {
		if len(allowed) > 0 && !allowed[sp.CUI] {
			continue
		}
		if overlapsStored(existing, sp) {
			continue
		}
		candidates = append(candidates, sp)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		if a.Acc != b.Acc {
			return a.Acc > b.Acc
		}
		return a.Start < b.Start
	})

	var kept []nlp.Span
	for _, sp := range candidates {
		clash := false
		for _, k := range kept {
			if sp.Start < k.End && k.Start < sp.End {
				clash = true
				break
			}
		}
		if !clash {
			kept = append(kept, sp)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

func overlapsStored(existing []model.AnnotatedEntity, sp nlp.Span) bool {
	for i := range existing {
		if existing[i].Overlaps(sp.Start, sp.End) {
			return true
		}
	}
	return false
}

// predictedMetaAnnotations pairs each created annotation with the model
// predictions for the project's meta tasks. A task takes the prediction of
// its prediction model, or of the MetaCAT sharing its name.
func predictedMetaAnnotations(tasks []model.MetaTask, spans []nlp.Span, annos []model.AnnotatedEntity) []model.MetaAnnotation {
	var metas []model.MetaAnnotation
	for i, sp := range spans {
		if len(sp.MetaAnns) == 0 {
			continue
		}
		for t := range tasks {
			task := &tasks[t]
			name := task.Name
			if task.PredictionModel != nil {
				name = task.PredictionModel.Name
			}
			pred, ok := sp.MetaAnns[name]
			if !ok {
				continue
			}
			value, ok := task.ValueNamed(pred.Value)
			if !ok {
				continue
			}
			metas = append(metas, model.MetaAnnotation{
				AnnotatedEntityID:        annos[i].ID,
				MetaTaskID:               task.ID,
				MetaTaskValueID:          &value.ID,
				PredictedMetaTaskValueID: &value.ID,
				Acc:                      pred.Confidence,
			})
		}
	}
	return metas
}

// ConceptRow describes a CDB concept as a row of the searchable index
func ConceptRow(cdb *nlp.CDB, cdbID uint, cui string) (model.Concept, bool) {
	info, ok := cdb.Concept(cui)
	if !ok {
		return model.Concept{}, false
	}
	typeNames := make([]string, 0, len(info.TypeIDs))
	for _, id := range info.TypeIDs {
		if name := cdb.TypeName(id); name != "" {
			typeNames = append(typeNames, name)
		}
	}
	pretty := info.PrettyName
	if pretty == "" && len(info.Names) > 0 {
		pretty = info.Names[0]
	}
	return model.Concept{
		CUI:          cui,
		PrettyName:   pretty,
		TypeIDs:      strings.Join(info.TypeIDs, ","),
		SemanticType: strings.Join(typeNames, ","),
		Desc:         info.Description,
		Synonyms:     strings.Join(info.Names, ","),
		CDBID:        cdbID,
	}, true
}

func upsertConcept(tx store.Store, p *model.Project, cdb *nlp.CDB, cui string) error {
	cdbID, ok := conceptDBID(p)
	if !ok {
		return nil
	}
	row, ok := ConceptRow(cdb, cdbID, cui)
	if !ok {
		return nil
	}
	return tx.Concepts().Upsert(&row)
}
