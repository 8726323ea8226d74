package deployment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/dataset"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/export"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// Service moves whole projects, with their datasets, models and
// annotations, between trainer deployments.
type Service struct {
	store   store.Store
	media   media.Root
	exports *export.Service
	logger  *zap.Logger
}

// NewService creates a new deployment service
func NewService(st store.Store, root media.Root, exports *export.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, media: root, exports: exports, logger: logger}
}

// Export writes the projects, every row they depend on and their
// annotations to w as a gzipped tarball.
func (s *Service) Export(ctx context.Context, projectIDs []uint, w io.Writer) (*Manifest, error) {
	if len(projectIDs) == 0 {
		return nil, &model.ValidationError{Field: "project_ids", Message: "at least one project is required"}
	}
	st := s.store.WithContext(ctx)
	e := &exporter{
		st:       st,
		media:    s.media,
		bundle:   newBundleWriter(w),
		manifest: &Manifest{Version: FormatVersion, ExportedAt: time.Now().UTC()},
		cdbs:     map[uint]bool{},
		vocabs:   map[uint]bool{},
		packs:    map[uint]bool{},
		datasets: map[uint]bool{},
		tasks:    map[string]bool{},
		rels:     map[string]bool{},
	}

	for _, id := range projectIDs {
		if err := e.addProject(id); err != nil {
			return nil, err
		}
	}
	if err := e.writeModels(); err != nil {
		return nil, err
	}
	if err := e.writeDatasets(); err != nil {
		return nil, err
	}
	sort.Strings(e.manifest.Relations)

	annos, err := s.exports.RetrieveProjectData(ctx, projectIDs, export.Options{
		WithText:     false,
		WithDocName:  true,
		AllDocuments: true,
	})
	if err != nil {
		return nil, err
	}

	if err := e.bundle.writeJSON(ManifestFile, e.manifest); err != nil {
		return nil, err
	}
	if err := e.bundle.writeJSON(AnnotationsFile, annos); err != nil {
		return nil, err
	}
	if err := e.bundle.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish deployment archive: %w", err)
	}
	s.logger.Info("exported deployment",
		zap.Int("projects", len(e.manifest.Projects)),
		zap.Int("datasets", len(e.manifest.Datasets)),
		zap.Int("model_packs", len(e.manifest.ModelPacks)),
		zap.Int("annotations", annos.AnnotationCount()))
	return e.manifest, nil
}

type exporter struct {
	st       store.Store
	media    media.Root
	bundle   *bundleWriter
	manifest *Manifest

	cdbs, vocabs, packs, datasets map[uint]bool
	tasks, rels                   map[string]bool
}

func (e *exporter) addProject(id uint) error {
	p, err := e.st.Projects().GetFull(id)
	if err != nil {
		return fmt.Errorf("project %d: %w", id, err)
	}
	validated, err := e.st.Projects().ValidatedDocumentIDs(id)
	if err != nil {
		return err
	}
	prepared, err := e.st.Projects().PreparedDocumentIDs(id)
	if err != nil {
		return err
	}

	out := Project{
		Project:            *p,
		Members:            make([]string, 0, len(p.Members)),
		Tasks:              make([]string, 0, len(p.Tasks)),
		RelationLabels:     make([]string, 0, len(p.Relations)),
		CDBSearchFilter:    make([]uint, 0, len(p.CDBSearchFilter)),
		ValidatedDocuments: validated,
		PreparedDocuments:  prepared,
	}
	// Associations travel in the named fields only
	out.Project.Members, out.Project.Tasks, out.Project.Relations = nil, nil, nil
	out.Project.CDBSearchFilter, out.Project.ValidatedDocuments, out.Project.PreparedDocuments = nil, nil, nil
	out.Project.Dataset, out.Project.ConceptDB, out.Project.Vocab, out.Project.ModelPack = nil, nil, nil, nil

	for _, m := range p.Members {
		out.Members = append(out.Members, m.Username)
	}
	for i := range p.Tasks {
		t := &p.Tasks[i]
		out.Tasks = append(out.Tasks, t.Name)
		e.addTask(t)
	}
	for _, r := range p.Relations {
		out.RelationLabels = append(out.RelationLabels, r.Label)
		e.addRelation(r.Label)
	}
	for _, c := range p.CDBSearchFilter {
		out.CDBSearchFilter = append(out.CDBSearchFilter, c.ID)
		e.cdbs[c.ID] = true
	}
	if p.ConceptDBID != nil {
		e.cdbs[*p.ConceptDBID] = true
	}
	if p.VocabID != nil {
		e.vocabs[*p.VocabID] = true
	}
	if p.ModelPackID != nil {
		e.packs[*p.ModelPackID] = true
	}
	e.datasets[p.DatasetID] = true

	if p.CUIsFile != "" {
		out.CUIsArchiveFile = archivePath("cuis", p.ID, p.CUIsFile)
		if err := e.bundle.writeFile(out.CUIsArchiveFile, e.media.Path(p.CUIsFile)); err != nil {
			return fmt.Errorf("failed to export cuis file of project %d: %w", p.ID, err)
		}
	}
	e.manifest.Projects = append(e.manifest.Projects, out)
	return nil
}

func (e *exporter) addTask(t *model.MetaTask) {
	if e.tasks[t.Name] {
		return
	}
	e.tasks[t.Name] = true
	mt := MetaTask{
		Name:        t.Name,
		Values:      make([]string, 0, len(t.Values)),
		Description: t.Description,
		Ordering:    t.Ordering,
	}
	for _, v := range t.Values {
		mt.Values = append(mt.Values, v.Name)
		if t.DefaultID != nil && *t.DefaultID == v.ID {
			mt.Default = v.Name
		}
	}
	if t.PredictionModel != nil {
		mt.PredictionModel = t.PredictionModel.Name
	}
	e.manifest.MetaTasks = append(e.manifest.MetaTasks, mt)
}

func (e *exporter) addRelation(label string) {
	if !e.rels[label] {
		e.rels[label] = true
		e.manifest.Relations = append(e.manifest.Relations, label)
	}
}

// writeModels archives the model packs first so that the CDB and Vocab
// rows they own are not exported a second time as standalone files.
func (e *exporter) writeModels() error {
	owned := map[uint]bool{}
	ownedVocabs := map[uint]bool{}
	for _, id := range sortedIDs(e.packs) {
		mp, err := e.st.ModelPacks().GetFull(id)
		if err != nil {
			return fmt.Errorf("model pack %d: %w", id, err)
		}
		entry := ModelPack{
			ID:        mp.ID,
			Name:      mp.Name,
			File:      archivePath("model_packs", mp.ID, mp.ModelPackFile),
			ConceptDB: mp.ConceptDBID,
			Vocab:     mp.VocabID,
		}
		for _, m := range mp.MetaCATs {
			entry.MetaCATs = append(entry.MetaCATs, m.Name)
		}
		if mp.ConceptDBID != nil {
			owned[*mp.ConceptDBID] = true
		}
		if mp.VocabID != nil {
			ownedVocabs[*mp.VocabID] = true
		}
		if err := e.bundle.writeFile(entry.File, e.media.Path(mp.ModelPackFile)); err != nil {
			return fmt.Errorf("failed to export model pack %d: %w", id, err)
		}
		e.manifest.ModelPacks = append(e.manifest.ModelPacks, entry)
	}

	for _, id := range sortedIDs(e.cdbs) {
		if owned[id] {
			continue
		}
		cdb, err := e.st.ConceptDBs().Get(id)
		if err != nil {
			return fmt.Errorf("concept db %d: %w", id, err)
		}
		entry := ConceptDB{
			ID:             cdb.ID,
			Name:           cdb.Name,
			File:           archivePath("cdbs", cdb.ID, cdb.CDBFile),
			UseForTraining: cdb.UseForTraining,
		}
		if err := e.bundle.writeFile(entry.File, e.media.Path(cdb.CDBFile)); err != nil {
			return fmt.Errorf("failed to export concept db %d: %w", id, err)
		}
		e.manifest.ConceptDBs = append(e.manifest.ConceptDBs, entry)
	}

	for _, id := range sortedIDs(e.vocabs) {
		if ownedVocabs[id] {
			continue
		}
		v, err := e.st.Vocabs().Get(id)
		if err != nil {
			return fmt.Errorf("vocab %d: %w", id, err)
		}
		entry := Vocab{ID: v.ID, Name: v.Name, File: archivePath("vocabs", v.ID, v.VocabFile)}
		if err := e.bundle.writeFile(entry.File, e.media.Path(v.VocabFile)); err != nil {
			return fmt.Errorf("failed to export vocab %d: %w", id, err)
		}
		e.manifest.Vocabs = append(e.manifest.Vocabs, entry)
	}
	return nil
}

// writeDatasets writes each dataset as a csv rebuilt from its stored
// documents, which may differ from the uploaded file.
func (e *exporter) writeDatasets() error {
	for _, id := range sortedIDs(e.datasets) {
		ds, err := e.st.Datasets().Get(id)
		if err != nil {
			return fmt.Errorf("dataset %d: %w", id, err)
		}
		docs, err := e.st.Documents().ListByDataset(id)
		if err != nil {
			return err
		}
		entry := Dataset{
			ID:          ds.ID,
			Name:        ds.Name,
			Description: ds.Description,
			File:        path.Join(filesDir, "datasets", fmt.Sprintf("%d.csv", ds.ID)),
			DocumentIDs: make([]uint, 0, len(docs)),
		}
		rows := make([]dataset.Row, 0, len(docs))
		for _, d := range docs {
			rows = append(rows, dataset.Row{Name: d.Name, Text: d.Text})
			entry.DocumentIDs = append(entry.DocumentIDs, d.ID)
		}
		var buf bytes.Buffer
		if err := dataset.WriteCSV(&buf, rows); err != nil {
			return err
		}
		if err := e.bundle.writeBytes(entry.File, buf.Bytes()); err != nil {
			return err
		}
		e.manifest.Datasets = append(e.manifest.Datasets, entry)
	}
	return nil
}

func sortedIDs(set map[uint]bool) []uint {
	ids := make([]uint, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
