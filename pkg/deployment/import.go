package deployment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/dataset"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/export"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/modelfiles"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// StagingDir is the media directory archives are extracted under
const StagingDir = "deployments"

// Import extracts a deployment archive under the media root and recreates
// its rows with new ids in one transaction. Members are resolved by
// username and annotations of unknown users are skipped. Nothing is kept
// if any part fails.
func (s *Service) Import(ctx context.Context, r io.Reader) (*ImportSummary, error) {
	dirRef := path.Join(StagingDir, uuid.NewString()[:8])
	dir := s.media.Path(dirRef)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create deployment directory: %w", err)
	}

	summary, err := s.importDir(ctx, r, dirRef)
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			s.logger.Warn("failed to remove deployment directory", zap.String("dir", dir), zap.Error(rmErr))
		}
		return nil, err
	}
	s.logger.Info("imported deployment",
		zap.String("dir", dirRef),
		zap.Int("projects", len(summary.Projects)),
		zap.Int("documents", summary.Documents),
		zap.Int("annotations", summary.Annotations))
	return summary, nil
}

func (s *Service) importDir(ctx context.Context, r io.Reader, dirRef string) (*ImportSummary, error) {
	dir := s.media.Path(dirRef)
	if _, err := extract(r, dir); err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &manifest); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ManifestFile, err)
	}
	if manifest.Version != FormatVersion {
		return nil, &model.ValidationError{
			Field:   "deployment",
			Message: fmt.Sprintf("unsupported deployment format version %d", manifest.Version),
		}
	}
	var annos export.Export
	if err := readJSON(filepath.Join(dir, AnnotationsFile), &annos); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", AnnotationsFile, err)
	}

	im := &importer{
		media:    s.media,
		dirRef:   dirRef,
		manifest: &manifest,
		annos:    &annos,
		logger:   s.logger,
		summary:  &ImportSummary{Directory: dirRef, Projects: map[uint]uint{}},
		cdbs:     map[uint]uint{},
		vocabs:   map[uint]uint{},
		packs:    map[uint]uint{},
		datasets: map[uint]uint{},
		docs:     map[uint]uint{},
		docNames: map[uint]map[string]uint{},
	}
	err := s.store.WithContext(ctx).Transaction(func(tx store.Store) error {
		im.tx = tx
		return im.run()
	})
	if err != nil {
		return nil, err
	}
	return im.summary, nil
}

type importer struct {
	tx       store.Store
	media    media.Root
	dirRef   string
	manifest *Manifest
	annos    *export.Export
	logger   *zap.Logger
	summary  *ImportSummary

	// old id -> new id
	cdbs, vocabs, packs, datasets, docs map[uint]uint
	// new dataset id -> document name -> new document id, 0 for names
	// used more than once
	docNames map[uint]map[string]uint
}

func (im *importer) ref(archived string) string {
	return path.Join(im.dirRef, archived)
}

func (im *importer) run() error {
	steps := []func() error{
		im.importModelPacks,
		im.importConceptDBs,
		im.importVocabs,
		im.importDatasets,
		im.importMetaTasks,
		im.importRelations,
		im.importProjects,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (im *importer) importModelPacks() error {
	for _, entry := range im.manifest.ModelPacks {
		mp := &model.ModelPack{Name: entry.Name, ModelPackFile: im.ref(entry.File)}
		if _, err := modelfiles.RegisterModelPackIn(im.tx, im.media, mp); err != nil {
			return fmt.Errorf("model pack %q: %w", entry.Name, err)
		}
		im.packs[entry.ID] = mp.ID
		if entry.ConceptDB != nil && mp.ConceptDBID != nil {
			im.cdbs[*entry.ConceptDB] = *mp.ConceptDBID
		}
		if entry.Vocab != nil && mp.VocabID != nil {
			im.vocabs[*entry.Vocab] = *mp.VocabID
		}
		im.summary.ModelPacks++
	}
	return nil
}

func (im *importer) importConceptDBs() error {
	for _, entry := range im.manifest.ConceptDBs {
		cdb := &model.ConceptDB{
			Name:           entry.Name,
			CDBFile:        im.ref(entry.File),
			UseForTraining: entry.UseForTraining,
		}
		if err := im.tx.ConceptDBs().Create(cdb); err != nil {
			return fmt.Errorf("concept db %q: %w", entry.Name, err)
		}
		im.cdbs[entry.ID] = cdb.ID
		im.summary.ConceptDBs++
	}
	return nil
}

func (im *importer) importVocabs() error {
	for _, entry := range im.manifest.Vocabs {
		v := &model.Vocabulary{Name: entry.Name, VocabFile: im.ref(entry.File)}
		if err := im.tx.Vocabs().Create(v); err != nil {
			return fmt.Errorf("vocab %q: %w", entry.Name, err)
		}
		im.vocabs[entry.ID] = v.ID
		im.summary.Vocabs++
	}
	return nil
}

func (im *importer) importDatasets() error {
	for _, entry := range im.manifest.Datasets {
		f, err := os.Open(im.media.Path(im.ref(entry.File)))
		if err != nil {
			return fmt.Errorf("dataset %q: %w", entry.Name, err)
		}
		rows, err := dataset.ParseCSV(f, dataset.Limits{MaxRows: math.MaxInt32})
		f.Close()
		if err != nil {
			return fmt.Errorf("dataset %q: %w", entry.Name, err)
		}
		if len(rows) != len(entry.DocumentIDs) {
			return &model.ValidationError{
				Field: "deployment",
				Message: fmt.Sprintf("dataset %q has %d rows but lists %d documents",
					entry.Name, len(rows), len(entry.DocumentIDs)),
			}
		}

		ds := &model.Dataset{Name: entry.Name, Description: entry.Description, OriginalFile: im.ref(entry.File)}
		if err := im.tx.Datasets().Create(ds); err != nil {
			return fmt.Errorf("dataset %q: %w", entry.Name, err)
		}
		docs := dataset.Documents(ds.ID, rows)
		if err := im.tx.Documents().CreateBatch(docs); err != nil {
			return err
		}

		names := make(map[string]uint, len(docs))
		for i := range docs {
			im.docs[entry.DocumentIDs[i]] = docs[i].ID
			if _, dup := names[docs[i].Name]; dup {
				names[docs[i].Name] = 0
			} else {
				names[docs[i].Name] = docs[i].ID
			}
		}
		im.datasets[entry.ID] = ds.ID
		im.docNames[ds.ID] = names
		im.summary.Datasets++
		im.summary.Documents += len(docs)
	}
	return nil
}

func (im *importer) importMetaTasks() error {
	for _, entry := range im.manifest.MetaTasks {
		task, err := im.tx.MetaTasks().GetByName(entry.Name)
		if errors.Is(err, store.ErrNotFound) {
			task = &model.MetaTask{Name: entry.Name, Description: entry.Description, Ordering: entry.Ordering}
			err = im.tx.MetaTasks().Create(task)
		}
		if err != nil {
			return fmt.Errorf("meta task %q: %w", entry.Name, err)
		}

		ids := make([]uint, 0, len(task.Values)+len(entry.Values))
		for _, v := range task.Values {
			ids = append(ids, v.ID)
		}
		for _, name := range entry.Values {
			v, ok := task.ValueNamed(name)
			if !ok {
				if v, err = im.tx.MetaTaskValues().GetOrCreate(name); err != nil {
					return err
				}
				ids = append(ids, v.ID)
			}
			if name == entry.Default && task.DefaultID == nil {
				task.DefaultID = &v.ID
			}
		}
		if err := im.tx.MetaTasks().Update(task); err != nil {
			return err
		}
		if err := im.tx.MetaTasks().SetValues(task.ID, ids); err != nil {
			return err
		}
	}
	return nil
}

func (im *importer) importRelations() error {
	for _, label := range im.manifest.Relations {
		if _, err := im.tx.Relations().GetOrCreate(label); err != nil {
			return err
		}
	}
	return nil
}

func (im *importer) importProjects() error {
	exported := make(map[uint]*export.Project, len(im.annos.Projects))
	for i := range im.annos.Projects {
		exported[im.annos.Projects[i].ID] = &im.annos.Projects[i]
	}

	for i := range im.manifest.Projects {
		entry := &im.manifest.Projects[i]
		p, err := im.createProject(entry)
		if err != nil {
			return fmt.Errorf("project %q: %w", entry.Name, err)
		}
		im.summary.Projects[entry.ID] = p.ID

		proj, ok := exported[entry.ID]
		if !ok {
			continue
		}
		if err := im.restoreAnnotations(p, proj); err != nil {
			return fmt.Errorf("annotations of project %q: %w", entry.Name, err)
		}
	}
	return nil
}

func (im *importer) createProject(entry *Project) (*model.Project, error) {
	p := entry.Project
	p.ID = 0
	// project groups do not travel with a deployment
	p.GroupID = nil
	p.DatasetID = im.datasets[entry.DatasetID]
	if p.DatasetID == 0 {
		return nil, fmt.Errorf("dataset %d is not part of the deployment", entry.DatasetID)
	}
	var err error
	if p.ConceptDBID, err = remap(im.cdbs, entry.ConceptDBID, "concept db"); err != nil {
		return nil, err
	}
	if p.VocabID, err = remap(im.vocabs, entry.VocabID, "vocab"); err != nil {
		return nil, err
	}
	if p.ModelPackID, err = remap(im.packs, entry.ModelPackID, "model pack"); err != nil {
		return nil, err
	}
	if entry.CUIsArchiveFile != "" {
		p.CUIsFile = im.ref(entry.CUIsArchiveFile)
	}
	if err := im.tx.Projects().Create(&p); err != nil {
		return nil, err
	}

	users, err := im.tx.Users().ByUsernames(entry.Members)
	if err != nil {
		return nil, err
	}
	members := make([]uint, 0, len(users))
	for _, name := range entry.Members {
		if u, ok := users[name]; ok {
			members = append(members, u.ID)
		} else {
			im.logger.Warn("username not present in this trainer deployment", zap.String("username", name))
			im.summary.Skipped = appendUnique(im.summary.Skipped, name)
		}
	}
	if err := im.tx.Projects().SetMembers(p.ID, members); err != nil {
		return nil, err
	}

	tasks := make([]uint, 0, len(entry.Tasks))
	for _, name := range entry.Tasks {
		t, err := im.tx.MetaTasks().GetByName(name)
		if err != nil {
			return nil, fmt.Errorf("meta task %q: %w", name, err)
		}
		tasks = append(tasks, t.ID)
	}
	if err := im.tx.Projects().SetTasks(p.ID, tasks); err != nil {
		return nil, err
	}

	rels := make([]uint, 0, len(entry.RelationLabels))
	for _, label := range entry.RelationLabels {
		r, err := im.tx.Relations().GetOrCreate(label)
		if err != nil {
			return nil, err
		}
		rels = append(rels, r.ID)
	}
	if err := im.tx.Projects().SetRelations(p.ID, rels); err != nil {
		return nil, err
	}

	filter := make([]uint, 0, len(entry.CDBSearchFilter))
	for _, old := range entry.CDBSearchFilter {
		if id, ok := im.cdbs[old]; ok {
			filter = append(filter, id)
		}
	}
	if err := im.tx.Projects().SetCDBSearchFilter(p.ID, filter); err != nil {
		return nil, err
	}

	for _, old := range entry.ValidatedDocuments {
		if id, ok := im.docs[old]; ok {
			if err := im.tx.Projects().MarkValidated(p.ID, id); err != nil {
				return nil, err
			}
		}
	}
	for _, old := range entry.PreparedDocuments {
		if id, ok := im.docs[old]; ok {
			if err := im.tx.Projects().MarkPrepared(p.ID, id); err != nil {
				return nil, err
			}
		}
	}
	return &p, nil
}

// restoreAnnotations matches exported documents to the new documents of
// the project dataset by name, falling back to the old document id when
// the name is not unique within the dataset.
func (im *importer) restoreAnnotations(p *model.Project, proj *export.Project) error {
	usernames := proj.Usernames()
	users, err := im.tx.Users().ByUsernames(usernames)
	if err != nil {
		return err
	}
	for _, name := range usernames {
		if _, ok := users[name]; !ok {
			im.summary.Skipped = appendUnique(im.summary.Skipped, name)
		}
	}

	restorer, err := export.NewRestorer(im.tx, proj, users, im.logger)
	if err != nil {
		return err
	}
	names := im.docNames[p.DatasetID]
	for i := range proj.Documents {
		doc := &proj.Documents[i]
		docID := names[doc.Name]
		if docID == 0 {
			docID = im.docs[doc.ID]
		}
		if docID == 0 {
			im.logger.Warn("skipping annotations of unknown document",
				zap.Uint("project", p.ID), zap.String("document", doc.Name))
			continue
		}
		n, err := restorer.RestoreDocument(p.ID, docID, doc)
		if err != nil {
			return err
		}
		im.summary.Annotations += n
	}
	return nil
}

func remap(ids map[uint]uint, old *uint, kind string) (*uint, error) {
	if old == nil {
		return nil, nil
	}
	id, ok := ids[*old]
	if !ok {
		return nil, fmt.Errorf("%s %d is not part of the deployment", kind, *old)
	}
	return &id, nil
}

func appendUnique(list []string, v string) []string {
	i := sort.SearchStrings(list, v)
	if i < len(list) && list[i] == v {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}

func readJSON(file string, v interface{}) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
