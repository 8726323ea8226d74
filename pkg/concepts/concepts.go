package concepts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/annotation"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/jobs"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/modelcache"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// TaskImportConcepts names the background task indexing a CDB
const TaskImportConcepts = "import_concepts"

// SearchLimit is the number of rows returned per searched CDB
const SearchLimit = 15

type importPayload struct {
	CDBID uint `json:"cdb_id"`
}

// Node is a concept of a CDB hierarchy
type Node struct {
	CUI         string `json:"cui"`
	PrettyName  string `json:"pretty_name"`
	HasChildren bool   `json:"has_children"`
}

// Service indexes and navigates the concepts of concept databases
type Service struct {
	store  store.Store
	models *modelcache.Cache
	jobs   *jobs.Runner
	logger *zap.Logger
}

// NewService creates a new concepts service and registers its import
// task with runner.
func NewService(st store.Store, models *modelcache.Cache, runner *jobs.Runner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: st, models: models, jobs: runner, logger: logger}
	runner.Register(TaskImportConcepts, s.handleImport)
	return s
}

// QueueImport enqueues the indexing of a CDB
func (s *Service) QueueImport(ctx context.Context, cdbID uint) (*model.Task, error) {
	if _, err := s.store.WithContext(ctx).ConceptDBs().Get(cdbID); err != nil {
		return nil, fmt.Errorf("concept db %d: %w", cdbID, err)
	}
	return s.jobs.Enqueue(ctx, jobs.QueueConcepts, TaskImportConcepts, importPayload{CDBID: cdbID})
}

func (s *Service) handleImport(ctx context.Context, task *model.Task) error {
	var p importPayload
	if err := jobs.Decode(task, &p); err != nil {
		return err
	}
	_, err := s.ImportConcepts(ctx, p.CDBID)
	return err
}

// ImportConcepts replaces the search index of a CDB with its current
// concepts and returns the number indexed.
func (s *Service) ImportConcepts(ctx context.Context, cdbID uint) (int, error) {
	cdb, err := s.models.GetCachedCDB(ctx, cdbID)
	if err != nil {
		return 0, err
	}
	infos := cdb.Concepts()
	rows := make([]model.Concept, 0, len(infos))
	for i := range infos {
		if row, ok := annotation.ConceptRow(cdb, cdbID, infos[i].CUI); ok {
			rows = append(rows, row)
		}
	}
	if err := s.store.WithContext(ctx).Concepts().ReplaceForCDB(cdbID, rows); err != nil {
		return 0, fmt.Errorf("failed to index concepts: %w", err)
	}
	s.logger.Info("indexed concepts", zap.Uint("cdb", cdbID), zap.Int("concepts", len(rows)))
	return len(rows), nil
}

// DeleteIndexedConcepts empties the search index of a CDB
func (s *Service) DeleteIndexedConcepts(ctx context.Context, cdbID uint) (int64, error) {
	n, err := s.store.WithContext(ctx).Concepts().DeleteForCDB(cdbID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("removed indexed concepts", zap.Uint("cdb", cdbID), zap.Int64("concepts", n))
	return n, nil
}

// IndexAvailable reports, per CDB, whether it has indexed concepts
func (s *Service) IndexAvailable(ctx context.Context, cdbIDs []uint) (map[uint]bool, error) {
	st := s.store.WithContext(ctx)
	out := make(map[uint]bool, len(cdbIDs))
	for _, id := range cdbIDs {
		_, n, err := st.Concepts().List(store.ListOptions{
			Filters:  map[string]interface{}{"cdb_id": id},
			PageSize: 1,
		})
		if err != nil {
			return nil, err
		}
		out[id] = n > 0
	}
	return out, nil
}

// Search looks up concepts by name prefix or CUI across the CDBs, at most
// SearchLimit per CDB and each CUI once.
func (s *Service) Search(ctx context.Context, cdbIDs []uint, query string) ([]model.Concept, error) {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return nil, &model.ValidationError{Field: "search", Message: "a search term is required"}
	}
	if len(cdbIDs) == 0 {
		return []model.Concept{}, nil
	}
	out, err := s.store.WithContext(ctx).Concepts().Search(cdbIDs, query, SearchLimit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Concept{}
	}
	return out, nil
}

// Children returns the direct children of cui, or the roots of the
// hierarchy when cui is empty.
func (s *Service) Children(ctx context.Context, cdbID uint, cui string) ([]Node, error) {
	cdb, err := s.hierarchy(ctx, cdbID)
	if err != nil {
		return nil, err
	}
	var cuis []string
	if cui == "" {
		cuis = cdb.Roots()
	} else {
		cuis = cdb.Children(cui)
	}
	out := make([]Node, 0, len(cuis))
	for _, c := range cuis {
		out = append(out, node(cdb, c))
	}
	return out, nil
}

// ConceptPath returns the concepts from a root of the hierarchy down to
// cui. Where a concept has several parents the first in CUI order is
// followed.
func (s *Service) ConceptPath(ctx context.Context, cdbID uint, cui string) ([]Node, error) {
	cdb, err := s.hierarchy(ctx, cdbID)
	if err != nil {
		return nil, err
	}
	if _, ok := cdb.Concept(cui); !ok && len(cdb.Parents(cui)) == 0 {
		return nil, fmt.Errorf("concept %s: %w", cui, store.ErrNotFound)
	}

	path := []Node{node(cdb, cui)}
	seen := map[string]bool{cui: true}
	for current := cui; ; {
		parents := cdb.Parents(current)
		if len(parents) == 0 || seen[parents[0]] {
			break
		}
		current = parents[0]
		seen[current] = true
		path = append(path, node(cdb, current))
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// GenerateConceptFilter expands cuis with all their descendants in the
// CDB hierarchy.
func (s *Service) GenerateConceptFilter(ctx context.Context, cdbID uint, cuis []string) ([]string, error) {
	if len(cuis) == 0 {
		return nil, &model.ValidationError{Field: "cuis", Message: "at least one CUI is required"}
	}
	cdb, err := s.models.GetCachedCDB(ctx, cdbID)
	if err != nil {
		return nil, err
	}
	return annotation.ExpandConceptFilter(cdb, cuis), nil
}

func (s *Service) hierarchy(ctx context.Context, cdbID uint) (*nlp.CDB, error) {
	cdb, err := s.models.GetCachedCDB(ctx, cdbID)
	if err != nil {
		return nil, err
	}
	if !cdb.HasPT2CH() {
		return nil, &model.ValidationError{
			Field:   "cdb",
			Message: fmt.Sprintf("concept db %d has no concept hierarchy", cdbID),
		}
	}
	return cdb, nil
}

func node(cdb *nlp.CDB, cui string) Node {
	n := Node{CUI: cui, HasChildren: len(cdb.Children(cui)) > 0}
	if info, ok := cdb.Concept(cui); ok {
		n.PrettyName = info.PrettyName
	}
	return n
}
