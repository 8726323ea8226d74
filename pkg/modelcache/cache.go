package modelcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/nlp"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// ErrModelNotConfigured is returned for projects without a usable model
var ErrModelNotConfigured = errors.New("failure loading project ConceptDB, Vocab or Model Pack. Are these set correctly?")

// Options configures a Cache
type Options struct {
	Store store.Store
	// MaxModels bounds each of the CAT, CDB and Vocab caches
	MaxModels int
	// MedCATConfigFile, when it exists, is applied to every loaded CDB
	MedCATConfigFile string
	MediaRoot        media.Root
	Logger           *zap.Logger
	Metrics          *Metrics
}

// Cache keeps loaded models in memory, keyed the way projects refer to
// them. It is safe for concurrent use; concurrent loads of the same model
// share one load.
type Cache struct {
	store      store.Store
	configFile string
	mediaRoot  media.Root
	logger     *zap.Logger
	metrics    *Metrics

	cats   *lru.Cache
	cdbs   *lru.Cache
	vocabs *lru.Cache
	group  singleflight.Group
}

// New creates an empty Cache
func New(opts Options) (*Cache, error) {
	if opts.Store == nil {
		return nil, errors.New("model cache requires a store")
	}
	size := opts.MaxModels
	if size < 1 {
		size = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	c := &Cache{
		store:      opts.Store,
		configFile: opts.MedCATConfigFile,
		mediaRoot:  opts.MediaRoot,
		logger:     logger,
		metrics:    metrics,
	}
	var err error
	if c.cats, err = lru.New(size); err != nil {
		return nil, err
	}
	if c.cdbs, err = lru.New(size); err != nil {
		return nil, err
	}
	if c.vocabs, err = lru.New(size); err != nil {
		return nil, err
	}
	return c, nil
}

// put caches a loaded model. Only capacity evictions count as evictions;
// explicit clears are counted by drop and purge.
func (c *Cache) put(kind string, cache *lru.Cache, key, value interface{}) {
	if cache.Add(key, value) {
		c.metrics.evictions.WithLabelValues(kind).Inc()
		c.logger.Info("evicted least recently used model", zap.String("kind", kind), zap.Any("added", key))
	}
}

func (c *Cache) drop(kind string, cache *lru.Cache, key interface{}) {
	if cache.Remove(key) {
		c.metrics.removals.WithLabelValues(kind).Inc()
		c.logger.Debug("cleared cached model", zap.String("kind", kind), zap.Any("key", key))
	}
}

func (c *Cache) purge(kind string, cache *lru.Cache) {
	n := cache.Len()
	cache.Purge()
	c.metrics.removals.WithLabelValues(kind).Add(float64(n))
}

// Key returns the cache key of the project's CAT: "mp<id>" for model pack
// projects, "<cdb id>-<vocab id>" otherwise.
func Key(p *model.Project) (string, error) {
	if p.ModelPackID != nil {
		return "mp" + strconv.FormatUint(uint64(*p.ModelPackID), 10), nil
	}
	if p.ConceptDBID == nil || p.VocabID == nil {
		return "", ErrModelNotConfigured
	}
	return fmt.Sprintf("%d-%d", *p.ConceptDBID, *p.VocabID), nil
}

// GetMedCAT returns the project's CAT, loading it when not cached
func (c *Cache) GetMedCAT(ctx context.Context, p *model.Project) (*nlp.CAT, error) {
	key, err := Key(p)
	if err != nil {
		return nil, err
	}
	if v, ok := c.cats.Get(key); ok {
		c.metrics.hits.WithLabelValues(kindCAT).Inc()
		return v.(*nlp.CAT), nil
	}
	c.metrics.misses.WithLabelValues(kindCAT).Inc()

	v, err := c.load(ctx, kindCAT, key, c.cats, key, func(ctx context.Context) (interface{}, error) {
		var cat *nlp.CAT
		var err error
		if p.ModelPackID != nil {
			cat, err = c.loadModelPack(ctx, *p.ModelPackID)
		} else {
			cat, err = c.loadPair(ctx, *p.ConceptDBID, *p.VocabID)
		}
		if err != nil {
			return nil, err
		}
		c.put(kindCAT, c.cats, key, cat)
		return cat, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*nlp.CAT), nil
}

// GetCachedMedCAT returns the project's CAT only if it is already loaded
func (c *Cache) GetCachedMedCAT(p *model.Project) (*nlp.CAT, bool) {
	key, err := Key(p)
	if err != nil {
		return nil, false
	}
	v, ok := c.cats.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*nlp.CAT), true
}

// ClearCachedMedCAT drops the project's CAT, and for CDB/Vocab projects
// the CDB and Vocab it was built from.
func (c *Cache) ClearCachedMedCAT(p *model.Project) {
	key, err := Key(p)
	if err != nil {
		return
	}
	c.drop(kindCAT, c.cats, key)
	if p.ModelPackID == nil {
		c.ClearCachedCDB(*p.ConceptDBID)
		c.ClearCachedVocab(*p.VocabID)
	}
}

// IsModelLoaded reports whether the project's model is in memory. Model
// pack projects check their CAT, CDB/Vocab projects their CDB.
func (c *Cache) IsModelLoaded(p *model.Project) bool {
	if p.ModelPackID != nil {
		key, _ := Key(p)
		return c.cats.Contains(key)
	}
	if p.ConceptDBID == nil {
		return false
	}
	return c.cdbs.Contains(*p.ConceptDBID)
}

// GetCachedCDB returns the CDB of a ConceptDB row, loading it when not cached
func (c *Cache) GetCachedCDB(ctx context.Context, cdbID uint) (*nlp.CDB, error) {
	if v, ok := c.cdbs.Get(cdbID); ok {
		c.metrics.hits.WithLabelValues(kindCDB).Inc()
		return v.(*nlp.CDB), nil
	}
	c.metrics.misses.WithLabelValues(kindCDB).Inc()

	v, err := c.load(ctx, kindCDB, strconv.FormatUint(uint64(cdbID), 10), c.cdbs, cdbID, func(ctx context.Context) (interface{}, error) {
		row, err := c.store.WithContext(ctx).ConceptDBs().Get(cdbID)
		if err != nil {
			return nil, fmt.Errorf("concept db %d: %w", cdbID, err)
		}
		cdb, err := c.loadCDBFile(c.mediaRoot.Path(row.CDBFile))
		if err != nil {
			return nil, err
		}
		c.put(kindCDB, c.cdbs, cdbID, cdb)
		return cdb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*nlp.CDB), nil
}

// ClearCachedCDB drops a cached CDB
func (c *Cache) ClearCachedCDB(cdbID uint) {
	c.drop(kindCDB, c.cdbs, cdbID)
}

// ClearCachedVocab drops a cached Vocab
func (c *Cache) ClearCachedVocab(vocabID uint) {
	c.drop(kindVocab, c.vocabs, vocabID)
}

// Purge drops every cached model
func (c *Cache) Purge() {
	c.purge(kindCAT, c.cats)
	c.purge(kindCDB, c.cdbs)
	c.purge(kindVocab, c.vocabs)
}

// Len returns the number of cached CATs, CDBs and Vocabs
func (c *Cache) Len() (cats, cdbs, vocabs int) {
	return c.cats.Len(), c.cdbs.Len(), c.vocabs.Len()
}

func (c *Cache) getVocab(ctx context.Context, vocabID uint) (*nlp.Vocab, error) {
	if v, ok := c.vocabs.Get(vocabID); ok {
		c.metrics.hits.WithLabelValues(kindVocab).Inc()
		return v.(*nlp.Vocab), nil
	}
	c.metrics.misses.WithLabelValues(kindVocab).Inc()

	v, err := c.load(ctx, kindVocab, strconv.FormatUint(uint64(vocabID), 10), c.vocabs, vocabID, func(ctx context.Context) (interface{}, error) {
		row, err := c.store.WithContext(ctx).Vocabs().Get(vocabID)
		if err != nil {
			return nil, fmt.Errorf("vocab %d: %w", vocabID, err)
		}
		vocab, err := nlp.LoadVocab(c.mediaRoot.Path(row.VocabFile))
		if err != nil {
			return nil, err
		}
		c.put(kindVocab, c.vocabs, vocabID, vocab)
		return vocab, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*nlp.Vocab), nil
}

func (c *Cache) loadPair(ctx context.Context, cdbID, vocabID uint) (*nlp.CAT, error) {
	cdb, err := c.GetCachedCDB(ctx, cdbID)
	if err != nil {
		return nil, err
	}
	vocab, err := c.getVocab(ctx, vocabID)
	if err != nil {
		return nil, err
	}
	return nlp.NewCAT(cdb, vocab, nil), nil
}

func (c *Cache) loadModelPack(ctx context.Context, modelPackID uint) (*nlp.CAT, error) {
	row, err := c.store.WithContext(ctx).ModelPacks().Get(modelPackID)
	if err != nil {
		return nil, fmt.Errorf("model pack %d: %w", modelPackID, err)
	}
	mp, err := nlp.LoadModelPack(c.mediaRoot.Path(row.ModelPackFile))
	if err != nil {
		return nil, legacyErr(err)
	}
	c.applyConfigFile(mp.CDB)
	return mp.CAT(), nil
}

func (c *Cache) loadCDBFile(path string) (*nlp.CDB, error) {
	cdb, err := nlp.LoadCDB(path)
	if err != nil {
		return nil, legacyErr(err)
	}
	c.applyConfigFile(cdb)
	return cdb, nil
}

func (c *Cache) applyConfigFile(cdb *nlp.CDB) {
	if c.configFile == "" {
		c.logger.Info("no MEDCAT_CONFIG_FILE set, using the CDB default config")
		return
	}
	if _, err := os.Stat(c.configFile); err != nil {
		c.logger.Info("MEDCAT_CONFIG_FILE not found, using the CDB default config",
			zap.String("path", c.configFile))
		return
	}
	cfg := cdb.Config()
	if err := cfg.ParseConfigFile(c.configFile); err != nil {
		c.logger.Error("failed to apply MEDCAT_CONFIG_FILE", zap.Error(err))
		return
	}
	cdb.SetConfig(cfg)
}

// load runs fn once per kind and key among concurrent callers. A caller
// arriving after an earlier load finished finds the value in cache.
func (c *Cache) load(ctx context.Context, kind, key string, cache *lru.Cache, cacheKey interface{}, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	// the load outlives the caller that started it
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(kind+":"+key, func() (interface{}, error) {
		if v, ok := cache.Peek(cacheKey); ok {
			return v, nil
		}
		c.metrics.loads.WithLabelValues(kind).Inc()
		v, err := fn(loadCtx)
		if err != nil {
			c.metrics.loadErrors.WithLabelValues(kind).Inc()
			c.logger.Error("failed to load model", zap.String("kind", kind), zap.String("key", key), zap.Error(err))
		}
		return v, err
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func legacyErr(err error) error {
	if errors.Is(err, nlp.ErrLegacyModel) {
		return fmt.Errorf("%w: please re-configure this project to use a v1.x CDB", err)
	}
	return err
}
