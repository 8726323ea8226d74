package export

import (
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
)

// DefaultLargeCUIList is the CUI count above which an imported project
// filter is written to a cuis file.
const DefaultLargeCUIList = 1000

// Service reads and writes annotation exports
type Service struct {
	store        store.Store
	media        media.Root
	largeCUIList int
	logger       *zap.Logger
}

// NewService creates a new export service. A non-positive largeCUIList
// selects DefaultLargeCUIList.
func NewService(st store.Store, root media.Root, largeCUIList int, logger *zap.Logger) *Service {
	if largeCUIList <= 0 {
		largeCUIList = DefaultLargeCUIList
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, media: root, largeCUIList: largeCUIList, logger: logger}
}
