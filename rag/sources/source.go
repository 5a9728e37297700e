package sources

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/memflow/types"
)

// Source is a pluggable connector that turns keywords into candidate
// documents. Implementations must be safe for concurrent use.
type Source interface {
	Name() string
	Search(ctx context.Context, keywords []string, limit int) ([]types.RawDocument, error)
}

// Registry fans a keyword search out across every registered connector.
// Connector failures degrade to empty result sets; a broken connector must
// never abort the whole search.
type Registry struct {
	sources []Source
	logger  *zap.Logger
}

// NewRegistry creates a Registry over the given connectors.
func NewRegistry(logger *zap.Logger, sources ...Source) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sources: sources,
		logger:  logger.With(zap.String("component", "source_registry")),
	}
}

// Names lists the registered connector names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name())
	}
	return names
}

// SearchOutcome reports one connector's contribution to a search.
type SearchOutcome struct {
	Source    string
	Documents int
	Failed    bool
}

// SearchAll queries every connector concurrently and concatenates the
// results in registration order, along with one outcome per connector.
func (r *Registry) SearchAll(ctx context.Context, keywords []string, limit int) ([]types.RawDocument, []SearchOutcome) {
	results := make([][]types.RawDocument, len(r.sources))
	outcomes := make([]SearchOutcome, len(r.sources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range r.sources {
		g.Go(func() error {
			docs, err := src.Search(gctx, keywords, limit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("source search failed",
					zap.String("source", src.Name()),
					zap.Error(err))
				outcomes[i] = SearchOutcome{Source: src.Name(), Failed: true}
				return nil
			}
			results[i] = docs
			outcomes[i] = SearchOutcome{Source: src.Name(), Documents: len(docs)}
			return nil
		})
	}
	_ = g.Wait()

	var out []types.RawDocument
	for i, docs := range results {
		r.logger.Debug("source searched",
			zap.String("source", r.sources[i].Name()),
			zap.Int("documents", len(docs)))
		out = append(out, docs...)
	}
	return out, outcomes
}
