package marketplace

import (
	"context"

	"RecallSentinel/internal/model"
)

// Searcher is the interface to a marketplace search backend. Implementations
// must be safe for concurrent use and must honor the context deadline; a
// timeout is reported as an ordinary error for that call.
type Searcher interface {
	Search(ctx context.Context, marketplaceID, query string) ([]model.Listing, error)
	Name() string
}
