// internal/domain/issue/source.go
package issue

import (
	"context"
	"fmt"
)

// Source executes tracker queries.
type Source interface {
	// FetchIssues returns the issues matching query, oldest first. An empty query
	// matches everything. idsOnly requests the minimal field projection.
	FetchIssues(ctx context.Context, query string, idsOnly bool) ([]Issue, error)
}

// QueryError reports a failed tracker query.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("tracker query %q failed: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
