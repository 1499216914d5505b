package audit

import (
	"context"
	"time"

	"chariotek.org/internal/docstore"
)

const defaultQueryLimit = 50

// Filter narrows an audit query. Zero-valued fields are ignored.
type Filter struct {
	UserID       string
	Action       Action
	ResourceType string
	ResourceID   string
	Success      *bool
	StartDate    *time.Time
	EndDate      *time.Time

	// Limit is the page size; Cursor resumes after a previously returned
	// entry (opaque, from QueryResult.NextCursor).
	Limit  int
	Cursor string
}

// QueryResult is one page of entries, newest first.
type QueryResult struct {
	Entries    []Entry `json:"entries"`
	HasMore    bool    `json:"hasMore"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// Query returns matching entries ordered by timestamp descending. One extra
// row beyond the page size is fetched purely to compute HasMore; there is no
// count query.
func (l *Logger) Query(ctx context.Context, f Filter) (QueryResult, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = defaultQueryLimit
	}

	var filters []docstore.Filter
	if f.UserID != "" {
		filters = append(filters, docstore.Filter{Field: "userId", Value: f.UserID})
	}
	if f.Action != "" {
		filters = append(filters, docstore.Filter{Field: "action", Value: string(f.Action)})
	}
	if f.ResourceType != "" {
		filters = append(filters, docstore.Filter{Field: "resourceType", Value: f.ResourceType})
	}
	if f.ResourceID != "" {
		filters = append(filters, docstore.Filter{Field: "resourceId", Value: f.ResourceID})
	}
	if f.Success != nil {
		filters = append(filters, docstore.Filter{Field: "success", Value: *f.Success})
	}
	if f.StartDate != nil {
		filters = append(filters, docstore.Filter{
			Field: "timestamp", Op: docstore.OpAtLeast,
			Value: f.StartDate.UTC().Format(auditTimeFormat),
		})
	}
	if f.EndDate != nil {
		filters = append(filters, docstore.Filter{
			Field: "timestamp", Op: docstore.OpAtMost,
			Value: f.EndDate.UTC().Format(auditTimeFormat),
		})
	}

	rows, err := l.store.QueryCollection(ctx, collection, docstore.Query{
		Filters: filters,
		OrderBy: "timestamp",
		Desc:    true,
		Limit:   limit + 1,
		AfterID: f.Cursor,
	})
	if err != nil {
		return QueryResult{}, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	result := QueryResult{HasMore: hasMore}
	for _, row := range rows {
		entry, err := decodeEntry(row.Value)
		if err != nil {
			return QueryResult{}, err
		}
		result.Entries = append(result.Entries, entry)
	}
	if hasMore && len(rows) > 0 {
		result.NextCursor = rows[len(rows)-1].ID
	}
	return result, nil
}
