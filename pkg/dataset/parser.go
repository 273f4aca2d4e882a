package dataset

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
)

// Parser ingests CSV sources into Parquet files and answers queries over them.
type Parser struct {
	db      *sql.DB
	builder *QueryBuilder
	opts    Options
}

func New(db *sql.DB, opts Options) *Parser {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 1000
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 10000
	}
	if opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = opts.MaxPageSize
	}
	return &Parser{
		db:      db,
		builder: NewBuilder(),
		opts:    opts,
	}
}

func (p *Parser) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func publicID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])[:10]
}

// FilterOptionID is the public id of a filter option.
func FilterOptionID(column, label string) string {
	return publicID("filter", column, label)
}

// LocationID is the public id of a location within a geographic level.
func LocationID(level, code string) string {
	return publicID("location", level, code)
}

func columnLabel(column string) string {
	label := strings.ReplaceAll(strings.TrimSpace(column), "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

// QueryError is returned when a query references things the data set does
// not have or breaks paging limits.
type QueryError struct {
	Path    string
	Message string
	Items   []string
}

func (e *QueryError) Error() string {
	if len(e.Items) == 0 {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Message, strings.Join(e.Items, ", "))
}
