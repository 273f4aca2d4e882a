package dataset

import (
	"context"
	"database/sql"
	"fmt"
)

var fixedColumns = []string{
	ColumnTimePeriod,
	ColumnTimeIdentifier,
	ColumnGeographicLevel,
	ColumnLocationCode,
}

// Query runs q against the Parquet file of a data set. Rows come back with
// public ids in place of stored values, ordered by the requested sorts and
// then by row id so pages are stable.
func (p *Parser) Query(ctx context.Context, parquetPath string, meta *Meta, q Query) (*Result, error) {
	page, pageSize, err := p.paging(q)
	if err != nil {
		return nil, err
	}

	idx := newMetaIndex(meta)

	indicators, err := resolveIndicators(idx, q.Indicators)
	if err != nil {
		return nil, err
	}

	orderBy, err := resolveSorts(idx, q.Sorts)
	if err != nil {
		return nil, err
	}

	where := compileCriteria(idx, q.Criteria)

	countQuery, err := p.builder.CountQuery(parquetPath, where.String())
	if err != nil {
		return nil, fmt.Errorf("building count query: %w", err)
	}
	var total int64
	if err := p.db.QueryRowContext(ctx, countQuery, where.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting results: %w", err)
	}

	columns := make([]string, 0, len(fixedColumns)+len(meta.Filters)+len(indicators))
	columns = append(columns, fixedColumns...)
	for _, f := range meta.Filters {
		columns = append(columns, f.Column)
	}
	for _, i := range indicators {
		columns = append(columns, i.Column)
	}

	dataQuery, err := p.builder.DataQuery(parquetPath, columns, where.String(), orderBy, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("building data query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataQuery, where.args...)
	if err != nil {
		return nil, fmt.Errorf("querying data: %w", err)
	}
	defer rows.Close()

	results := make([]ResultRow, 0, pageSize)
	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning data row: %w", err)
		}
		results = append(results, idx.toResultRow(values, indicators))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading data rows: %w", err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return &Result{
		Paging: Paging{
			Page:         page,
			PageSize:     pageSize,
			TotalResults: total,
			TotalPages:   totalPages,
		},
		Results:  results,
		Warnings: where.warnings,
	}, nil
}

func (p *Parser) paging(q Query) (page, pageSize int, err error) {
	page, pageSize = q.Page, q.PageSize
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = p.opts.DefaultPageSize
	}
	if page < 1 {
		return 0, 0, &QueryError{Path: "page", Message: "must be at least 1"}
	}
	if pageSize < 1 || pageSize > p.opts.MaxPageSize {
		return 0, 0, &QueryError{Path: "pageSize", Message: fmt.Sprintf("must be between 1 and %d", p.opts.MaxPageSize)}
	}
	return page, pageSize, nil
}

func resolveIndicators(idx *metaIndex, ids []string) ([]IndicatorMeta, error) {
	if len(ids) == 0 {
		return nil, &QueryError{Path: "indicators", Message: "at least one indicator is required"}
	}
	resolved := make([]IndicatorMeta, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	var missing []string
	for _, id := range ids {
		i, ok := idx.indicators[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		resolved = append(resolved, i)
	}
	if len(missing) > 0 {
		return nil, &QueryError{Path: "indicators", Message: "unknown indicators", Items: missing}
	}
	return resolved, nil
}

func resolveSorts(idx *metaIndex, sorts []Sort) ([]string, error) {
	orderBy := make([]string, 0, len(sorts)+1)
	var missing []string
	for _, s := range sorts {
		direction := "ASC"
		switch s.Direction {
		case "", SortAsc:
		case SortDesc:
			direction = "DESC"
		default:
			return nil, &QueryError{Path: "sorts", Message: "unknown sort direction", Items: []string{s.Direction}}
		}

		var column string
		switch s.Field {
		case SortFieldTimePeriod:
			orderBy = append(orderBy, fmt.Sprintf("%s %s", quoteIdent(ColumnTimePeriod), direction))
			column = ColumnTimeIdentifier
		case SortFieldGeographicLevel:
			column = ColumnGeographicLevel
		default:
			if f, ok := idx.filters[s.Field]; ok {
				column = f.Column
			} else if i, ok := idx.indicators[s.Field]; ok {
				column = i.Column
			} else {
				missing = append(missing, s.Field)
				continue
			}
		}
		orderBy = append(orderBy, fmt.Sprintf("%s %s", quoteIdent(column), direction))
	}
	if len(missing) > 0 {
		return nil, &QueryError{Path: "sorts", Message: "unknown sort fields", Items: missing}
	}
	return append(orderBy, quoteIdent(ColumnID)+" ASC"), nil
}

func (idx *metaIndex) toResultRow(values []sql.NullString, indicators []IndicatorMeta) ResultRow {
	level := values[2].String
	code := values[3].String

	row := ResultRow{
		TimePeriod:      TimePeriodRef{Period: values[0].String, Code: values[1].String},
		GeographicLevel: level,
		Location: LocationRef{
			Level: level,
			ID:    LocationID(level, code),
			Code:  code,
		},
		Filters: make(map[string]string, len(idx.meta.Filters)),
		Values:  make(map[string]string, len(indicators)),
	}

	offset := len(fixedColumns)
	for i, f := range idx.meta.Filters {
		v := values[offset+i]
		if !v.Valid {
			continue
		}
		row.Filters[f.ID] = idx.optionIDs[optionRef{column: f.Column, label: v.String}]
	}

	offset += len(idx.meta.Filters)
	for i, ind := range indicators {
		row.Values[ind.ID] = values[offset+i].String
	}
	return row
}
