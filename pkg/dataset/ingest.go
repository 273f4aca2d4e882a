package dataset

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// IngestOptions lets the caller override the inferred column roles.
type IngestOptions struct {
	// Indicators forces columns to be indicators even if DuckDB reads them as text.
	Indicators []string
	// Labels maps column names to human readable labels.
	Labels map[string]string
}

type sourceColumn struct {
	Name string `db:"column_name"`
	Type string `db:"column_type"`
}

func (c sourceColumn) numeric() bool {
	t := strings.ToUpper(c.Type)
	switch {
	case strings.HasPrefix(t, "DECIMAL"):
		return true
	case strings.HasSuffix(t, "INT"), strings.HasSuffix(t, "INTEGER"):
		return true
	}
	switch t {
	case "FLOAT", "DOUBLE", "REAL", "HUGEINT", "UHUGEINT":
		return true
	}
	return false
}

// Ingest converts the CSV at sourcePath into a Parquet file at parquetPath
// and returns the meta dictionary of the result.
func (p *Parser) Ingest(ctx context.Context, sourcePath, parquetPath string, opts IngestOptions) (*Meta, error) {
	columns, err := p.describe(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	if err := validateColumns(columns); err != nil {
		return nil, err
	}

	filters, indicators := classify(columns, opts)

	text := append(slices.Clone(requiredColumns), filters...)
	q, err := p.builder.IngestSourceQuery(sourcePath, parquetPath, text)
	if err != nil {
		return nil, fmt.Errorf("building ingest query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, q); err != nil {
		return nil, fmt.Errorf("writing parquet: %w", err)
	}

	return p.buildMeta(ctx, parquetPath, filters, indicators, opts)
}

// classify splits the non required columns into filters and indicators,
// keeping source order.
func classify(columns []sourceColumn, opts IngestOptions) (filters, indicators []string) {
	for _, c := range columns {
		if slices.Contains(requiredColumns, c.Name) {
			continue
		}
		if c.numeric() || slices.Contains(opts.Indicators, c.Name) {
			indicators = append(indicators, c.Name)
		} else {
			filters = append(filters, c.Name)
		}
	}
	return filters, indicators
}

func (p *Parser) describe(ctx context.Context, sourcePath string) ([]sourceColumn, error) {
	q, err := p.builder.DescribeSourceQuery(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("building describe query: %w", err)
	}
	var columns []sourceColumn
	if err := sqlscan.Select(ctx, p.db, &columns, q); err != nil {
		return nil, fmt.Errorf("describing source: %w", err)
	}
	return columns, nil
}

func validateColumns(columns []sourceColumn) error {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, c.Name)
	}

	if slices.Contains(names, ColumnID) {
		return fmt.Errorf("source must not contain a %q column", ColumnID)
	}

	var missing []string
	for _, required := range requiredColumns {
		if !slices.Contains(names, required) {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("source is missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (p *Parser) buildMeta(ctx context.Context, parquetPath string, filters, indicators []string, opts IngestOptions) (*Meta, error) {
	label := func(column string) string {
		if l, ok := opts.Labels[column]; ok && l != "" {
			return l
		}
		return columnLabel(column)
	}

	meta := &Meta{
		Filters:    make([]FilterMeta, 0, len(filters)),
		Indicators: make([]IndicatorMeta, 0, len(indicators)),
	}
	for _, column := range indicators {
		meta.Indicators = append(meta.Indicators, IndicatorMeta{
			ID:     column,
			Column: column,
			Label:  label(column),
		})
	}

	for _, column := range filters {
		values, err := p.distinctValues(ctx, parquetPath, column)
		if err != nil {
			return nil, err
		}
		filter := FilterMeta{
			ID:      column,
			Column:  column,
			Label:   label(column),
			Options: make([]FilterOptionMeta, 0, len(values)),
		}
		for _, v := range values {
			filter.Options = append(filter.Options, FilterOptionMeta{ID: FilterOptionID(column, v), Label: v})
		}
		meta.Filters = append(meta.Filters, filter)
	}

	if err := p.fillLocations(ctx, parquetPath, meta); err != nil {
		return nil, err
	}

	q, err := p.builder.TimePeriodsQuery(parquetPath)
	if err != nil {
		return nil, fmt.Errorf("building time periods query: %w", err)
	}
	if err := sqlscan.Select(ctx, p.db, &meta.TimePeriods, q); err != nil {
		return nil, fmt.Errorf("reading time periods: %w", err)
	}

	q, err = p.builder.CountQuery(parquetPath, "")
	if err != nil {
		return nil, fmt.Errorf("building count query: %w", err)
	}
	if err := p.db.QueryRowContext(ctx, q).Scan(&meta.TotalResults); err != nil {
		return nil, fmt.Errorf("counting rows: %w", err)
	}

	return meta, nil
}

func (p *Parser) distinctValues(ctx context.Context, parquetPath, column string) ([]string, error) {
	q, err := p.builder.DistinctValuesQuery(parquetPath, column)
	if err != nil {
		return nil, fmt.Errorf("building distinct values query: %w", err)
	}
	var values []string
	if err := sqlscan.Select(ctx, p.db, &values, q); err != nil {
		return nil, fmt.Errorf("reading values of %s: %w", column, err)
	}
	return values, nil
}

func (p *Parser) fillLocations(ctx context.Context, parquetPath string, meta *Meta) error {
	q, err := p.builder.LocationsQuery(parquetPath)
	if err != nil {
		return fmt.Errorf("building locations query: %w", err)
	}
	var locations []LocationOptionMeta
	if err := sqlscan.Select(ctx, p.db, &locations, q); err != nil {
		return fmt.Errorf("reading locations: %w", err)
	}

	groups := make(map[string]int)
	for _, l := range locations {
		l.ID = LocationID(l.Level, l.Code)
		i, ok := groups[l.Level]
		if !ok {
			i = len(meta.Locations)
			groups[l.Level] = i
			meta.Locations = append(meta.Locations, LocationGroup{Level: l.Level})
			meta.GeographicLevels = append(meta.GeographicLevels, l.Level)
		}
		meta.Locations[i].Options = append(meta.Locations[i].Options, l)
	}
	return nil
}
