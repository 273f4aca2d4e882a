package dataset

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

func getTemplate(name string) (string, error) {
	content, err := templateFS.ReadFile("templates/" + name + ".go.tmpl")
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", name, err)
	}
	return string(content), nil
}

// mustGetTemplate panics on a missing template; they are embedded at build time.
func mustGetTemplate(name string) string {
	content, err := getTemplate(name)
	if err != nil {
		panic(err)
	}
	return content
}

// QueryBuilder builds DuckDB statements from templates. Values supplied by
// callers never reach the templates: they are bound as ? parameters.
type QueryBuilder struct{}

func NewBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

type fileParams struct {
	SourcePath  string
	ParquetPath string
	Column      string
	Replace     string
}

type selectParams struct {
	ParquetPath string
	Columns     string
	Where       string
	OrderBy     string
	Limit       int
	Offset      int
}

// DescribeSourceQuery returns the column names and types of a CSV source.
func (b *QueryBuilder) DescribeSourceQuery(sourcePath string) (string, error) {
	return b.buildQuery("describe_source", fileParams{SourcePath: escapeLiteral(sourcePath)})
}

// IngestSourceQuery converts a CSV source to Parquet, adding a row id column
// and storing textColumns as VARCHAR whatever type DuckDB infers for them.
func (b *QueryBuilder) IngestSourceQuery(sourcePath, parquetPath string, textColumns []string) (string, error) {
	replace := make([]string, 0, len(textColumns))
	for _, c := range textColumns {
		replace = append(replace, fmt.Sprintf("CAST(%s AS VARCHAR) AS %s", quoteIdent(c), quoteIdent(c)))
	}
	return b.buildQuery("ingest_source", fileParams{
		SourcePath:  escapeLiteral(sourcePath),
		ParquetPath: escapeLiteral(parquetPath),
		Replace:     strings.Join(replace, ", "),
	})
}

func (b *QueryBuilder) DistinctValuesQuery(parquetPath, column string) (string, error) {
	return b.buildQuery("distinct_values", fileParams{
		ParquetPath: escapeLiteral(parquetPath),
		Column:      quoteIdent(column),
	})
}

func (b *QueryBuilder) LocationsQuery(parquetPath string) (string, error) {
	return b.buildQuery("locations", fileParams{ParquetPath: escapeLiteral(parquetPath)})
}

func (b *QueryBuilder) TimePeriodsQuery(parquetPath string) (string, error) {
	return b.buildQuery("time_periods", fileParams{ParquetPath: escapeLiteral(parquetPath)})
}

func (b *QueryBuilder) CountQuery(parquetPath string, where string) (string, error) {
	return b.buildQuery("count_query", selectParams{
		ParquetPath: escapeLiteral(parquetPath),
		Where:       where,
	})
}

// DataQuery selects the given columns as VARCHAR, ordered and paged.
func (b *QueryBuilder) DataQuery(parquetPath string, columns []string, where string, orderBy []string, limit, offset int) (string, error) {
	selected := make([]string, 0, len(columns))
	for _, c := range columns {
		selected = append(selected, fmt.Sprintf("CAST(%s AS VARCHAR) AS %s", quoteIdent(c), quoteIdent(c)))
	}
	return b.buildQuery("data_query", selectParams{
		ParquetPath: escapeLiteral(parquetPath),
		Columns:     strings.Join(selected, ",\n    "),
		Where:       where,
		OrderBy:     strings.Join(orderBy, ", "),
		Limit:       limit,
		Offset:      offset,
	})
}

func (b *QueryBuilder) buildQuery(name string, params any) (string, error) {
	tmpl, err := template.New(name).Parse(mustGetTemplate(name))
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
