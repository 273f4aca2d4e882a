package dataset

// Columns every data set source file must carry. Any other VARCHAR column is
// a filter and any numeric column an indicator.
const (
	ColumnID              = "id"
	ColumnTimePeriod      = "time_period"
	ColumnTimeIdentifier  = "time_identifier"
	ColumnGeographicLevel = "geographic_level"
	ColumnLocationCode    = "location_code"
	ColumnLocationName    = "location_name"
)

var requiredColumns = []string{
	ColumnTimePeriod,
	ColumnTimeIdentifier,
	ColumnGeographicLevel,
	ColumnLocationCode,
	ColumnLocationName,
}

// Meta is the dictionary of a published data set: it maps public ids to the
// values stored in the Parquet file.
type Meta struct {
	Filters          []FilterMeta     `json:"filters"`
	Indicators       []IndicatorMeta  `json:"indicators"`
	Locations        []LocationGroup  `json:"locations"`
	TimePeriods      []TimePeriodMeta `json:"timePeriods"`
	GeographicLevels []string         `json:"geographicLevels"`
	TotalResults     int64            `json:"totalResults"`
}

type FilterMeta struct {
	ID      string             `json:"id"`
	Column  string             `json:"column"`
	Label   string             `json:"label"`
	Options []FilterOptionMeta `json:"options"`
}

type FilterOptionMeta struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type IndicatorMeta struct {
	ID     string `json:"id"`
	Column string `json:"column"`
	Label  string `json:"label"`
}

type LocationGroup struct {
	Level   string               `json:"level"`
	Options []LocationOptionMeta `json:"options"`
}

type LocationOptionMeta struct {
	ID    string `json:"id" db:"-"`
	Code  string `json:"code" db:"location_code"`
	Label string `json:"label" db:"location_name"`
	Level string `json:"-" db:"geographic_level"`
}

type TimePeriodMeta struct {
	Period string `json:"period" db:"time_period"`
	Code   string `json:"code" db:"time_identifier"`
}

// Query is the public query request of a data set.
type Query struct {
	Criteria   Criteria `json:"criteria"`
	Indicators []string `json:"indicators" validate:"required,min=1,dive,required"`
	Sorts      []Sort   `json:"sorts,omitempty" validate:"dive"`
	Page       int      `json:"page,omitempty" validate:"gte=0"`
	PageSize   int      `json:"pageSize,omitempty" validate:"gte=0"`
}

// Criteria facets are combined with AND.
type Criteria struct {
	Filters          *FacetCriteria      `json:"filters,omitempty"`
	GeographicLevels *FacetCriteria      `json:"geographicLevels,omitempty"`
	Locations        *LocationCriteria   `json:"locations,omitempty"`
	TimePeriods      *TimePeriodCriteria `json:"timePeriods,omitempty"`
}

type FacetCriteria struct {
	Eq    *string  `json:"eq,omitempty"`
	NotEq *string  `json:"notEq,omitempty"`
	In    []string `json:"in,omitempty"`
	NotIn []string `json:"notIn,omitempty"`
}

type LocationRef struct {
	Level string `json:"level" validate:"required"`
	ID    string `json:"id,omitempty" validate:"required_without=Code"`
	Code  string `json:"code,omitempty"`
}

type LocationCriteria struct {
	Eq    *LocationRef  `json:"eq,omitempty"`
	NotEq *LocationRef  `json:"notEq,omitempty"`
	In    []LocationRef `json:"in,omitempty" validate:"dive"`
	NotIn []LocationRef `json:"notIn,omitempty" validate:"dive"`
}

type TimePeriodRef struct {
	Period string `json:"period" validate:"required"`
	Code   string `json:"code" validate:"required"`
}

type TimePeriodCriteria struct {
	Eq    *TimePeriodRef  `json:"eq,omitempty"`
	NotEq *TimePeriodRef  `json:"notEq,omitempty"`
	In    []TimePeriodRef `json:"in,omitempty" validate:"dive"`
	NotIn []TimePeriodRef `json:"notIn,omitempty" validate:"dive"`
	Gte   *TimePeriodRef  `json:"gte,omitempty"`
	Lte   *TimePeriodRef  `json:"lte,omitempty"`
}

const (
	SortAsc  = "Asc"
	SortDesc = "Desc"

	SortFieldTimePeriod      = "timePeriod"
	SortFieldGeographicLevel = "geographicLevel"
)

// Sort field is timePeriod, geographicLevel, a filter id or an indicator id.
type Sort struct {
	Field     string `json:"field" validate:"required"`
	Direction string `json:"direction" validate:"omitempty,oneof=Asc Desc"`
}

type Result struct {
	Paging   Paging      `json:"paging"`
	Results  []ResultRow `json:"results"`
	Warnings []Warning   `json:"warnings,omitempty"`
}

type Paging struct {
	Page         int   `json:"page"`
	PageSize     int   `json:"pageSize"`
	TotalResults int64 `json:"totalResults"`
	TotalPages   int   `json:"totalPages"`
}

type ResultRow struct {
	TimePeriod      TimePeriodRef     `json:"timePeriod"`
	GeographicLevel string            `json:"geographicLevel"`
	Location        LocationRef       `json:"location"`
	Filters         map[string]string `json:"filters"`
	Values          map[string]string `json:"values"`
}

// Warning reports criteria items that matched nothing in the meta.
type Warning struct {
	Path  string `json:"path"`
	Code  string `json:"code"`
	Items []any  `json:"items"`
}

// Options for pagination.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}
