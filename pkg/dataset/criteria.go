package dataset

import (
	"fmt"
	"strings"
)

type optionRef struct {
	column string
	label  string
}

type locationRef struct {
	level string
	code  string
	label string
}

// metaIndex resolves public ids back to stored values.
type metaIndex struct {
	meta       *Meta
	filters    map[string]FilterMeta
	options    map[string]optionRef
	optionIDs  map[optionRef]string
	indicators map[string]IndicatorMeta
	locations  map[string]locationRef
	locCodes   map[string]string
	levels     map[string]bool
	periods    map[TimePeriodRef]bool
}

func newMetaIndex(meta *Meta) *metaIndex {
	idx := &metaIndex{
		meta:       meta,
		filters:    make(map[string]FilterMeta, len(meta.Filters)),
		options:    make(map[string]optionRef),
		optionIDs:  make(map[optionRef]string),
		indicators: make(map[string]IndicatorMeta, len(meta.Indicators)),
		locations:  make(map[string]locationRef),
		locCodes:   make(map[string]string),
		levels:     make(map[string]bool, len(meta.GeographicLevels)),
		periods:    make(map[TimePeriodRef]bool, len(meta.TimePeriods)),
	}
	for _, f := range meta.Filters {
		idx.filters[f.ID] = f
		for _, o := range f.Options {
			ref := optionRef{column: f.Column, label: o.Label}
			idx.options[o.ID] = ref
			idx.optionIDs[ref] = o.ID
		}
	}
	for _, i := range meta.Indicators {
		idx.indicators[i.ID] = i
	}
	for _, g := range meta.Locations {
		for _, o := range g.Options {
			idx.locations[o.ID] = locationRef{level: g.Level, code: o.Code, label: o.Label}
			idx.locCodes[g.Level+"\x1f"+o.Code] = o.ID
		}
	}
	for _, l := range meta.GeographicLevels {
		idx.levels[l] = true
	}
	for _, t := range meta.TimePeriods {
		idx.periods[TimePeriodRef{Period: t.Period, Code: t.Code}] = true
	}
	return idx
}

func (idx *metaIndex) resolveLocation(ref LocationRef) (locationRef, bool) {
	if ref.ID != "" {
		l, ok := idx.locations[ref.ID]
		if !ok || l.level != ref.Level {
			return locationRef{}, false
		}
		return l, true
	}
	id, ok := idx.locCodes[ref.Level+"\x1f"+ref.Code]
	if !ok {
		return locationRef{}, false
	}
	return idx.locations[id], true
}

// whereClause accumulates AND-ed predicates and their bound arguments.
type whereClause struct {
	conditions []string
	args       []any
	warnings   []Warning
}

func (w *whereClause) add(cond string, args ...any) {
	w.conditions = append(w.conditions, cond)
	w.args = append(w.args, args...)
}

func (w *whereClause) never() {
	w.conditions = append(w.conditions, "FALSE")
}

func (w *whereClause) notFound(path string, items []any) {
	if len(items) == 0 {
		return
	}
	w.warnings = append(w.warnings, Warning{Path: path, Code: "NotFound", Items: items})
}

func (w *whereClause) String() string {
	return strings.Join(w.conditions, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// compileCriteria turns criteria into a WHERE clause. Ids the meta does not
// know are reported as warnings: in eq and in facets they match nothing, in
// notEq and notIn facets they exclude nothing.
func compileCriteria(idx *metaIndex, c Criteria) *whereClause {
	w := &whereClause{}
	if c.Filters != nil {
		compileFilters(idx, w, c.Filters)
	}
	if c.GeographicLevels != nil {
		compileLevels(idx, w, c.GeographicLevels)
	}
	if c.Locations != nil {
		compileLocations(idx, w, c.Locations)
	}
	if c.TimePeriods != nil {
		compileTimePeriods(idx, w, c.TimePeriods)
	}
	return w
}

// groupOptions groups option ids by column, keeping the first-seen order.
func groupOptions(idx *metaIndex, ids []string) (columns []string, labels map[string][]any, missing []any) {
	labels = make(map[string][]any)
	for _, id := range ids {
		ref, ok := idx.options[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		if _, seen := labels[ref.column]; !seen {
			columns = append(columns, ref.column)
		}
		labels[ref.column] = append(labels[ref.column], ref.label)
	}
	return columns, labels, missing
}

func compileFilters(idx *metaIndex, w *whereClause, f *FacetCriteria) {
	if f.Eq != nil {
		if ref, ok := idx.options[*f.Eq]; ok {
			w.add(quoteIdent(ref.column)+" = ?", ref.label)
		} else {
			w.notFound("criteria.filters.eq", []any{*f.Eq})
			w.never()
		}
	}
	if f.NotEq != nil {
		if ref, ok := idx.options[*f.NotEq]; ok {
			w.add(quoteIdent(ref.column)+" <> ?", ref.label)
		} else {
			w.notFound("criteria.filters.notEq", []any{*f.NotEq})
		}
	}
	if len(f.In) > 0 {
		columns, labels, missing := groupOptions(idx, f.In)
		w.notFound("criteria.filters.in", missing)
		if len(columns) == 0 {
			w.never()
		}
		for _, col := range columns {
			w.add(fmt.Sprintf("%s IN (%s)", quoteIdent(col), placeholders(len(labels[col]))), labels[col]...)
		}
	}
	if len(f.NotIn) > 0 {
		columns, labels, missing := groupOptions(idx, f.NotIn)
		w.notFound("criteria.filters.notIn", missing)
		for _, col := range columns {
			w.add(fmt.Sprintf("%s NOT IN (%s)", quoteIdent(col), placeholders(len(labels[col]))), labels[col]...)
		}
	}
}

func knownLevels(idx *metaIndex, levels []string) (known []any, missing []any) {
	for _, l := range levels {
		if idx.levels[l] {
			known = append(known, l)
		} else {
			missing = append(missing, l)
		}
	}
	return known, missing
}

func compileLevels(idx *metaIndex, w *whereClause, f *FacetCriteria) {
	col := quoteIdent(ColumnGeographicLevel)
	if f.Eq != nil {
		if idx.levels[*f.Eq] {
			w.add(col+" = ?", *f.Eq)
		} else {
			w.notFound("criteria.geographicLevels.eq", []any{*f.Eq})
			w.never()
		}
	}
	if f.NotEq != nil {
		if idx.levels[*f.NotEq] {
			w.add(col+" <> ?", *f.NotEq)
		} else {
			w.notFound("criteria.geographicLevels.notEq", []any{*f.NotEq})
		}
	}
	if len(f.In) > 0 {
		known, missing := knownLevels(idx, f.In)
		w.notFound("criteria.geographicLevels.in", missing)
		if len(known) == 0 {
			w.never()
		} else {
			w.add(fmt.Sprintf("%s IN (%s)", col, placeholders(len(known))), known...)
		}
	}
	if len(f.NotIn) > 0 {
		known, missing := knownLevels(idx, f.NotIn)
		w.notFound("criteria.geographicLevels.notIn", missing)
		if len(known) > 0 {
			w.add(fmt.Sprintf("%s NOT IN (%s)", col, placeholders(len(known))), known...)
		}
	}
}

func locationLabel(ref LocationRef) any {
	if ref.ID != "" {
		return ref.Level + ":" + ref.ID
	}
	return ref.Level + ":" + ref.Code
}

func locationsPredicate(idx *metaIndex, refs []LocationRef) (cond string, args []any, missing []any) {
	var parts []string
	for _, ref := range refs {
		l, ok := idx.resolveLocation(ref)
		if !ok {
			missing = append(missing, locationLabel(ref))
			continue
		}
		parts = append(parts, fmt.Sprintf("(%s = ? AND %s = ?)", quoteIdent(ColumnGeographicLevel), quoteIdent(ColumnLocationCode)))
		args = append(args, l.level, l.code)
	}
	if len(parts) == 0 {
		return "", nil, missing
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, missing
}

func compileLocations(idx *metaIndex, w *whereClause, f *LocationCriteria) {
	if f.Eq != nil {
		cond, args, missing := locationsPredicate(idx, []LocationRef{*f.Eq})
		w.notFound("criteria.locations.eq", missing)
		if cond == "" {
			w.never()
		} else {
			w.add(cond, args...)
		}
	}
	if f.NotEq != nil {
		cond, args, missing := locationsPredicate(idx, []LocationRef{*f.NotEq})
		w.notFound("criteria.locations.notEq", missing)
		if cond != "" {
			w.add("NOT "+cond, args...)
		}
	}
	if len(f.In) > 0 {
		cond, args, missing := locationsPredicate(idx, f.In)
		w.notFound("criteria.locations.in", missing)
		if cond == "" {
			w.never()
		} else {
			w.add(cond, args...)
		}
	}
	if len(f.NotIn) > 0 {
		cond, args, missing := locationsPredicate(idx, f.NotIn)
		w.notFound("criteria.locations.notIn", missing)
		if cond != "" {
			w.add("NOT "+cond, args...)
		}
	}
}

func timePeriodsPredicate(idx *metaIndex, refs []TimePeriodRef) (cond string, args []any, missing []any) {
	var parts []string
	for _, ref := range refs {
		if !idx.periods[ref] {
			missing = append(missing, ref.Period+"|"+ref.Code)
			continue
		}
		parts = append(parts, fmt.Sprintf("(%s = ? AND %s = ?)", quoteIdent(ColumnTimePeriod), quoteIdent(ColumnTimeIdentifier)))
		args = append(args, ref.Period, ref.Code)
	}
	if len(parts) == 0 {
		return "", nil, missing
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, missing
}

func compileTimePeriods(idx *metaIndex, w *whereClause, f *TimePeriodCriteria) {
	if f.Eq != nil {
		cond, args, missing := timePeriodsPredicate(idx, []TimePeriodRef{*f.Eq})
		w.notFound("criteria.timePeriods.eq", missing)
		if cond == "" {
			w.never()
		} else {
			w.add(cond, args...)
		}
	}
	if f.NotEq != nil {
		cond, args, missing := timePeriodsPredicate(idx, []TimePeriodRef{*f.NotEq})
		w.notFound("criteria.timePeriods.notEq", missing)
		if cond != "" {
			w.add("NOT "+cond, args...)
		}
	}
	if len(f.In) > 0 {
		cond, args, missing := timePeriodsPredicate(idx, f.In)
		w.notFound("criteria.timePeriods.in", missing)
		if cond == "" {
			w.never()
		} else {
			w.add(cond, args...)
		}
	}
	if len(f.NotIn) > 0 {
		cond, args, missing := timePeriodsPredicate(idx, f.NotIn)
		w.notFound("criteria.timePeriods.notIn", missing)
		if cond != "" {
			w.add("NOT "+cond, args...)
		}
	}
	// Range bounds compare periods of the same identifier only.
	if f.Gte != nil {
		w.add(fmt.Sprintf("(%s = ? AND %s >= ?)", quoteIdent(ColumnTimeIdentifier), quoteIdent(ColumnTimePeriod)), f.Gte.Code, f.Gte.Period)
	}
	if f.Lte != nil {
		w.add(fmt.Sprintf("(%s = ? AND %s <= ?)", quoteIdent(ColumnTimeIdentifier), quoteIdent(ColumnTimePeriod)), f.Lte.Code, f.Lte.Period)
	}
}
