// Package resultview keeps the sort, filter and paging state of the cleansing
// results grid and persists the user's choices in a session store.
package resultview

import (
	"cmp"
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cleansing-engine/pkg/models"
)

// Session storage keys, stored as "<prefix>:<key>".
const (
	KeySortColumn     = "sortColumn"
	KeySortDescending = "sortDescending"
	KeyFilterParams   = "filterParams"
	KeyPageSize       = "pageSize"
)

// Finding-level columns. Filters on these hide individual findings rather
// than whole records.
const (
	ColumnField   = "field"
	ColumnMessage = "message"
)

// DefaultPageSize is used until a page size is set or restored.
const DefaultPageSize = 25

// Column describes one column of the results grid.
type Column struct {
	Name     string `json:"sort_column"`
	Title    string `json:"title"`
	Sortable bool   `json:"sortable"`
}

// DefaultColumns returns the columns shown in the cleansing results grid.
func DefaultColumns() []Column {
	return []Column{
		{Name: "address_line_1", Title: "Address Line 1", Sortable: true},
		{Name: "pm_property_id", Title: "PM Property ID", Sortable: true},
		{Name: "tax_lot_id", Title: "Tax Lot ID", Sortable: true},
		{Name: "custom_id_1", Title: "Custom ID", Sortable: true},
		{Name: ColumnField, Title: "Field", Sortable: false},
		{Name: ColumnMessage, Title: "Error Message", Sortable: false},
	}
}

// View is the sort/filter/paging state of one results grid. It is not safe
// for concurrent use; each grid owns its View.
type View struct {
	prefix  string
	store   Store
	columns map[string]Column
	logger  *zap.Logger

	sortColumn     string
	sortDescending bool
	filterParams   map[string]string
	pageSize       int
}

// New creates a view whose preferences are persisted under prefix. A nil store
// disables persistence.
func New(prefix string, store Store, columns []Column, logger *zap.Logger) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	byName := make(map[string]Column, len(columns))
	for _, c := range columns {
		byName[c.Name] = c
	}
	return &View{
		prefix:       prefix,
		store:        store,
		columns:      byName,
		logger:       logger.Named("resultview"),
		filterParams: map[string]string{},
		pageSize:     DefaultPageSize,
	}
}

// State returns a copy of the persisted view state.
func (v *View) State() models.ViewState {
	params := make(map[string]string, len(v.filterParams))
	for k, val := range v.filterParams {
		params[k] = val
	}
	return models.ViewState{
		SortColumn:     v.sortColumn,
		SortDescending: v.sortDescending,
		FilterParams:   params,
		PageSize:       v.pageSize,
	}
}

// ============================================================================
// Sorting
// ============================================================================

// SortBy handles a click on a column header. Clicking the current sort column
// flips the direction; clicking another column sorts it descending. Columns
// that are unknown or not sortable are ignored. Returns true if the state changed.
func (v *View) SortBy(ctx context.Context, column string) bool {
	col, ok := v.columns[column]
	if !ok || !col.Sortable {
		return false
	}

	if v.sortColumn == column {
		v.sortDescending = !v.sortDescending
	} else {
		v.sortColumn = column
		v.sortDescending = true
	}

	v.set(ctx, KeySortColumn, v.sortColumn)
	v.set(ctx, KeySortDescending, strconv.FormatBool(v.sortDescending))
	return true
}

// SortedClass returns the CSS class for a column header.
func (v *View) SortedClass(column string) string {
	if v.sortColumn != column {
		return ""
	}
	if v.sortDescending {
		return "sorted sort_desc"
	}
	return "sorted sort_asc"
}

// Sort orders groups in place by the current sort column. Missing attributes
// sort as empty strings. The sort is stable.
func (v *View) Sort(groups []*models.RecordValidationGroup) {
	if v.sortColumn == "" {
		return
	}
	column := v.sortColumn
	desc := v.sortDescending
	sort.SliceStable(groups, func(i, j int) bool {
		a, _ := groups[i].Attribute(column)
		b, _ := groups[j].Attribute(column)
		if desc {
			return compareValues(a, b) > 0
		}
		return compareValues(a, b) < 0
	})
}

// compareValues ranks numbers before everything else. Numbers compare
// numerically, other values lexically ignoring case.
func compareValues(a, b string) int {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(af, bf)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// ============================================================================
// Filtering
// ============================================================================

// ApplyFilters recomputes visibility for every group and finding. All records
// and findings are made visible, then each (column, value) pair is applied as
// a case-insensitive substring filter; pairs combine with AND. Empty values
// are dropped. The resulting params are persisted.
func (v *View) ApplyFilters(ctx context.Context, groups []*models.RecordValidationGroup, params map[string]string) {
	v.filterParams = sanitizeParams(params)
	v.filter(groups)

	data, err := json.Marshal(v.filterParams)
	if err != nil {
		v.logger.Warn("Failed to encode filter params", zap.Error(err))
		return
	}
	v.set(ctx, KeyFilterParams, string(data))
}

// Refilter reapplies the current filter params without persisting them.
func (v *View) Refilter(groups []*models.RecordValidationGroup) {
	v.filter(groups)
}

func (v *View) filter(groups []*models.RecordValidationGroup) {
	for _, g := range groups {
		g.Visible = true
		for _, f := range g.Findings {
			f.Visible = true
		}
	}

	columns := make([]string, 0, len(v.filterParams))
	for column := range v.filterParams {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	for _, column := range columns {
		needle := strings.ToLower(v.filterParams[column])
		for _, g := range groups {
			if !g.Visible {
				continue
			}
			switch column {
			case ColumnField, ColumnMessage:
				for _, f := range g.Findings {
					if !strings.Contains(strings.ToLower(findingValue(f, column)), needle) {
						f.Visible = false
					}
				}
			default:
				attr, ok := g.Attribute(column)
				if !ok || !strings.Contains(strings.ToLower(attr), needle) {
					g.Visible = false
				}
			}
		}
	}
}

func findingValue(f *models.ValidationFinding, column string) string {
	if column == ColumnField {
		return f.Field
	}
	return f.Message
}

func sanitizeParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, val := range params {
		if k == "" || strings.TrimSpace(val) == "" {
			continue
		}
		out[k] = val
	}
	return out
}

// ============================================================================
// Paging
// ============================================================================

// SetPageSize changes and persists the number of records per page.
func (v *View) SetPageSize(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	v.pageSize = n
	v.set(ctx, KeyPageSize, strconv.Itoa(n))
}

// Visible returns the visible groups in their current order.
func Visible(groups []*models.RecordValidationGroup) []*models.RecordValidationGroup {
	out := make([]*models.RecordValidationGroup, 0, len(groups))
	for _, g := range groups {
		if g.Visible {
			out = append(out, g)
		}
	}
	return out
}

// Page returns page n (1-based) of the visible groups and the total number of pages.
func (v *View) Page(groups []*models.RecordValidationGroup, n int) ([]*models.RecordValidationGroup, int) {
	visible := Visible(groups)
	pages := (len(visible) + v.pageSize - 1) / v.pageSize
	if pages == 0 {
		pages = 1
	}
	if n < 1 {
		n = 1
	}
	start := (n - 1) * v.pageSize
	if start >= len(visible) {
		return []*models.RecordValidationGroup{}, pages
	}
	end := start + v.pageSize
	if end > len(visible) {
		end = len(visible)
	}
	return visible[start:end], pages
}

// ============================================================================
// Persistence
// ============================================================================

// Restore loads persisted preferences. Keys that are absent, unreadable or
// malformed leave the corresponding field at its current value.
func (v *View) Restore(ctx context.Context) {
	if col, ok := v.get(ctx, KeySortColumn); ok {
		if c, known := v.columns[col]; known && c.Sortable {
			v.sortColumn = col
		} else {
			v.logger.Warn("Ignoring unsortable sort column", zap.String("value", col))
		}
	}
	if raw, ok := v.get(ctx, KeySortDescending); ok {
		if desc, err := strconv.ParseBool(raw); err == nil {
			v.sortDescending = desc
		} else {
			v.logger.Warn("Ignoring malformed sort direction", zap.String("value", raw))
		}
	}
	if raw, ok := v.get(ctx, KeyFilterParams); ok {
		var params map[string]string
		if err := json.Unmarshal([]byte(raw), &params); err == nil {
			v.filterParams = sanitizeParams(params)
		} else {
			v.logger.Warn("Ignoring malformed filter params", zap.Error(err))
		}
	}
	if raw, ok := v.get(ctx, KeyPageSize); ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			v.pageSize = n
		} else {
			v.logger.Warn("Ignoring malformed page size", zap.String("value", raw))
		}
	}
}

func (v *View) key(name string) string {
	return v.prefix + ":" + name
}

func (v *View) get(ctx context.Context, name string) (string, bool) {
	if v.store == nil {
		return "", false
	}
	val, ok, err := v.store.Get(ctx, v.key(name))
	if err != nil {
		v.logger.Warn("Failed to read view preference",
			zap.String("key", v.key(name)),
			zap.Error(err))
		return "", false
	}
	return val, ok
}

func (v *View) set(ctx context.Context, name, value string) {
	if v.store == nil {
		return
	}
	if err := v.store.Set(ctx, v.key(name), value); err != nil {
		v.logger.Warn("Failed to persist view preference",
			zap.String("key", v.key(name)),
			zap.Error(err))
	}
}
