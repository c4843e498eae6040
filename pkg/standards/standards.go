// Package standards loads the external reference dataset (the published
// SUVR/CL table) and extracts per-group reference arrays.
//
// Column and group discovery is heuristic by design: the table comes
// from third parties and header spelling varies. The discovery policy
// is an ordered chain of named-match-then-range-match strategies and
// never guesses beyond it. When the file is unreadable or the chain
// fails, a deterministic synthetic dataset is substituted so downstream
// statistics can still run; every substitution is surfaced in the
// dataset diagnostics.
package standards

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/floats"

	"clquant/internal/models"
)

// Synthetic dataset dimensions and ranges (fixed by the reference
// GAAIN table layout: 44 AD subjects, 34 young controls).
const (
	SyntheticADRows = 44
	SyntheticYCRows = 34

	syntheticADLow  = 1.5
	syntheticADHigh = 2.5
	syntheticYCLow  = 0.9
	syntheticYCHigh = 1.1
)

// Physiological ranges used by the column-discovery heuristics.
const (
	suvrMeanLow  = 0.8
	suvrMeanHigh = 3.0
	clMeanLow    = -30.0
	clMeanHigh   = 200.0
)

var (
	suvrKeywords = []string{"SUVR", "SUV", "RATIO"}
	clKeywords   = []string{"CL", "CENTILOID"}

	ycGroupPattern   = regexp.MustCompile(`YC|CONTROL|NORMAL`)
	subjectIDPattern = regexp.MustCompile(`^(AD|YC|PT|SUB)\d+`)
)

// Table is a parsed tabular dataset: one header row plus string cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NumCols returns the column count, taken from the header row.
func (t *Table) NumCols() int { return len(t.Headers) }

// cell returns the cell at (row, col), empty when the row is ragged.
func (t *Table) cell(row, col int) string {
	if col >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

// Columns identifies the SUVR, CL, group and subject-ID columns.
// Indices are -1 when a column could not be found.
type Columns struct {
	SUVR    int
	CL      int
	Group   int
	Subject int
}

// Matcher loads a reference table and extracts grouped values from it.
type Matcher struct {
	table       *Table
	synthetic   bool
	diagnostics []string
}

// NewMatcher returns an empty matcher; call Load before extracting.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Table returns the loaded (or synthesized) table.
func (m *Matcher) Table() *Table { return m.table }

// Diagnostics returns the load and discovery messages gathered so far.
func (m *Matcher) Diagnostics() []string { return m.diagnostics }

// Load reads the reference table at path. It tries the primary Excel
// parser, then the alternate Excel engine, then a same-named .csv
// sibling; when every parser fails, or the parsed table is empty or has
// fewer than 2 columns, it substitutes the deterministic synthetic
// table. Load itself never fails.
func (m *Matcher) Load(path string) {
	table, err := parseExcelize(path)
	if err != nil {
		m.diagnostics = append(m.diagnostics, fmt.Sprintf("primary parser failed for %s: %v", path, err))
		table, err = parseTealeg(path)
	}
	if err != nil {
		m.diagnostics = append(m.diagnostics, fmt.Sprintf("alternate parser failed for %s: %v", path, err))
		sibling := csvSibling(path)
		table, err = parseCSV(sibling)
		if err != nil {
			m.diagnostics = append(m.diagnostics, fmt.Sprintf("csv fallback failed for %s: %v", sibling, err))
		}
	}

	if err == nil && (len(table.Rows) == 0 || table.NumCols() < 2) {
		m.diagnostics = append(m.diagnostics, fmt.Sprintf("parsed table from %s is unusable (%d rows, %d columns)",
			path, len(table.Rows), table.NumCols()))
		err = fmt.Errorf("unusable table")
	}

	if err != nil {
		m.table = syntheticTable()
		m.synthetic = true
		m.diagnostics = append(m.diagnostics, "using deterministic synthetic reference table")
		return
	}

	m.table = table
	m.diagnostics = append(m.diagnostics,
		fmt.Sprintf("loaded reference table %s: %d rows, columns %v", path, len(table.Rows), table.Headers))
}

// IdentifyColumns locates the SUVR and CL value columns plus the
// optional group and subject-ID columns. For each value target the
// header keywords are scanned first (case-insensitive substrings); when
// no header matches, the first numeric column whose mean falls in the
// known physiological range is taken. Only the range heuristic excludes
// the column already assigned to SUVR; the name scan trusts headers
// as written.
func (m *Matcher) IdentifyColumns() Columns {
	cols := Columns{SUVR: -1, CL: -1, Group: -1, Subject: -1}
	if m.table == nil {
		return cols
	}

	cols.Group = m.identifyGroupColumn()
	cols.Subject = m.identifySubjectColumn()

	cols.SUVR = m.matchHeader(suvrKeywords)
	if cols.SUVR < 0 {
		cols.SUVR = m.matchRange(suvrMeanLow, suvrMeanHigh, -1)
	}

	cols.CL = m.matchHeader(clKeywords)
	if cols.CL < 0 {
		cols.CL = m.matchRange(clMeanLow, clMeanHigh, cols.SUVR)
	}

	return cols
}

func (m *Matcher) matchHeader(keywords []string) int {
	for i, h := range m.table.Headers {
		if !m.isNumericColumn(i) {
			continue
		}
		upper := strings.ToUpper(h)
		for _, kw := range keywords {
			if strings.Contains(upper, kw) {
				return i
			}
		}
	}
	return -1
}

func (m *Matcher) matchRange(low, high float64, exclude int) int {
	for i := 0; i < m.table.NumCols(); i++ {
		if i == exclude || !m.isNumericColumn(i) {
			continue
		}
		mean, ok := finiteMean(m.numericColumn(i))
		if ok && mean >= low && mean <= high {
			return i
		}
	}
	return -1
}

// identifyGroupColumn scans non-numeric columns for one whose values
// contain both an AD member and a YC/CONTROL/NORMAL member.
func (m *Matcher) identifyGroupColumn() int {
	for i := 0; i < m.table.NumCols(); i++ {
		if m.isNumericColumn(i) {
			continue
		}
		hasAD, hasYC := false, false
		for r := range m.table.Rows {
			v := strings.ToUpper(m.cellAt(r, i))
			if strings.Contains(v, "AD") {
				hasAD = true
			}
			if ycGroupPattern.MatchString(v) {
				hasYC = true
			}
		}
		if hasAD && hasYC {
			return i
		}
	}
	return -1
}

// identifySubjectColumn scans non-numeric columns for subject-ID-like
// values (AD12, YC03, PT7, SUB44, ...).
func (m *Matcher) identifySubjectColumn() int {
	for i := 0; i < m.table.NumCols(); i++ {
		if m.isNumericColumn(i) {
			continue
		}
		for r := range m.table.Rows {
			if subjectIDPattern.MatchString(strings.ToUpper(m.cellAt(r, i))) {
				return i
			}
		}
	}
	return -1
}

// GetValuesByGroup splits the reference rows into AD and YC arrays.
// The split strategy is ordered: group column, then subject-ID column,
// then row-index midpoint. An empty resulting group, or missing value
// columns, falls back to the synthetic arrays.
func (m *Matcher) GetValuesByGroup() *models.StandardDataset {
	if m.table == nil || m.synthetic {
		return m.syntheticDataset()
	}

	cols := m.IdentifyColumns()
	if cols.SUVR < 0 || cols.CL < 0 {
		m.diagnostics = append(m.diagnostics, "could not identify SUVR and CL columns")
		return m.syntheticDataset()
	}

	var adRows, ycRows []int
	switch {
	case cols.Group >= 0:
		for r := range m.table.Rows {
			v := strings.ToUpper(m.cellAt(r, cols.Group))
			if strings.Contains(v, "AD") {
				adRows = append(adRows, r)
			}
			if ycGroupPattern.MatchString(v) {
				ycRows = append(ycRows, r)
			}
		}
	case cols.Subject >= 0:
		for r := range m.table.Rows {
			v := strings.ToUpper(m.cellAt(r, cols.Subject))
			if strings.Contains(v, "AD") {
				adRows = append(adRows, r)
			}
			if strings.Contains(v, "YC") {
				ycRows = append(ycRows, r)
			}
		}
	default:
		mid := len(m.table.Rows) / 2
		for r := range m.table.Rows {
			if r < mid {
				adRows = append(adRows, r)
			} else {
				ycRows = append(ycRows, r)
			}
		}
		m.diagnostics = append(m.diagnostics, "no group or subject column; splitting rows at midpoint")
	}

	if len(adRows) == 0 || len(ycRows) == 0 {
		m.diagnostics = append(m.diagnostics, "one or both groups are empty; using synthetic values")
		return m.syntheticDataset()
	}

	ds := &models.StandardDataset{Diagnostics: m.diagnostics}
	for _, r := range adRows {
		ds.ADSUVR = append(ds.ADSUVR, parseCell(m.cellAt(r, cols.SUVR)))
		ds.ADCL = append(ds.ADCL, parseCell(m.cellAt(r, cols.CL)))
	}
	for _, r := range ycRows {
		ds.YCSUVR = append(ds.YCSUVR, parseCell(m.cellAt(r, cols.SUVR)))
		ds.YCCL = append(ds.YCCL, parseCell(m.cellAt(r, cols.CL)))
	}
	return ds
}

// Records returns the table rows as typed records using the identified
// columns. Rows are returned in table order; value cells that fail to
// parse come back as NaN.
func (m *Matcher) Records() []models.StandardRecord {
	if m.table == nil {
		return nil
	}
	cols := m.IdentifyColumns()
	if cols.SUVR < 0 || cols.CL < 0 {
		return nil
	}
	records := make([]models.StandardRecord, 0, len(m.table.Rows))
	for r := range m.table.Rows {
		rec := models.StandardRecord{
			ReferenceSUVR: parseCell(m.cellAt(r, cols.SUVR)),
			ReferenceCL:   parseCell(m.cellAt(r, cols.CL)),
		}
		if cols.Subject >= 0 {
			rec.SubjectID = m.cellAt(r, cols.Subject)
		}
		if cols.Group >= 0 {
			rec.Group = m.cellAt(r, cols.Group)
		}
		records = append(records, rec)
	}
	return records
}

func (m *Matcher) cellAt(row, col int) string { return m.table.cell(row, col) }

// isNumericColumn reports whether every non-empty cell in the column
// parses as a number and at least one cell does.
func (m *Matcher) isNumericColumn(col int) bool {
	parsed := 0
	for r := range m.table.Rows {
		v := m.cellAt(r, col)
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
		parsed++
	}
	return parsed > 0
}

func (m *Matcher) numericColumn(col int) []float64 {
	vals := make([]float64, 0, len(m.table.Rows))
	for r := range m.table.Rows {
		vals = append(vals, parseCell(m.cellAt(r, col)))
	}
	return vals
}

// parseCell converts a cell to float64, NaN when empty or unparseable.
// NaN entries are dropped later by the joint finite masks downstream.
func parseCell(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// finiteMean averages the finite entries only, like a NaN-aware mean.
func finiteMean(vals []float64) (float64, bool) {
	sum, n := 0.0, 0
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func (m *Matcher) syntheticDataset() *models.StandardDataset {
	ds := syntheticValues()
	ds.Diagnostics = m.diagnostics
	return ds
}

// syntheticValues builds the deterministic fallback arrays: 44 AD rows
// with SUVR evenly spaced over [1.5, 2.5] and 34 YC rows over
// [0.9, 1.1], with CL = 100*(SUVR - 1.0) in both groups.
func syntheticValues() *models.StandardDataset {
	ds := &models.StandardDataset{
		ADSUVR:    floats.Span(make([]float64, SyntheticADRows), syntheticADLow, syntheticADHigh),
		YCSUVR:    floats.Span(make([]float64, SyntheticYCRows), syntheticYCLow, syntheticYCHigh),
		Synthetic: true,
	}
	ds.ADCL = make([]float64, len(ds.ADSUVR))
	for i, v := range ds.ADSUVR {
		ds.ADCL[i] = 100 * (v - 1.0)
	}
	ds.YCCL = make([]float64, len(ds.YCSUVR))
	for i, v := range ds.YCSUVR {
		ds.YCCL[i] = 100 * (v - 1.0)
	}
	return ds
}

// syntheticTable renders the synthetic values as a table so that the
// discovery heuristics behave identically on real and fallback data.
func syntheticTable() *Table {
	ds := syntheticValues()
	t := &Table{Headers: []string{"Group", "SUVR", "CL"}}
	for i := range ds.ADSUVR {
		t.Rows = append(t.Rows, []string{"AD",
			strconv.FormatFloat(ds.ADSUVR[i], 'g', -1, 64),
			strconv.FormatFloat(ds.ADCL[i], 'g', -1, 64)})
	}
	for i := range ds.YCSUVR {
		t.Rows = append(t.Rows, []string{"YC",
			strconv.FormatFloat(ds.YCSUVR[i], 'g', -1, 64),
			strconv.FormatFloat(ds.YCCL[i], 'g', -1, 64)})
	}
	return t
}

// parseExcelize reads the first sheet of an Excel workbook with the
// primary engine.
func parseExcelize(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	return tableFromRows(rows)
}

// parseTealeg reads the first sheet with the alternate Excel engine,
// which accepts some older workbooks the primary engine rejects.
func parseTealeg(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, err
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, c := range row.Cells {
			cells = append(cells, c.String())
		}
		rows = append(rows, cells)
	}
	return tableFromRows(rows)
}

func parseCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return tableFromRows(rows)
}

func tableFromRows(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows")
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	return &Table{Headers: headers, Rows: rows[1:]}, nil
}

// csvSibling maps any path to its same-named .csv neighbor.
func csvSibling(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".csv"
}
