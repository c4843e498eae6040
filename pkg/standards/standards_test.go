package standards

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

const epsilon = 1e-9

func TestLoadMissingFileFallsBackToSynthetic(t *testing.T) {
	m := NewMatcher()
	m.Load(filepath.Join(t.TempDir(), "no-such-table.xlsx"))

	ds := m.GetValuesByGroup()
	if !ds.Synthetic {
		t.Fatal("expected the synthetic dataset for a missing file")
	}
	if len(ds.ADSUVR) != SyntheticADRows || len(ds.YCSUVR) != SyntheticYCRows {
		t.Fatalf("synthetic sizes = %d AD, %d YC; want %d and %d",
			len(ds.ADSUVR), len(ds.YCSUVR), SyntheticADRows, SyntheticYCRows)
	}

	// Evenly spaced endpoints are exact.
	if ds.ADSUVR[0] != 1.5 || ds.ADSUVR[len(ds.ADSUVR)-1] != 2.5 {
		t.Errorf("AD SUVR range = [%v, %v], want [1.5, 2.5]", ds.ADSUVR[0], ds.ADSUVR[len(ds.ADSUVR)-1])
	}
	if ds.YCSUVR[0] != 0.9 || ds.YCSUVR[len(ds.YCSUVR)-1] != 1.1 {
		t.Errorf("YC SUVR range = [%v, %v], want [0.9, 1.1]", ds.YCSUVR[0], ds.YCSUVR[len(ds.YCSUVR)-1])
	}
	for i, suvr := range ds.ADSUVR {
		if want := 100 * (suvr - 1.0); math.Abs(ds.ADCL[i]-want) > epsilon {
			t.Fatalf("ADCL[%d] = %v, want %v", i, ds.ADCL[i], want)
		}
	}
	for i, suvr := range ds.YCSUVR {
		if want := 100 * (suvr - 1.0); math.Abs(ds.YCCL[i]-want) > epsilon {
			t.Fatalf("YCCL[%d] = %v, want %v", i, ds.YCCL[i], want)
		}
	}
	if len(m.Diagnostics()) == 0 {
		t.Error("expected diagnostics describing the fallback")
	}
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCSVDirectly(t *testing.T) {
	path := writeCSV(t, "table.csv",
		"Group,SUVR,CL\n"+
			"AD,2.0,100\n"+
			"AD,2.2,120\n"+
			"YC,1.0,0\n"+
			"YC,1.1,10\n")

	m := NewMatcher()
	m.Load(path)

	ds := m.GetValuesByGroup()
	if ds.Synthetic {
		t.Fatalf("expected the parsed table, got synthetic (diagnostics %v)", m.Diagnostics())
	}
	if len(ds.ADSUVR) != 2 || len(ds.YCSUVR) != 2 {
		t.Fatalf("group sizes = %d AD, %d YC; want 2 and 2", len(ds.ADSUVR), len(ds.YCSUVR))
	}
	if ds.ADSUVR[0] != 2.0 || ds.ADCL[1] != 120 || ds.YCSUVR[1] != 1.1 || ds.YCCL[0] != 0 {
		t.Errorf("values misread: AD %v/%v, YC %v/%v", ds.ADSUVR, ds.ADCL, ds.YCSUVR, ds.YCCL)
	}
}

func TestLoadCSVSiblingOfExcelPath(t *testing.T) {
	// The .xlsx does not exist, but a same-named .csv next to it does.
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "reference.csv")
	content := "Group,SUVR,CL\nAD,2.0,100\nYC,1.0,0\n"
	if err := os.WriteFile(csvPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMatcher()
	m.Load(filepath.Join(dir, "reference.xlsx"))

	ds := m.GetValuesByGroup()
	if ds.Synthetic {
		t.Fatalf("expected the csv sibling to be used (diagnostics %v)", m.Diagnostics())
	}
	if len(ds.ADSUVR) != 1 || ds.ADSUVR[0] != 2.0 {
		t.Errorf("AD SUVR = %v, want [2]", ds.ADSUVR)
	}
}

func TestIdentifyColumnsByHeader(t *testing.T) {
	m := &Matcher{table: &Table{
		Headers: []string{"Subject", "Group", "SUVR (GAAIN)", "Centiloid"},
		Rows: [][]string{
			{"AD01", "AD", "2.1", "105"},
			{"YC01", "YC", "1.0", "1"},
		},
	}}

	cols := m.IdentifyColumns()
	if cols.SUVR != 2 {
		t.Errorf("SUVR column = %d, want 2", cols.SUVR)
	}
	if cols.CL != 3 {
		t.Errorf("CL column = %d, want 3", cols.CL)
	}
	if cols.Group != 0 && cols.Group != 1 {
		t.Errorf("group column = %d, want a text column containing AD and YC", cols.Group)
	}
	if cols.Subject != 0 {
		t.Errorf("subject column = %d, want 0", cols.Subject)
	}
}

func TestIdentifyColumnsByRange(t *testing.T) {
	// Anonymous headers: discovery must fall back to the value-range
	// heuristic. Column 1 means ~1.55 (SUVR band), column 2 means ~52
	// (CL band, outside the SUVR band).
	m := &Matcher{table: &Table{
		Headers: []string{"Cohort", "A", "B"},
		Rows: [][]string{
			{"AD", "2.1", "105"},
			{"AD", "2.0", "100"},
			{"YC", "1.1", "3"},
			{"YC", "1.0", "0"},
		},
	}}

	cols := m.IdentifyColumns()
	if cols.SUVR != 1 {
		t.Errorf("SUVR column = %d, want 1", cols.SUVR)
	}
	if cols.CL != 2 {
		t.Errorf("CL column = %d, want 2", cols.CL)
	}
}

func TestIdentifyColumnsHeaderScanTrustsNames(t *testing.T) {
	// The name scan takes headers at face value: a header matching a CL
	// keyword wins even when the same column was already picked for
	// SUVR. Only the range heuristic avoids the SUVR column.
	m := &Matcher{table: &Table{
		Headers: []string{"Group", "SUVR (CL scale)", "Value"},
		Rows: [][]string{
			{"AD", "2.1", "105"},
			{"YC", "1.0", "1"},
		},
	}}

	cols := m.IdentifyColumns()
	if cols.SUVR != 1 {
		t.Errorf("SUVR column = %d, want 1", cols.SUVR)
	}
	if cols.CL != 1 {
		t.Errorf("CL column = %d, want 1 (header names win over assignment)", cols.CL)
	}
}

func TestMidpointSplitWithoutGroupColumn(t *testing.T) {
	// No text columns at all: rows split at the midpoint, first half AD.
	m := &Matcher{table: &Table{
		Headers: []string{"SUVR", "CL"},
		Rows: [][]string{
			{"2.0", "100"},
			{"2.2", "120"},
			{"1.0", "0"},
			{"1.1", "10"},
		},
	}}

	ds := m.GetValuesByGroup()
	if ds.Synthetic {
		t.Fatalf("unexpected synthetic fallback (diagnostics %v)", m.diagnostics)
	}
	if len(ds.ADSUVR) != 2 || len(ds.YCSUVR) != 2 {
		t.Fatalf("group sizes = %d AD, %d YC; want 2 and 2", len(ds.ADSUVR), len(ds.YCSUVR))
	}
	if ds.ADSUVR[0] != 2.0 || ds.YCSUVR[0] != 1.0 {
		t.Errorf("midpoint split misassigned rows: AD %v, YC %v", ds.ADSUVR, ds.YCSUVR)
	}
}

func TestEmptyGroupFallsBackToSynthetic(t *testing.T) {
	// Subject IDs name AD subjects only: the split finds no YC rows,
	// so the extraction substitutes the synthetic arrays.
	m := &Matcher{table: &Table{
		Headers: []string{"ID", "SUVR", "CL"},
		Rows: [][]string{
			{"AD01", "2.0", "100"},
			{"AD02", "2.2", "120"},
		},
	}}

	ds := m.GetValuesByGroup()
	if !ds.Synthetic {
		t.Fatal("expected the synthetic dataset when a group is empty")
	}
}

func TestNarrowTableFallsBackToSynthetic(t *testing.T) {
	path := writeCSV(t, "narrow.csv", "SUVR\n2.0\n1.0\n")

	m := NewMatcher()
	m.Load(path)
	if ds := m.GetValuesByGroup(); !ds.Synthetic {
		t.Fatal("expected the synthetic dataset for a one-column table")
	}
}

func TestUnparseableCellsBecomeNaN(t *testing.T) {
	m := &Matcher{table: &Table{
		Headers: []string{"Group", "SUVR", "CL"},
		Rows: [][]string{
			{"AD", "2.0", "100"},
			{"AD", "", "110"},
			{"YC", "1.0", "0"},
		},
	}}

	ds := m.GetValuesByGroup()
	if ds.Synthetic {
		t.Fatalf("unexpected synthetic fallback (diagnostics %v)", m.diagnostics)
	}
	if !math.IsNaN(ds.ADSUVR[1]) {
		t.Errorf("empty cell = %v, want NaN", ds.ADSUVR[1])
	}
	if ds.ADCL[1] != 110 {
		t.Errorf("sibling cell = %v, want 110", ds.ADCL[1])
	}
}

func TestRecords(t *testing.T) {
	m := &Matcher{table: &Table{
		Headers: []string{"Subject", "Group", "SUVR", "CL"},
		Rows: [][]string{
			{"AD01", "AD", "2.1", "105"},
			{"YC01", "YC", "1.0", "1"},
		},
	}}

	records := m.Records()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].SubjectID != "AD01" || records[0].Group != "AD" {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1].ReferenceSUVR != 1.0 || records[1].ReferenceCL != 1 {
		t.Errorf("record 1 values = %v/%v", records[1].ReferenceSUVR, records[1].ReferenceCL)
	}
}
