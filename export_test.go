package astrohelion

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestExportCSV(t *testing.T) {
	sys := earthMoon(t).WithEpoch(time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC))
	m := NewCR3BP(sys)
	tr, err := Propagate(lyapunovIC, 0, 0.5, m, DefaultPropagatorConfig())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := ExportCSV(&buf, tr, false); err != nil {
		t.Fatal(err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != tr.Len()+1 {
		t.Fatalf("%d records for %d samples", len(records), tr.Len())
	}
	header := records[0]
	if len(header) != 9 || header[0] != "t" || header[7] != "jacobi" || header[8] != "jd" {
		t.Fatalf("header %v", header)
	}
	if jd, _ := strconv.ParseFloat(records[1][8], 64); jd != 2451545 {
		t.Fatalf("first Julian date %s", records[1][8])
	}
	last, _ := strconv.ParseFloat(records[len(records)-1][8], 64)
	if days := sys.CharT * 0.5 / 86400; !scalar.EqualWithinAbs(last-2451545, days, 1e-6) {
		t.Fatalf("last Julian date %f", last)
	}
	if x, _ := strconv.ParseFloat(records[1][1], 64); x != lyapunovIC[0] {
		t.Fatalf("first x %s", records[1][1])
	}

	buf.Reset()
	noEpoch, err := Propagate(lyapunovIC, 0, 0.5, NewCR3BP(earthMoon(t)), DefaultPropagatorConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := ExportCSV(&buf, noEpoch, true); err != nil {
		t.Fatal(err)
	}
	records, err = csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records[0]) != 8 {
		t.Fatalf("no Julian date without an epoch: %v", records[0])
	}
}

func TestTrajectorySaveLoad(t *testing.T) {
	m := earthMoonLT(t, ProVelocity, 0)
	tr, err := Propagate(lyapunovIC, 0, 0.5, m, DefaultPropagatorConfig())
	if err != nil {
		t.Fatal(err)
	}
	fields := make(FieldMap)
	if err := tr.Save(fields); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadTrajectory(fields, m)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != tr.Len() || !loaded.HasSTM() {
		t.Fatalf("loaded %s", loaded)
	}
	for _, i := range []int{0, tr.Len() / 2, -1} {
		if !floats.Equal(loaded.Augmented(i), tr.Augmented(i)) || loaded.Time(i) != tr.Time(i) {
			t.Fatalf("sample %d differs", i)
		}
	}
	fields[FieldExtras] = fields[FieldExtras][1:]
	if _, err := LoadTrajectory(fields, m); err == nil {
		t.Fatal("inconsistent fields should not load")
	}
}
