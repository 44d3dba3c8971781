package dataio

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	astro "github.com/adcox/astrohelion-sub001"
)

func openMemory(t *testing.T) *Store {
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordFields(t *testing.T) {
	s := openMemory(t)
	r, err := s.NewRecord("test")
	if err != nil {
		t.Fatal(err)
	}
	data := []float64{1.5, -2e-300, 0, 3.141592653589793}
	if err := r.WriteField("data", data); err != nil {
		t.Fatal(err)
	}
	if err := r.WriteField("empty", nil); err != nil {
		t.Fatal(err)
	}
	read, err := r.ReadField("data")
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(read, data) {
		t.Fatalf("%v != %v", read, data)
	}
	if empty, err := r.ReadField("empty"); err != nil || len(empty) != 0 {
		t.Fatalf("empty field %v (%v)", empty, err)
	}
	if _, err := r.ReadField("missing"); !errors.Is(err, ErrFieldNotFound) {
		t.Fatalf("expected ErrFieldNotFound, got %v", err)
	}
}

func TestStoreRecords(t *testing.T) {
	s := openMemory(t)
	var trajectories []uuid.UUID
	for i := 0; i < 3; i++ {
		r, err := s.NewRecord("trajectory")
		if err != nil {
			t.Fatal(err)
		}
		trajectories = append(trajectories, r.ID)
	}
	if _, err := s.NewRecord("nodeset"); err != nil {
		t.Fatal(err)
	}
	ids, err := s.Records("trajectory")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Fatalf("%d trajectory records", len(ids))
	}
	for _, want := range trajectories {
		found := false
		for _, id := range ids {
			found = found || id == want
		}
		if !found {
			t.Fatalf("record %s not listed", want)
		}
	}
	if all, err := s.Records(""); err != nil || len(all) != 4 {
		t.Fatalf("%d records (%v)", len(all), err)
	}
	r, err := s.Record(trajectories[1])
	if err != nil || r.Kind != "trajectory" {
		t.Fatalf("record %+v (%v)", r, err)
	}
	if _, err := s.Record(uuid.New()); err == nil {
		t.Fatal("expected an error for an unknown record")
	}
}

func TestStoreTrajectory(t *testing.T) {
	sys, err := astro.NewSystem(astro.Earth, astro.Moon)
	if err != nil {
		t.Fatal(err)
	}
	m := astro.NewCR3BP(sys)
	tr, err := astro.Propagate([]float64{0.8234, 0, 0, 0, 0.12623175831259, 0}, 0, 1, m, astro.DefaultPropagatorConfig())
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	s, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	r, err := s.NewRecord("trajectory")
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Save(r); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopen from disk.
	s, err = Open(Config{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	r, err = s.Record(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := astro.LoadTrajectory(r, m)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != tr.Len() || !loaded.HasSTM() {
		t.Fatalf("loaded %s", loaded)
	}
	if !floats.Equal(loaded.Augmented(-1), tr.Augmented(-1)) {
		t.Fatal("final states differ")
	}
}

func TestOpenWithoutPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("a persistent store requires a path")
	}
}
