package dataio

import (
	"bytes"
	"strings"
	"testing"

	astro "github.com/adcox/astrohelion-sub001"
)

func TestCatalog(t *testing.T) {
	sys, err := astro.NewSystem(astro.Earth, astro.Moon)
	if err != nil {
		t.Fatal(err)
	}
	fam := &astro.Family{
		Parameter:   astro.ParamJacobi,
		Termination: astro.StepUnderflow,
		Members: []astro.FamilyMember{
			{
				IC:          []float64{0.8234, 0, 0, 0, 0.126, 0},
				TOF:         2.74,
				Jacobi:      3.17,
				Param:       3.17,
				Eigenvalues: []complex128{2361.6, 1 / 2361.6, complex(0.9, 0.43), complex(0.9, -0.43), 1, 1},
				Stability:   []float64{1180.8, 0.9, 1},
				XWidth:      0.1,
				YWidth:      0.2,
				System:      sys,
			},
			{IC: []float64{0.8230, 0, 0, 0, 0.13, 0}, TOF: 2.75, Jacobi: 3.16, Param: 3.16, System: sys},
		},
	}
	cat := NewCatalog(fam, []string{"first"})
	if cat.System != "Earth-Moon" || cat.Mu != sys.Mu || cat.Termination != astro.StepUnderflow.String() {
		t.Fatalf("catalog header %+v", cat)
	}
	if cat.Members[0].Eigenvalues[3] != [2]float64{0.9, -0.43} {
		t.Fatalf("eigenvalue %v", cat.Members[0].Eigenvalues[3])
	}
	if cat.Members[0].Record != "first" || cat.Members[1].Record != "" {
		t.Fatal("records should only be set when provided")
	}

	var buf bytes.Buffer
	if err := WriteCatalog(&buf, cat); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "parameter: jacobi") {
		t.Fatalf("unexpected YAML:\n%s", buf.String())
	}
	read, err := ReadCatalog(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(read.Members) != 2 || read.Members[1].Period != 2.75 || read.Members[0].Widths[1] != 0.2 {
		t.Fatalf("read %+v", read)
	}
	if _, err := ReadCatalog(strings.NewReader("members: [")); err == nil {
		t.Fatal("expected an error for invalid YAML")
	}
}
