package astrohelion

import (
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestNodesetFromInitialConditions(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	conf := DefaultPropagatorConfig()
	for _, distro := range []NodeDistribution{DistroTime, DistroArclength} {
		for n := 2; n <= 7; n++ {
			ns, err := FromInitialConditions(m, lyapunovIC, 0, lyapunovPeriod, n, distro, conf)
			if err != nil {
				t.Fatalf("%s %d: %s", distro, n, err)
			}
			if ns.Len() != n {
				t.Fatalf("%s: %d nodes instead of %d", distro, ns.Len(), n)
			}
			if !scalar.EqualWithinAbs(ns.TotalTOF(), lyapunovPeriod, 1e-12) {
				t.Fatalf("%s %d: total TOF %.15f", distro, n, ns.TotalTOF())
			}
			if !floats.Equal(ns.Node(0).State, lyapunovIC) {
				t.Fatalf("%s %d: first node %v", distro, n, ns.Node(0).State)
			}
			if ns.Node(-1).TOF != 0 {
				t.Fatalf("%s %d: last node has a TOF", distro, n)
			}
			for i, node := range ns.Nodes() {
				if node.Index != i {
					t.Fatalf("%s %d: node %d has index %d", distro, n, i, node.Index)
				}
				if i > 0 && node.Epoch <= ns.Node(i-1).Epoch {
					t.Fatalf("%s %d: epochs are not increasing", distro, n)
				}
			}
			if distro == DistroTime {
				for _, tof := range ns.TOFs() {
					if !scalar.EqualWithinAbs(tof, lyapunovPeriod/float64(n-1), 1e-12) {
						t.Fatalf("%d: uneven TOF %f", n, tof)
					}
				}
			}
		}
	}
}

func TestNodesetStatesOnTrajectory(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	conf := DefaultPropagatorConfig()
	ns, err := FromInitialConditions(m, lyapunovIC, 0, 2, 4, DistroTime, conf)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < ns.Len(); i++ {
		tr, err := Propagate(lyapunovIC, 0, ns.Node(i).Epoch, m, conf)
		if err != nil {
			t.Fatal(err)
		}
		if !floats.EqualApprox(tr.State(-1), ns.Node(i).State, 1e-9) {
			t.Fatalf("node %d %v is off the trajectory %v", i, ns.Node(i).State, tr.State(-1))
		}
	}
}

func TestNodesetLowThrustExtras(t *testing.T) {
	m := earthMoonLT(t, ProVelocity, 0)
	ns, err := FromInitialConditions(m, lyapunovIC, 0, 1, 3, DistroTime, DefaultPropagatorConfig())
	if err != nil {
		t.Fatal(err)
	}
	rate := m.Thrust().MassRate(m.System())
	for i, node := range ns.Nodes() {
		if len(node.Extras) != 1 || !scalar.EqualWithinAbs(node.Extras[0], 1+rate*node.Epoch, 1e-12) {
			t.Fatalf("node %d mass %v", i, node.Extras)
		}
	}
}

func TestNewNodesetErrors(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	if _, err := NewNodeset(m, nil); err == nil {
		t.Fatal("an empty nodeset is invalid")
	}
	if _, err := NewNodeset(m, []Node{{Index: 1, State: lyapunovIC}}); err == nil {
		t.Fatal("indexes must start at zero")
	}
	if _, err := NewNodeset(m, []Node{{Index: 0, State: lyapunovIC[:3]}}); err == nil {
		t.Fatal("states must have six components")
	}
	if _, err := NewNodeset(m, []Node{{Index: 0, State: lyapunovIC, TOF: 1}}); err == nil {
		t.Fatal("the last node must not have a TOF")
	}
	if _, err := NewNodeset(m, []Node{{Index: 0, State: lyapunovIC, Extras: []float64{1}}}); err == nil {
		t.Fatal("the CR3BP has no extras")
	}
	if _, err := FromInitialConditions(m, lyapunovIC, 0, 1, 1, DistroTime, DefaultPropagatorConfig()); err == nil {
		t.Fatal("a nodeset from a trajectory needs two nodes")
	}
}

func TestNodesetSaveLoad(t *testing.T) {
	m := NewCR3BP(earthMoon(t))
	ns, err := FromInitialConditions(m, lyapunovIC, 0, lyapunovPeriod, 5, DistroArclength, DefaultPropagatorConfig())
	if err != nil {
		t.Fatal(err)
	}
	fields := make(FieldMap)
	if err := ns.Save(fields); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadNodeset(fields, m)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != ns.Len() {
		t.Fatalf("%d nodes loaded instead of %d", loaded.Len(), ns.Len())
	}
	for i := 0; i < ns.Len(); i++ {
		a, b := ns.Node(i), loaded.Node(i)
		if !floats.Equal(a.State, b.State) || a.TOF != b.TOF || a.Epoch != b.Epoch {
			t.Fatalf("node %d differs: %+v != %+v", i, a, b)
		}
	}
	if !strings.Contains(loaded.String(), "5 nodes") {
		t.Fatalf("unexpected description %s", loaded)
	}

	sun, err := NewSystem(Sun, Earth)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := LoadNodeset(fields, NewCR3BP(sun)); err == nil {
		t.Fatal("loading in another system should fail")
	}
}
