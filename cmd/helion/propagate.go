package main

import (
	"fmt"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	astro "github.com/adcox/astrohelion-sub001"
)

var propagateCmd = &cobra.Command{
	Use:   "propagate",
	Short: "Propagate the initial conditions of the scenario",
	RunE:  runPropagate,
}

func init() {
	propagateCmd.Flags().Bool("inertial", false, "export the trajectory in the inertial frame")
	viper.BindPFlag("output.inertial", propagateCmd.Flags().Lookup("inertial"))
}

// readEvents reads the events of the scenario, e.g. planes = ["y"] or p2_distance_km = 20000.
func readEvents(m astro.Model) ([]astro.Event, error) {
	var events []astro.Event
	stop := viper.GetBool("events.stop")
	for _, name := range viper.GetStringSlice("events.planes") {
		axis := map[string]int{"x": 0, "y": 1, "z": 2}
		a, ok := axis[name]
		if !ok {
			return nil, fmt.Errorf("events.planes: unknown axis %s", name)
		}
		events = append(events, astro.NewPlaneEvent(a, 0, 0, stop))
	}
	if viper.IsSet("events.jacobi") {
		events = append(events, astro.JacobiEvent{Value: viper.GetFloat64("events.jacobi"), Stop: stop})
	}
	if viper.IsSet("events.mass") {
		if m.ExtraDim() == 0 {
			return nil, fmt.Errorf("events.mass: %s has no mass", m.Variant())
		}
		events = append(events, astro.MassEvent{Value: viper.GetFloat64("events.mass"), Dir: -1, Stop: stop})
	}
	for i, key := range []string{"events.p1_distance_km", "events.p2_distance_km"} {
		if viper.IsSet(key) {
			d := viper.GetFloat64(key) / m.System().CharL
			events = append(events, astro.DistanceEvent{Primary: i, Distance: d, Stop: stop})
		}
	}
	if viper.IsSet("events.p1_angle") {
		angle := astro.Deg2rad(viper.GetFloat64("events.p1_angle"))
		events = append(events, astro.AngleEvent{Primary: 0, Angle: angle, Stop: stop})
	}
	return events, nil
}

func runPropagate(cmd *cobra.Command, args []string) error {
	m, err := readModel()
	if err != nil {
		return err
	}
	ic, t0, tof, err := readIC()
	if err != nil {
		return err
	}
	conf := readPropagatorConfig()
	conf.Logger = logger
	if conf.Events, err = readEvents(m); err != nil {
		return err
	}
	tr, err := astro.Propagate(ic, t0, tof, m, conf)
	if err != nil {
		return err
	}
	fmt.Println(tr)
	for _, o := range tr.Events() {
		fmt.Printf("  %s: %+.12f\n", o, o.State[:6])
	}

	f, err := outputFile("trajectory.csv")
	if err != nil {
		return err
	}
	defer f.Close()
	if err := astro.ExportCSV(f, tr, viper.GetBool("output.inertial")); err != nil {
		return err
	}
	if store, err := openStore(); err != nil {
		return err
	} else if store != nil {
		defer store.Close()
		rec, err := store.NewRecord("trajectory")
		if err != nil {
			return err
		}
		if err := tr.Save(rec); err != nil {
			return err
		}
		fmt.Printf("stored trajectory %s\n", rec.ID)
	}

	if viper.GetBool("output.plot") {
		xs, ys, jc := make([]float64, tr.Len()), make([]float64, tr.Len()), make([]float64, tr.Len())
		for i := 0; i < tr.Len(); i++ {
			s := tr.State(i)
			xs[i], ys[i] = s[0], s[1]
			jc[i] = tr.Jacobi(i) - tr.Jacobi(0)
		}
		fmt.Println(asciigraph.PlotMany([][]float64{finiteOnly(xs), finiteOnly(ys)},
			asciigraph.Height(12), asciigraph.Width(80),
			asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
			asciigraph.Caption("x (blue) and y (red) over the samples")))
		fmt.Println(asciigraph.Plot(finiteOnly(jc), asciigraph.Height(8), asciigraph.Width(80), asciigraph.Caption("Jacobi constant drift")))
	}
	return nil
}
