package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	astro "github.com/adcox/astrohelion-sub001"
)

var manifoldCmd = &cobra.Command{
	Use:   "manifold",
	Short: "Propagate the invariant manifolds of the periodic orbit of the scenario",
	RunE:  runManifold,
}

func runManifold(cmd *cobra.Command, args []string) error {
	m, err := readModel()
	if err != nil {
		return err
	}
	ic, _, period, err := readIC()
	if err != nil {
		return err
	}
	dir := astro.Unstable
	if viper.GetString("manifold.direction") == "stable" {
		dir = astro.Stable
	}
	conf := astro.ManifoldConfig{
		Direction:  dir,
		Branch:     viper.GetInt("manifold.branch"),
		StepOff:    viper.GetFloat64("manifold.step_off"),
		Count:      viper.GetInt("manifold.count"),
		TOF:        viper.GetFloat64("manifold.tof"),
		Propagator: readPropagatorConfig(),
	}
	arcs, err := astro.Manifolds(m, ic, period, conf)
	if err != nil {
		return err
	}
	for i, arc := range arcs {
		f, err := outputFile(fmt.Sprintf("manifold-%s-%03d.csv", dir, i))
		if err != nil {
			return err
		}
		err = astro.ExportCSV(f, arc, false)
		f.Close()
		if err != nil {
			return err
		}
		fmt.Println(arc)
	}
	return nil
}
