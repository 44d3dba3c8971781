package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	astro "github.com/adcox/astrohelion-sub001"
)

var correctCmd = &cobra.Command{
	Use:   "correct",
	Short: "Correct the scenario initial conditions into a continuous (optionally periodic) trajectory",
	RunE:  runCorrect,
}

func runCorrect(cmd *cobra.Command, args []string) error {
	m, err := readModel()
	if err != nil {
		return err
	}
	ns, err := readSeed(m)
	if err != nil {
		return err
	}
	var cons []astro.Constraint
	if viper.GetBool("corrector.fix_initial") {
		cons = append(cons, astro.FixedState(0, ns.Node(0).State))
	}
	if viper.GetBool("corrector.periodic") {
		cons = append(cons, astro.PeriodicConstraints(m, ns.Len())...)
	}
	if viper.IsSet("corrector.jacobi") {
		cons = append(cons, astro.JacobiConstraint{Node: 0, Value: viper.GetFloat64("corrector.jacobi")})
	}
	res, err := astro.NewCorrector(m, readCorrectorConfig()).Correct(cmd.Context(), ns, cons)
	fmt.Println(res)
	if err != nil {
		return err
	}
	fmt.Println(res.Nodeset)
	if viper.GetBool("corrector.periodic") {
		mono, err := res.Monodromy()
		if err != nil {
			return err
		}
		pairs, err := astro.Eigen(mono)
		if err != nil {
			return err
		}
		for _, p := range pairs {
			fmt.Printf("  λ = %.9g\n", p.Value)
		}
		fmt.Printf("  stability indices: %.6g\n", astro.StabilityIndices(pairs))
	}
	if store, err := openStore(); err != nil {
		return err
	} else if store != nil {
		defer store.Close()
		rec, err := store.NewRecord("nodeset")
		if err != nil {
			return err
		}
		if err := res.Nodeset.Save(rec); err != nil {
			return err
		}
		fmt.Printf("stored nodeset %s\n", rec.ID)
	}
	return nil
}
