package main

import (
	"fmt"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	astro "github.com/adcox/astrohelion-sub001"
	"github.com/adcox/astrohelion-sub001/dataio"
)

var familyCmd = &cobra.Command{
	Use:   "family",
	Short: "Continue a family of periodic orbits from the scenario seed",
	RunE:  runFamily,
}

func runFamily(cmd *cobra.Command, args []string) error {
	m, err := readModel()
	if err != nil {
		return err
	}
	seed, err := readSeed(m)
	if err != nil {
		return err
	}
	param, err := astro.FamilyParameterFromString(viper.GetString("family.parameter"))
	if err != nil {
		return err
	}
	conf := astro.DefaultContinuationConfig(param, viper.GetFloat64("family.step"))
	if viper.IsSet("family.members") {
		conf.MaxMembers = viper.GetInt("family.members")
	}
	if viper.IsSet("family.max_step") {
		conf.MaxStep = viper.GetFloat64("family.max_step")
	}
	if viper.IsSet("family.min_step") {
		conf.MinStep = viper.GetFloat64("family.min_step")
	}
	conf.PseudoArclength = viper.GetBool("family.pseudo_arclength")
	conf.Corrector = readCorrectorConfig()
	conf.Logger = logger
	cont, err := astro.NewContinuation(m, conf)
	if err != nil {
		return err
	}
	fam, err := cont.Run(cmd.Context(), seed)
	if err != nil {
		return err
	}
	fmt.Printf("%d members (%s)\n", len(fam.Members), fam.Termination)

	var records []string
	if store, err := openStore(); err != nil {
		return err
	} else if store != nil {
		defer store.Close()
		for _, member := range fam.Members {
			rec, err := store.NewRecord("family-member")
			if err != nil {
				return err
			}
			if err := member.Nodeset.Save(rec); err != nil {
				return err
			}
			records = append(records, rec.ID.String())
		}
	}
	f, err := outputFile(fmt.Sprintf("family-%s.yaml", param))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := dataio.WriteCatalog(f, dataio.NewCatalog(fam, records)); err != nil {
		return err
	}

	if viper.GetBool("output.plot") && len(fam.Members) > 1 {
		jacobi := make([]float64, len(fam.Members))
		stability := make([]float64, len(fam.Members))
		for i, member := range fam.Members {
			jacobi[i] = member.Jacobi
			if len(member.Stability) > 0 {
				stability[i] = member.Stability[0]
			}
		}
		fmt.Println(asciigraph.Plot(finiteOnly(jacobi), asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("Jacobi constant per member")))
		fmt.Println(asciigraph.Plot(finiteOnly(stability), asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("largest stability index per member")))
	}
	return nil
}
