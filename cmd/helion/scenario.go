package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/spf13/viper"

	astro "github.com/adcox/astrohelion-sub001"
	"github.com/adcox/astrohelion-sub001/dataio"
)

const dateFormat = "2006-01-02 15:04:05"

// confReadJDEorTime reads a date either as a Julian date or as a UTC date string.
func confReadJDEorTime(key string) (time.Time, error) {
	if jde := viper.GetFloat64(key); jde != 0 {
		return julian.JDToTime(jde), nil
	}
	return time.Parse(dateFormat, viper.GetString(key))
}

// readModel reads the system and the dynamical model of the scenario.
func readModel() (astro.Model, error) {
	p1, err := astro.CelestialObjectFromString(viper.GetString("system.p1"))
	if err != nil {
		return nil, err
	}
	p2, err := astro.CelestialObjectFromString(viper.GetString("system.p2"))
	if err != nil {
		return nil, err
	}
	sys, err := astro.NewSystem(p1, p2)
	if err != nil {
		return nil, err
	}
	if viper.IsSet("system.epoch") {
		epoch, err := confReadJDEorTime("system.epoch")
		if err != nil {
			return nil, fmt.Errorf("system.epoch: %w", err)
		}
		sys = sys.WithEpoch(epoch)
	}
	variant, err := astro.ModelVariantFromString(viper.GetString("system.model"))
	if err != nil {
		return nil, err
	}
	if variant == astro.LowThrustVariant {
		var thruster astro.Thruster
		if name := viper.GetString("thrust.thruster"); name != "" {
			ep, err := astro.ThrusterFromString(name)
			if err != nil {
				return nil, err
			}
			thruster = ep
		} else {
			thruster = astro.NewGenericEP(viper.GetFloat64("thrust.force"), viper.GetFloat64("thrust.isp"))
		}
		law, err := astro.PointingLawFromString(viper.GetString("thrust.law"))
		if err != nil {
			return nil, err
		}
		tp := astro.NewThrustParams(thruster, viper.GetFloat64("thrust.mass"), law)
		tp.Angle = astro.Deg2rad(viper.GetFloat64("thrust.angle"))
		sys = sys.WithThrust(tp)
	}
	return astro.NewModel(variant, sys)
}

// readIC reads the initial conditions, the initial time and the time of flight of the scenario.
func readIC() (ic []float64, t0, tof float64, err error) {
	raw, ok := viper.Get("orbit.ic").([]interface{})
	if !ok {
		return nil, 0, 0, fmt.Errorf("orbit.ic must be an array")
	}
	for _, v := range raw {
		switch f := v.(type) {
		case float64:
			ic = append(ic, f)
		case int64:
			ic = append(ic, float64(f))
		default:
			return nil, 0, 0, fmt.Errorf("orbit.ic: %v is not a number", v)
		}
	}
	if len(ic) < 6 {
		return nil, 0, 0, fmt.Errorf("orbit.ic: %d components instead of 6", len(ic))
	}
	return ic, viper.GetFloat64("orbit.t0"), viper.GetFloat64("orbit.tof"), nil
}

func readPropagatorConfig() astro.PropagatorConfig {
	conf := astro.DefaultPropagatorConfig()
	if viper.IsSet("propagator.abs_tol") {
		conf.AbsTol = viper.GetFloat64("propagator.abs_tol")
	}
	if viper.IsSet("propagator.rel_tol") {
		conf.RelTol = viper.GetFloat64("propagator.rel_tol")
	}
	conf.IgnoreCrash = viper.GetBool("propagator.ignore_crash")
	return conf
}

func readCorrectorConfig() astro.CorrectorConfig {
	conf := astro.DefaultCorrectorConfig()
	if viper.IsSet("corrector.tolerance") {
		conf.Tol = viper.GetFloat64("corrector.tolerance")
	}
	if viper.IsSet("corrector.max_iterations") {
		conf.MaxIterations = viper.GetInt("corrector.max_iterations")
	}
	conf.EqualArcTime = viper.GetBool("corrector.equal_arc_time")
	conf.VarEpoch = viper.GetBool("corrector.var_epoch")
	conf.IgnoreCrash = viper.GetBool("corrector.ignore_crash")
	conf.Propagator = readPropagatorConfig()
	conf.Logger = logger
	return conf
}

// readSeed propagates the initial conditions and splits them into the configured number of nodes.
func readSeed(m astro.Model) (*astro.Nodeset, error) {
	ic, t0, tof, err := readIC()
	if err != nil {
		return nil, err
	}
	n := viper.GetInt("corrector.nodes")
	if n < 2 {
		n = 4
	}
	distro := astro.DistroTime
	if viper.GetString("corrector.distribution") == "arclength" {
		distro = astro.DistroArclength
	}
	return astro.FromInitialConditions(m, ic, t0, tof, n, distro, readPropagatorConfig())
}

// outputFile creates a file in the output directory.
func outputFile(name string) (*os.File, error) {
	dir := viper.GetString("output.path")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(dir, name))
}

// openStore opens the configured store, or returns nil when none is configured.
func openStore() (*dataio.Store, error) {
	path := viper.GetString("output.store")
	if path == "" {
		return nil, nil
	}
	return dataio.Open(dataio.Config{Path: path, SyncWrites: true, Logger: logger})
}

// finiteOnly replaces non finite values, which asciigraph cannot plot.
func finiteOnly(data []float64) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = v
		}
	}
	return out
}
