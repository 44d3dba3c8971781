package astrohelion

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	kitlog "github.com/go-kit/log"
	"github.com/spf13/viper"
)

// ConfigEnv is the environment variable holding the directory of conf.toml.
const ConfigEnv = "ASTROHELION_CONFIG"

var (
	cfgOnce sync.Once
	config  = _ahconfig{}
	cfgErr  error
)

// _ahconfig is a "hidden" struct, just use `ahConfig`
type _ahconfig struct {
	AbsTol, RelTol float64
	StepGuess      float64
	MaxSteps       uint64
	CorrectTol     float64
	MaxIterations  int
	MaxHalvings    int
	MaxCondition   float64
	Workers        int
	Verbose        bool
	outputDir      string
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("integrator.abs_tol", 1e-12)
	v.SetDefault("integrator.rel_tol", 1e-14)
	v.SetDefault("integrator.step_guess", 1e-6)
	v.SetDefault("integrator.max_steps", 1000000)
	v.SetDefault("corrector.tolerance", 1e-12)
	v.SetDefault("corrector.max_iterations", 20)
	v.SetDefault("corrector.max_halvings", 8)
	v.SetDefault("corrector.max_condition", 1e14)
	v.SetDefault("corrector.workers", runtime.GOMAXPROCS(0))
	v.SetDefault("general.output_path", ".")
	v.SetDefault("general.verbose", false)
}

// loadConfig reads the configuration from the provided viper instance.
func loadConfig(v *viper.Viper) (_ahconfig, error) {
	conf := _ahconfig{
		AbsTol:        v.GetFloat64("integrator.abs_tol"),
		RelTol:        v.GetFloat64("integrator.rel_tol"),
		StepGuess:     v.GetFloat64("integrator.step_guess"),
		MaxSteps:      v.GetUint64("integrator.max_steps"),
		CorrectTol:    v.GetFloat64("corrector.tolerance"),
		MaxIterations: v.GetInt("corrector.max_iterations"),
		MaxHalvings:   v.GetInt("corrector.max_halvings"),
		MaxCondition:  v.GetFloat64("corrector.max_condition"),
		Workers:       v.GetInt("corrector.workers"),
		Verbose:       v.GetBool("general.verbose"),
		outputDir:     v.GetString("general.output_path"),
	}
	if conf.AbsTol <= 0 || conf.RelTol < 0 {
		return conf, fmt.Errorf("invalid integrator tolerances abs=%g rel=%g", conf.AbsTol, conf.RelTol)
	}
	if conf.StepGuess <= 0 {
		return conf, fmt.Errorf("invalid integrator step guess %g", conf.StepGuess)
	}
	if conf.CorrectTol <= 0 || conf.MaxIterations < 1 {
		return conf, fmt.Errorf("invalid corrector tolerance %g or iteration cap %d", conf.CorrectTol, conf.MaxIterations)
	}
	if conf.Workers < 1 {
		conf.Workers = 1
	}
	return conf, nil
}

// ahConfig returns the astrohelion configuration. Without ASTROHELION_CONFIG, the defaults are used.
func ahConfig() _ahconfig {
	cfgOnce.Do(func() {
		v := viper.New()
		setConfigDefaults(v)
		if confPath := os.Getenv(ConfigEnv); confPath != "" {
			v.SetConfigName("conf")
			v.AddConfigPath(confPath)
			if err := v.ReadInConfig(); err != nil {
				cfgErr = fmt.Errorf("%s/conf.toml not found: %s", confPath, err)
			}
		}
		var err error
		config, err = loadConfig(v)
		if err != nil && cfgErr == nil {
			cfgErr = err
		}
		if cfgErr != nil {
			// Fall back on the defaults rather than half a configuration.
			d := viper.New()
			setConfigDefaults(d)
			config, _ = loadConfig(d)
		}
	})
	return config
}

// ConfigError returns the error encountered while loading the configuration, if any.
func ConfigError() error {
	ahConfig()
	return cfgErr
}

// OutputDir returns the configured output directory.
func OutputDir() string {
	return ahConfig().outputDir
}

// defaultLogger returns the logger used when none is provided.
func defaultLogger(subsys string) kitlog.Logger {
	if !ahConfig().Verbose {
		return kitlog.NewNopLogger()
	}
	return kitlog.With(kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr)), "subsys", subsys)
}
