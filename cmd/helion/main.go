// Command helion propagates, corrects and continues trajectories of the restricted three body problem.
// Each sub-command reads a TOML scenario, e.g. `helion family --scenario lyapunov.toml`.
package main

import (
	"fmt"
	"os"
	"strings"

	kitlog "github.com/go-kit/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	logger  kitlog.Logger
	rootCmd = &cobra.Command{
		Use:   "helion",
		Short: "Multiple shooting and continuation in the restricted three body problem",
		Long: "helion propagates trajectories, corrects multiple shooting problems and computes families " +
			"of periodic orbits and their invariant manifolds from TOML scenarios.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().String("scenario", "", "scenario TOML file")
	rootCmd.PersistentFlags().String("output", ".", "output directory")
	rootCmd.PersistentFlags().String("store", "", "badger store directory, results are not stored when empty")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().Bool("plot", true, "print terminal plots")
	viper.BindPFlag("output.path", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("output.store", rootCmd.PersistentFlags().Lookup("store"))
	viper.BindPFlag("output.plot", rootCmd.PersistentFlags().Lookup("plot"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	rootCmd.AddCommand(propagateCmd, correctCmd, familyCmd, manifoldCmd)
}

func initConfig(cmd *cobra.Command) error {
	logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "subsys", "helion")
	scenario, _ := cmd.Flags().GetString("scenario")
	if scenario == "" {
		return fmt.Errorf("no scenario provided")
	}
	viper.SetConfigFile(scenario)
	viper.SetEnvPrefix("HELION")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("%s: %w", scenario, err)
	}
	if !viper.GetBool("verbose") {
		logger = kitlog.NewNopLogger()
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
