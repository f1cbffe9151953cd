package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	apiURL     string
	apiToken   string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "valuationctl",
	Short: "Valuation engine CLI - Manage rulesets and recalculations",
	Long: `The valuation engine CLI validates ruleset definitions, schedules
listing recalculations, and inspects evaluation breakdowns from the
command line.

Examples:
  valuationctl validate ruleset.json
  valuationctl recalc <listing-id>
  valuationctl breakdown <listing-id>
  valuationctl token --user-id <uuid> --role admin`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.valuationctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "Valuation API URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "api-token", "", "API authentication token")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output results in JSON format")

	viper.BindPFlag("api.url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("api.token", rootCmd.PersistentFlags().Lookup("api-token"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".valuationctl")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("VALUATIONCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	if apiToken == "" {
		apiToken = viper.GetString("api.token")
	}
	if viper.IsSet("api.url") && apiURL == "http://localhost:8080" {
		apiURL = viper.GetString("api.url")
	}
}
