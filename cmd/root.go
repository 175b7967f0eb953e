// Package cmd implements the skillner command line interface.
package cmd

import (
	"log"

	"github.com/jobify-ml/skillner/skillner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const app = "skillner"

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "skillner extracts skill spans from resumes and CVs",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("auth-token", "SKILLNER_HUB_TOKEN"); err != nil {
		log.Fatalf("binding SKILLNER_HUB_TOKEN environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is skillner.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Fatal(err)
		}
		return
	}

	viper.AddConfigPath(".")
	viper.SetConfigName(app + ".yaml")
	viper.SetConfigType("yaml")
	// Optional when not named explicitly.
	_ = viper.ReadInConfig()
}

// getConfig merges the defaults with anything set in the config file.
func getConfig() (*skillner.Config, error) {
	config := skillner.DefaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}
	return config, nil
}
