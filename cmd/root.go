/*
Copyright 2025 Paradrop Labs
*/

// Package cmd implements the paradrop command line.
package cmd

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/leilei1881/Paradrop/pkg/settings"
)

const envPrefix = "pd"

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "paradrop",
	Short: "Paradrop edge agent. Deploys chutes and converges host networking.",
	Long: `
	The Paradrop agent deploys user-supplied workloads (chutes) as
	containers on this device and reconfigures the host's networking,
	DHCP/DNS, firewall, and Wi-Fi radios to make them reachable on
	dynamically allocated subnets.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		cfgFile, _ = filepath.Abs(cfgFile)
	} else {
		cfgFile, _ = filepath.Abs("paradrop.yaml")
	}

	viper.SetConfigFile(cfgFile)
	settings.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		log.Println("Using config file:", viper.ConfigFileUsed())
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// newLogger builds the process logger; --debug switches to development
// output.
func newLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if viper.GetBool("debug") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal(err)
	}
	return logger
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging and verbose responses")
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}
