/*
Copyright 2025 Paradrop Labs
*/

package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leilei1881/Paradrop/pkg/pdconf"
)

// confdCmd runs one convergence pass of the declared host configuration.
var confdCmd = &cobra.Command{
	Use:   "confd",
	Short: "Converge the host onto the declared network configuration",
	Run: func(cmd *cobra.Command, args []string) {
		v := viper.GetViper()
		logger := newLogger()
		defer logger.Sync()

		manager := pdconf.NewManager(v.GetString("write_dir"), logger)
		execute := !v.GetBool("dry-run")
		if err := manager.LoadConfig(v.GetString("config_dir"), execute); err != nil {
			logger.Sync()
			log.Fatal(err)
		}
		if !execute {
			for _, c := range manager.PreviousCommands {
				log.Println(c)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(confdCmd)
	confdCmd.Flags().String("config-dir", "", "directory of declared configuration")
	confdCmd.Flags().String("write-dir", "", "directory for derived configs and pid files")
	confdCmd.Flags().Bool("dry-run", false, "print the command plan without executing")
	viper.BindPFlag("config_dir", confdCmd.Flags().Lookup("config-dir"))
	viper.BindPFlag("write_dir", confdCmd.Flags().Lookup("write-dir"))
	viper.BindPFlag("dry-run", confdCmd.Flags().Lookup("dry-run"))
}
