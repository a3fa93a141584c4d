/*
Copyright 2025 Paradrop Labs
*/

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leilei1881/Paradrop/pkg/version"
)

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version",
	Run: func(cmd *cobra.Command, args []string) {
		v := viper.GetViper()
		info := version.Get()
		if v.GetBool("git") {
			fmt.Println(info.GitCommit)
			os.Exit(0)
		}
		switch output := v.GetString("output"); output {
		case "pretty":
			fmt.Println("Paradrop build signature...")
			fmt.Printf("%-15s: %s\n", "Version", info.Version)
			fmt.Printf("%-15s: %s\n", "Build Commit", info.GitCommit)
			fmt.Printf("%-15s: %s\n", "Build Time", info.BuildDate)
			fmt.Printf("%-15s: %s\n", "Go Version", info.GoVersion)
			fmt.Printf("%-15s: %s\n", "Platform", info.Platform)
		case "json":
			b, err := json.Marshal(info)
			if err != nil {
				fmt.Println(err)
				return
			}
			fmt.Println(string(b))
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringP("output", "o", "pretty", "output format pretty,json")
	versionCmd.Flags().BoolP("git", "g", false, "print only the commit sha of the source tree")
	viper.BindPFlag("output", versionCmd.Flags().Lookup("output"))
	viper.BindPFlag("git", versionCmd.Flags().Lookup("git"))
}
