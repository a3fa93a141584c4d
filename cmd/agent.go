/*
Copyright 2025 Paradrop Labs
*/

package cmd

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leilei1881/Paradrop/pkg/container"
	"github.com/leilei1881/Paradrop/pkg/settings"
	"github.com/leilei1881/Paradrop/pkg/update"
)

// agentCmd starts the chute update pipeline.
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the chute update pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger()
		defer logger.Sync()

		cfg, err := settings.FromViper(viper.GetViper())
		if err != nil {
			log.Fatal(err)
		}

		engine, err := container.NewClient(logger.Named("container"))
		if err != nil {
			log.Fatal(err)
		}

		agent, err := update.NewAgent(cfg, engine, logger)
		if err != nil {
			log.Fatal(err)
		}

		// Converge the host onto whatever configuration is already
		// declared before accepting updates.
		if err := agent.ConfD.LoadConfig(cfg.ConfigDir, true); err != nil {
			logger.Sync()
			log.Fatal(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pipeline := update.NewPipeline(agent)
		logger.Info("agent started")
		pipeline.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
}
