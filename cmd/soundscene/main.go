package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slavierouse/sound-your-scene/config"
	"github.com/slavierouse/sound-your-scene/internal/server"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "soundscene",
		Short: "Mood-based music search service",
		Long:  "soundscene translates natural language mood queries into ranked track results using iterative filter refinement.",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the search API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			srv, err := server.New(cfg)
			if err != nil {
				return fmt.Errorf("initializing server: %w", err)
			}
			return srv.Start()
		},
	}
}
