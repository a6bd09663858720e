package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prepstudio/mockview/config"
	srv "github.com/prepstudio/mockview/internal/server"
)

func main() {
	var root = &cobra.Command{Use: "mockview"}

	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the interview session daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr == "" {
				serveAddr = os.Getenv("MOCKVIEW_HTTP_ADDR")
			}
			return srv.Run(cfg, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	root.AddCommand(serve)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
