package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/mcpserver"
)

var mcpTransport string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the research tools over the Model Context Protocol",
	Long:  "Exposes research_company and search_web to MCP clients over stdio or streamable HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if mcpTransport != "" {
			cfg.MCP.Transport = mcpTransport
		}

		env, err := initEnv(ctx, "mcp")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := mcpserver.New(env.Pipeline, env.Search, version)
		if cfg.MCP.Transport == "http" {
			return srv.RunHTTP(ctx, cfg.MCP.Addr)
		}
		zap.L().Info("mcp: serving on stdio")
		return srv.Run(ctx)
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "", "transport (stdio, http; default from config)")
	rootCmd.AddCommand(mcpCmd)
}
