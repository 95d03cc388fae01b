package main

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/SuadeLabs/rattr/internal/tools"
)

// newServeCommand exposes the analyser over MCP on stdio.
func newServeCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run as an MCP server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}
			log := newLogger(opts.verbose)

			runner, closeCache, err := newRunner(cfg, log)
			if err != nil {
				return err
			}
			defer closeCache()

			srv := tools.NewServer(runner)
			return srv.MCPServer().Run(context.Background(), &mcp.StdioTransport{})
		},
	}
}
