// Package cli implements the atresolve command line.
package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := New().Execute(); err != nil {
		os.Exit(1)
	}
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "atresolve [sub-command]",
		Short: "Resolve AT Protocol identities and read repository records",
		Long: `atresolve resolves DIDs and handles to their hosting endpoints through a
  shared TTL cache, then reads records, profiles and collections from them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		DisableAutoGenTag:  true,
		SilenceUsage:       true,
	}

	f := cmd.PersistentFlags()
	f.String(FlagConfig, "", "path to a YAML configuration file")
	f.String(FlagDirectory, "", `identity directory base URL, overriding the config file value (default "https://plc.directory")`)
	f.Duration(FlagTimeout, 0, `HTTP request timeout, overriding the config file value (e.g. "10s")`)
	f.String(FlagMetricsAddr, "", `serve Prometheus metrics on this address (e.g. ":9090")`)
	f.String(FlagRedisAddr, "", "share resolved endpoints through this Redis server")
	RegisterLoggingFlags(f)

	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newHandleCmd())
	cmd.AddCommand(newRecordCmd())
	cmd.AddCommand(newProfileCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDescribeCmd())
	cmd.AddCommand(newTIDCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
