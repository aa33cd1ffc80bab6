package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// BuildVersion is set at link time with -ldflags "-X ...cli.BuildVersion=v1.2.3".
var BuildVersion = "n/a"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the atresolve version",
		Args:  cobra.NoArgs,
		// no config or network needed
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := BuildVersion
			if info, ok := debug.ReadBuildInfo(); ok && v == "n/a" {
				v = info.Main.Version
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}
}
