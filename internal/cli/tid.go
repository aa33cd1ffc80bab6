package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/atresolve/tid"
)

type decodedTID struct {
	TID     string    `json:"tid"`
	Time    time.Time `json:"time"`
	Micros  uint64    `json:"micros"`
	ClockID uint16    `json:"clockId"`
}

func newTIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tid",
		Short: "Generate and inspect timestamp identifiers",
	}
	cmd.AddCommand(newTIDNewCmd(), newTIDDecodeCmd())
	return cmd
}

func newTIDNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Print new, strictly increasing TIDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cmd.Flags().GetInt("count")
			if err != nil {
				return err
			}
			for range max(n, 1) {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), tid.Next()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntP("count", "n", 1, "number of TIDs to print")
	return cmd
}

func newTIDDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <tid>...",
		Short: "Decode TIDs into their timestamp and clock id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := make([]decodedTID, 0, len(args))
			for _, s := range args {
				t := tid.TID(s)
				micros, ok := t.Micros()
				if !ok {
					return fmt.Errorf("%q is not a valid TID", s)
				}
				clock, _ := t.ClockID()
				ts, _ := t.Time()
				out = append(out, decodedTID{TID: s, Time: ts, Micros: micros, ClockID: clock})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}
