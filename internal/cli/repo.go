package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/atresolve/xrpc"
)

const (
	FlagCursor = "cursor"
	FlagLimit  = "limit"
	FlagAll    = "all"
)

type recordOutput struct {
	*xrpc.Record
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func withCreatedAt(r *xrpc.Record) recordOutput {
	out := recordOutput{Record: r}
	if t, ok := r.CreatedAt(); ok {
		out.CreatedAt = &t
	}
	return out
}

func newRecordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <at-uri> | record <did|handle> <collection> <rkey>",
		Short: "Fetch a single record",
		Args:  cobra.MatchAll(cobra.RangeArgs(1, 3), func(_ *cobra.Command, args []string) error {
			if len(args) == 2 {
				return fmt.Errorf("expected an at:// URI or <did|handle> <collection> <rkey>")
			}
			return nil
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := EnvFrom(cmd.Context())
			if err != nil {
				return err
			}
			var ref xrpc.URI
			if len(args) == 1 {
				if ref, err = xrpc.ParseURI(args[0]); err != nil {
					return err
				}
				if ref.RKey == "" {
					return fmt.Errorf("%s: URI does not name a record", args[0])
				}
			} else {
				ref = xrpc.URI{Authority: args[0], Collection: args[1], RKey: args[2]}
			}

			actor, err := resolveActor(cmd, env, ref.Authority)
			if err != nil {
				return err
			}
			rec, err := env.Client.GetRecord(cmd.Context(), actor.Endpoint, actor.DID, ref.Collection, ref.RKey)
			if err != nil {
				if xrpc.IsNotFound(err) {
					return fmt.Errorf("%s: record not found", xrpc.URI{Authority: actor.DID, Collection: ref.Collection, RKey: ref.RKey})
				}
				return err
			}
			return writeJSON(cmd.OutOrStdout(), withCreatedAt(rec))
		},
	}
}

func newProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile <did|handle>",
		Short: "Fetch an actor profile from the actor's own endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := EnvFrom(cmd.Context())
			if err != nil {
				return err
			}
			actor, err := resolveActor(cmd, env, args[0])
			if err != nil {
				return err
			}
			p, err := env.Client.GetProfile(cmd.Context(), actor.Endpoint, actor.DID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), p)
		},
	}
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <did|handle> <collection>",
		Short: "List records of a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := EnvFrom(cmd.Context())
			if err != nil {
				return err
			}
			cursor, _ := cmd.Flags().GetString(FlagCursor)
			limit, _ := cmd.Flags().GetInt(FlagLimit)
			all, _ := cmd.Flags().GetBool(FlagAll)

			actor, err := resolveActor(cmd, env, args[0])
			if err != nil {
				return err
			}

			var out xrpc.RecordPage
			for {
				page, err := env.Client.ListRecords(cmd.Context(), actor.Endpoint, actor.DID, args[1], cursor, limit)
				if err != nil {
					return err
				}
				out.Records = append(out.Records, page.Records...)
				out.Cursor = page.Cursor
				if !all || page.Cursor == "" || page.Cursor == cursor {
					break
				}
				cursor = page.Cursor
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String(FlagCursor, "", "resume listing from this cursor")
	cmd.Flags().Int(FlagLimit, 50, fmt.Sprintf("records per page (1-%d)", xrpc.MaxPageLimit))
	cmd.Flags().Bool(FlagAll, false, "follow cursors until the collection is exhausted")
	return cmd
}

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <did|handle>",
		Short: "Describe a repository and its collections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := EnvFrom(cmd.Context())
			if err != nil {
				return err
			}
			actor, err := resolveActor(cmd, env, args[0])
			if err != nil {
				return err
			}
			d, err := env.Client.DescribeRepo(cmd.Context(), actor.Endpoint, actor.DID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), d)
		},
	}
}
