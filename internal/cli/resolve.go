package cli

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/atresolve/identity"
)

const FlagConcurrency = "concurrency"

type resolution struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint,omitempty"`
	Found    bool   `json:"found"`
	Error    string `json:"error,omitempty"`
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <did>...",
		Short: "Resolve DIDs to their repository endpoints",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := EnvFrom(cmd.Context())
			if err != nil {
				return err
			}
			limit, err := cmd.Flags().GetInt(FlagConcurrency)
			if err != nil {
				return err
			}

			// Duplicate ids in one batch share a single lookup.
			out := make([]resolution, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(limit, 1))
			for i, id := range args {
				g.Go(func() error {
					ep, ok, err := env.Resolver.ResolveEndpoint(ctx, id)
					out[i] = resolution{ID: id, Endpoint: ep, Found: ok}
					if err != nil {
						out[i].Error = err.Error()
						env.Log.WarnContext(ctx, "resolve failed", slog.String("id", id), slog.String("error", err.Error()))
					}
					return nil
				})
			}
			_ = g.Wait()

			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if n := countUnresolved(out); n > 0 {
				return fmt.Errorf("%d of %d identifiers did not resolve", n, len(out))
			}
			return nil
		},
	}
	cmd.Flags().Int(FlagConcurrency, runtime.GOMAXPROCS(0)*4, "maximum concurrent lookups")
	return cmd
}

func countUnresolved(rs []resolution) int {
	n := 0
	for _, r := range rs {
		if r.Error != "" || !r.Found {
			n++
		}
	}
	return n
}

func newHandleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handle <handle|did>",
		Short: "Resolve a handle (or DID) to its DID, handle and endpoint",
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
			return writeJSON(cmd.OutOrStdout(), actor)
		},
	}
}

// resolveActor resolves id to an actor with a known endpoint.
func resolveActor(cmd *cobra.Command, env *Env, id string) (identity.Actor, error) {
	actor, ok, err := env.Resolver.ResolveActor(cmd.Context(), id)
	if err != nil {
		return actor, err
	}
	if !ok {
		return actor, fmt.Errorf("%s: no repository endpoint found", id)
	}
	return actor, nil
}
