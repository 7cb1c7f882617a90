package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/greentic-ai/greentic-messaging/internal/bus"
	"github.com/greentic-ai/greentic-messaging/internal/collab"
	"github.com/greentic-ai/greentic-messaging/internal/config"
	"github.com/greentic-ai/greentic-messaging/internal/dlq"
)

func NewDLQCommand(conf *config.Config) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered messages",
	}

	if err := conf.BindFlags(cmd.PersistentFlags(), config.CommonOptions); err != nil {
		return nil, err
	}
	if err := conf.BindFlags(cmd.PersistentFlags(), config.DLQOptions); err != nil {
		return nil, err
	}

	cmd.AddCommand(newDLQListCommand(conf), newDLQShowCommand(conf), newDLQReplayCommand(conf))

	return cmd, nil
}

func newDLQListCommand(conf *config.Config) *cobra.Command {
	var (
		tenant string
		stage  string
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List dead-letter entries for a tenant, newest first",
		Example: "greentic-messaging dlq list --tenant=acme --stage=out --limit=20",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, cleanup, err := openStore(conf)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := store.List(cmd.Context(), tenant, stage, limit)
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SEQ\tTENANT\tSTAGE\tPLATFORM\tCODE\tRETRIES\tTS")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
					e.Seq, e.Record.Tenant, e.Record.Stage, e.Record.Platform,
					e.Record.Error.Code, e.Record.Retries,
					e.Record.TS.Format(time.RFC3339),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant to list")
	cmd.Flags().StringVar(&stage, "stage", dlq.StageOut, "Dead-letter stage (in, out, or a platform name for out on that platform)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit entries as JSON")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func newDLQShowCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "show <seq>",
		Short:   "Show one dead-letter entry, including the original envelope",
		Example: "greentic-messaging dlq show 42",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence %q", args[0])
			}

			store, cleanup, err := openStore(conf)
			if err != nil {
				return err
			}
			defer cleanup()

			entry, err := store.Get(cmd.Context(), seq)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entry)
		},
	}
}

func newDLQReplayCommand(conf *config.Config) *cobra.Command {
	var (
		tenant string
		stage  string
		target string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Republish dead-letter entries and delete the ones that were accepted",
		Example: "greentic-messaging dlq replay --tenant=acme --stage=out --to=out\n" +
			"greentic-messaging dlq replay --tenant=acme --stage=in --to=runner --runner-url=http://runner:8310",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if target == "" {
				target = stage
			}

			store, cleanup, err := openStore(conf)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := store.Replay(cmd.Context(), tenant, stage, target, limit)
			if err != nil {
				return err
			}

			var failed int
			for _, res := range results {
				if res.OK {
					fmt.Fprintf(cmd.OutOrStdout(), "seq %d replayed\n", res.Seq)
					continue
				}
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "seq %d failed: %s\n", res.Seq, res.Err)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d replays failed", failed, len(results))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries replayed\n", len(results))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant to replay")
	cmd.Flags().StringVar(&stage, "stage", dlq.StageOut, "Dead-letter stage to read (in, out, or a platform name for out on that platform)")
	cmd.Flags().StringVar(&target, "to", "", "Replay target: in, out, runner, or a platform name (defaults to the stage)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to replay (0 means all)")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

// openStore dials the bus and builds a dead-letter store. The
// returned cleanup closes the connection.
func openStore(conf *config.Config) (*dlq.Store, func(), error) {
	conn, err := bus.Connect(conf.BusURL())
	if err != nil {
		return nil, nil, fmt.Errorf("connect bus: %w", err)
	}
	store := dlq.NewStore(conn.JS())
	if url := conf.RunnerURL(); url != "" {
		store.SetRunner(collab.NewRunner(url, 0))
	}
	return store, conn.Close, nil
}
