package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/glowdan/framework/pkg/framework/config"
	"github.com/glowdan/framework/pkg/framework/event"
	"github.com/glowdan/framework/pkg/framework/journal"
	"github.com/glowdan/framework/pkg/framework/relay"
)

func getCmdPublish(gs *globalState) *cobra.Command {
	var addr, channel string
	cmd := &cobra.Command{
		Use:   "publish <file>...",
		Short: "Publish encoded events on the redis relay",
		Long: `Publish encoded events on the redis relay.

  Every file is decoded first, so nothing is sent unless all of them are
  valid events. The relay section of --config supplies the address, channel
  and retry policy; --addr and --channel override it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := gs.settings()
			if err != nil {
				return err
			}
			if addr != "" {
				s.Relay.Addr = addr
			}
			if channel != "" {
				s.Relay.Channel = channel
			}

			events := make([]*event.Event, 0, len(args))
			for _, path := range args {
				evt, err := readEvent(gs, path)
				if err != nil {
					return err
				}
				events = append(events, evt)
			}

			cfg := relay.ConfigFromSettings(s)
			cfg.Logger = gs.logger
			r := relay.New(cfg)
			defer r.Close()

			for _, evt := range events {
				if err := r.Publish(gs.ctx, evt); err != nil {
					return fmt.Errorf("publish %s: %w", evt.Name(), err)
				}
				fmt.Fprintf(gs.stdout, "published %s on %s\n", evt.Name(), r.Channel())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "redis address (host:port)")
	cmd.Flags().StringVar(&channel, "channel", "", "pub/sub channel")
	return cmd
}

func getCmdJournal(gs *globalState) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Read a SQLite event journal",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "journal database file (default journal.dsn from --config)")

	open := func() (*journal.Journal, error) {
		s, err := gs.settings()
		if err != nil {
			return nil, err
		}
		s.Journal.Driver = config.DriverSQLite
		if dsn != "" {
			s.Journal.DSN = dsn
		}
		if s.Journal.DSN == "" {
			return nil, fmt.Errorf("%w: no journal database given", config.ErrInvalidSettings)
		}
		return journal.Open(s, journal.WithLogger(gs.logger))
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "streams",
			Short: "List streams and their entry counts",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				j, err := open()
				if err != nil {
					return err
				}
				defer j.Close()

				streams, err := j.Store().Streams(gs.ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(gs.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "STREAM\tENTRIES")
				for _, stream := range streams {
					infos, err := j.Store().List(gs.ctx, stream)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s\t%d\n", stream, len(infos))
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "dump <stream>",
			Short: "Replay a stream and print each event as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				j, err := open()
				if err != nil {
					return err
				}
				defer j.Close()

				_, err = j.Replay(gs.ctx, args[0], func(_ context.Context, entry journal.Entry, evt *event.Event) error {
					fmt.Fprintf(gs.stdout, "# %d %s %s\n", entry.Seq, entry.ID, entry.RecordedAt.Format(time.RFC3339Nano))
					return printEvent(gs, evt)
				})
				return err
			},
		},
	)
	return cmd
}
