package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/history"
	"github.com/go-go-golems/dbuddy/pkg/ingest"
	"github.com/go-go-golems/dbuddy/pkg/query"
	"github.com/go-go-golems/dbuddy/pkg/tui"
	"github.com/go-go-golems/dbuddy/pkg/tui/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newDumpCommand(s *settings) *cobra.Command {
	var (
		count    int
		duration time.Duration
		body     bool
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print matching messages as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := s.load(cmd.Flags())
			if err != nil {
				return err
			}
			sources, err := s.sources()
			if err != nil {
				return err
			}
			out := dumpLogOutput(cfg.LogFile)
			defer func() { _ = out.Close() }()
			if err := setupLogging(cfg.LogLevel, out); err != nil {
				return err
			}

			a, err := newApp(cfg, sources)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if duration > 0 {
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			fwd := &tui.StatusForwarder{Sub: a.pubsub, Send: logStatus}
			if err := fwd.Subscribe(ctx); err != nil {
				return err
			}
			eg, gctx := errgroup.WithContext(ctx)
			eg.Go(func() error { return fwd.Run(gctx) })
			eg.Go(func() error { return a.pipeline.Run(gctx) })
			if cfg.MetricsAddr != "" {
				eg.Go(func() error { return a.serveMetrics(gctx, cfg.MetricsAddr) })
			}

			d := &dumper{
				pipeline: a.pipeline,
				history:  a.history,
				engine:   a.engine,
				ids:      a.cache,
				out:      cmd.OutOrStdout(),
				wait:     cfg.RefreshInterval(),
				count:    count,
				body:     body,
			}
			err = d.Run(gctx)
			cancel()
			if werr := eg.Wait(); werr != nil && err == nil {
				err = werr
			}
			return err
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "Exit after this many messages (0: no limit)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Exit after this long (0: no limit)")
	cmd.Flags().BoolVar(&body, "body", false, "Print decoded message bodies")
	return cmd
}

func logStatus(msg tea.Msg) {
	sm, ok := msg.(tui.StatusMsg)
	if !ok {
		return
	}
	st := sm.Status
	ev := log.Info()
	if st.Kind == ingest.StatusTransportError {
		ev = log.Warn()
	}
	ev.Str("bus", st.Source.String()).Str("status", string(st.Kind)).Str("message", st.Message).Dur("retry", st.Retry).Msg("bus status")
}

// dumper prints every new record of the filtered view once. Grouping is
// ignored; records print in view order.
type dumper struct {
	pipeline *ingest.Pipeline
	history  *history.History
	engine   *query.Engine
	ids      models.Identities
	out      io.Writer
	wait     time.Duration
	count    int
	body     bool

	// last is the newest printed ID per bus. IDs are assigned in offer
	// order within one bus only.
	last    map[bus.Source]uint64
	printed int
}

func (d *dumper) Run(ctx context.Context) error {
	d.engine.SetGroupBy(query.GroupKeys{query.GroupNone})
	if d.last == nil {
		d.last = map[bus.Source]uint64{}
	}
	for ctx.Err() == nil {
		d.pipeline.DrainWait(ctx, d.history, d.wait)
		done, err := d.flush()
		if err != nil || done {
			return err
		}
	}
	return nil
}

func (d *dumper) flush() (bool, error) {
	r := d.engine.Result(d.history)
	for _, ev := range r.Rows {
		if ev.ID <= d.last[ev.Source] {
			continue
		}
		d.last[ev.Source] = ev.ID
		if _, err := io.WriteString(d.out, formatLine(ev, d.ids)+"\n"); err != nil {
			return true, err
		}
		if d.body && !ev.Body.IsZero() {
			for _, l := range bus.Format(ev.Body, bus.DefaultMaxDepth) {
				if _, err := io.WriteString(d.out, strings.Repeat("  ", l.Depth+1)+l.Text+"\n"); err != nil {
					return true, err
				}
			}
		}
		d.printed++
		if d.count > 0 && d.printed >= d.count {
			return true, nil
		}
	}
	return false, nil
}

func formatLine(ev *bus.Event, ids models.Identities) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-7s %-6s %s", ev.Timestamp.Format("15:04:05.000000"), ev.Source, ev.Kind, peer(ev.Sender, ev.SenderPID, ids))
	if ev.Destination != "" {
		fmt.Fprintf(&b, " -> %s", peer(ev.Destination, ev.DestinationPID, ids))
	}
	if m := ev.Field("member"); m != "" {
		if ev.Interface != "" {
			m = ev.Interface + "." + m
		}
		fmt.Fprintf(&b, " %s", m)
	}
	if ev.Path != "" {
		fmt.Fprintf(&b, " %s", ev.Path)
	}
	fmt.Fprintf(&b, " serial=%d", ev.Serial)
	if ev.ReplySerial != nil {
		fmt.Fprintf(&b, " reply_serial=%d", *ev.ReplySerial)
	}
	return b.String()
}

func peer(name string, pid *uint32, ids models.Identities) string {
	if pid == nil || ids == nil {
		return name
	}
	if id, ok := ids.Peek(*pid); ok && id.Resolved {
		return fmt.Sprintf("%s(%s)", name, id.Display(name))
	}
	return name
}
