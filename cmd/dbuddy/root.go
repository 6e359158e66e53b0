package main

import (
	"context"
	stderrors "errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/dbuddy/pkg/config"
	"github.com/go-go-golems/dbuddy/pkg/tui"
	"github.com/go-go-golems/dbuddy/pkg/tui/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRootCommand() *cobra.Command {
	s := &settings{}
	cmd := &cobra.Command{
		Use:           "dbuddy",
		Short:         "Watch, filter and follow D-Bus traffic",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, s)
		},
	}
	s.addFlags(cmd.PersistentFlags())
	cmd.AddCommand(newDumpCommand(s))
	return cmd
}

func runTUI(cmd *cobra.Command, s *settings) error {
	cfg, path, err := s.load(cmd.Flags())
	if err != nil {
		return err
	}
	sources, err := s.sources()
	if err != nil {
		return err
	}

	out := tuiLogOutput(cfg.LogFile)
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

	root := models.NewRootModel(models.Options{
		Pipeline:   a.pipeline,
		History:    a.history,
		Engine:     a.engine,
		Identities: a.cache,
		Refresh:    cfg.RefreshInterval(),
	})
	p := tea.NewProgram(root, tea.WithAltScreen(), tea.WithContext(ctx))

	fwd := &tui.StatusForwarder{Sub: a.pubsub, Send: p.Send}
	if err := fwd.Subscribe(ctx); err != nil {
		return err
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return fwd.Run(gctx) })
	eg.Go(func() error { return a.pipeline.Run(gctx) })
	if cfg.MetricsAddr != "" {
		eg.Go(func() error { return a.serveMetrics(gctx, cfg.MetricsAddr) })
	}
	if path != "" {
		w, err := config.NewWatcher(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config reload disabled")
		} else {
			defer func() { _ = w.Close() }()
			eg.Go(func() error {
				tui.ReloadConfig(gctx, w, p.Send)
				return nil
			})
		}
	}
	go func() {
		<-gctx.Done()
		p.Quit()
	}()

	log.Info().Str("config", path).Int("max_messages", cfg.MaxMessages).Msg("starting")
	_, runErr := p.Run()
	cancel()
	if err := eg.Wait(); err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	if runErr != nil && !stderrors.Is(runErr, tea.ErrProgramKilled) {
		return errors.Wrap(runErr, "run ui")
	}
	return nil
}
