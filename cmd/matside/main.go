package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"matside/internal/capture"
	"matside/internal/config"
	appLog "matside/internal/log"
	"matside/internal/model"
	"matside/internal/refresh"
	"matside/internal/schedule"
	"matside/internal/source"
	"matside/internal/watch"
	"matside/internal/web"
)

const version = "1.0.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "matside",
		Short:        "DFW open mat schedule",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./matside.yaml", "Path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(snapshotCmd())

	err := rootCmd.Execute()
	appLog.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", configPath)
		return nil, err
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	return conf, nil
}

func newRepository(conf *config.Config) *schedule.Repository {
	return schedule.NewRepository(source.NewFetcher(conf.CacheDir), schedule.Sources{
		Schedule:  conf.Sources.Schedule,
		Directory: conf.Sources.Directory,
	})
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the schedule page and API",
		RunE: func(cmd *cobra.Command, args []string) error {
			appLog.Info("matside starting", "version", version)

			conf, err := loadConfig()
			if err != nil {
				return err
			}
			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				conf.Listen = listen
			}

			appLog.Info("effective config",
				"listen", conf.Listen,
				"timezone", conf.Timezone,
				"schedule", source.DisplayLocation(conf.Sources.Schedule),
				"directory", source.DisplayLocation(conf.Sources.Directory),
				"watch", conf.Watch,
				"refresh", conf.RefreshCron,
				"basic_auth", conf.BasicAuth != nil,
			)

			ctx, cancel := signalContext()
			defer cancel()

			repo := newRepository(conf)
			if entries, err := repo.Load(ctx); err != nil {
				// Keep serving: the page shows the error and retries on reload.
				appLog.Error("initial load failed; serving empty schedule", err)
			} else {
				appLog.Info("initial load complete", "entries", len(entries))
			}

			if conf.Watch {
				src := repo.Sources()
				w, err := watch.New([]string{src.Schedule, src.Directory}, repo, watch.DefaultDebounce)
				if err != nil {
					appLog.Info("source watch disabled", "reason", err.Error())
				} else if err := w.Start(ctx); err != nil {
					appLog.Error("source watch failed to start", err)
				} else {
					defer w.Stop()
				}
			}

			if conf.RefreshCron != "" {
				sched, err := refresh.New(conf.RefreshCron, conf.Location(), repo)
				if err != nil {
					return fmt.Errorf("refresh schedule: %w", err)
				}
				sched.Start()
				defer sched.Stop()
			}

			err = web.NewServer(conf, repo).ListenAndServe(ctx)
			appLog.Info("matside exiting")
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func listCmd() *cobra.Command {
	var day, style string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the open mats for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}

			today := schedule.Today(time.Now(), conf.Location())
			wd, ok := schedule.ParseWeekday(day, today)
			if !ok {
				return fmt.Errorf("unknown day %q", day)
			}
			sf, ok := schedule.ParseStyleFilter(style)
			if !ok {
				return fmt.Errorf("unknown style %q", style)
			}

			repo := newRepository(conf)
			entries, err := repo.Load(cmd.Context())
			if err != nil {
				return err
			}
			if n := len(repo.Warnings()); n > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d row(s) skipped while loading\n", n)
			}
			return printEntries(cmd.OutOrStdout(), wd, sf, schedule.Query(entries, wd, sf))
		},
	}

	cmd.Flags().StringVar(&day, "day", "today", "Day to list (today, monday..sunday)")
	cmd.Flags().StringVar(&style, "style", "All", "Style filter (All, Gi, No Gi, Both)")
	return cmd
}

func snapshotCmd() *cobra.Command {
	var opts capture.Options

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture a PNG of the schedule page with headless Chromium",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.URL == "" {
				conf, err := loadConfig()
				if err != nil {
					return err
				}
				opts.URL = "http://" + conf.Listen + "/"
			}
			if err := capture.PagePNG(cmd.Context(), opts); err != nil {
				return err
			}
			appLog.Info("snapshot written", "url", opts.URL, "path", opts.OutputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "Page URL (defaults to the configured listen address)")
	cmd.Flags().StringVar(&opts.OutputPath, "out", "preview.png", "Output PNG path")
	cmd.Flags().IntVar(&opts.Width, "width", capture.DefaultWidth, "Viewport width")
	cmd.Flags().IntVar(&opts.Height, "height", capture.DefaultHeight, "Viewport height")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Capture timeout")
	return cmd
}

func printEntries(w io.Writer, day time.Weekday, style schedule.StyleFilter, entries []model.JoinedEntry) error {
	fmt.Fprintf(w, "%s schedule (%s)\n", day, style)
	if len(entries) == 0 {
		fmt.Fprintln(w, "No mats found for this selection. Rest up or find another day!")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.StartTime, e.School, e.City, e.Style)
	}
	return tw.Flush()
}
