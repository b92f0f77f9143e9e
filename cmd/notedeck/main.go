// Package main provides the CLI entrypoint for notedeck.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/notedeck/internal/config"
	"github.com/conorfennell/notedeck/internal/notes"
	"github.com/conorfennell/notedeck/internal/practice"
	"github.com/conorfennell/notedeck/internal/review"
	"github.com/conorfennell/notedeck/internal/tui"
	"github.com/conorfennell/notedeck/internal/visits"
	"github.com/conorfennell/notedeck/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          config.AppName,
		Short:        "Browse notes, practice them and keep up with spaced repetition",
		SilenceUsage: true,
	}
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newNotesCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newDueCmd())
	rootCmd.AddCommand(newPracticeCmd())
	rootCmd.AddCommand(newVisitCmd())
	rootCmd.AddCommand(newReportCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the notes viewer in the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, appStore)
			if err != nil {
				return err
			}
			defer a.Close()

			opts, err := a.practiceOptions()
			if err != nil {
				return err
			}
			srv := web.NewServer(web.Deps{
				Notes:    a.notes,
				Tracker:  a.tracker,
				Practice: opts,
				Logger:   a.log,
			})

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return a.watch(ctx) })
			g.Go(func() error {
				a.prefetch(ctx)
				return nil
			})
			g.Go(func() error { return srv.ListenAndServe(ctx, a.cfg.Listen) })
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newNotesCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			all, err := a.notes.ListNotes(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list notes: %w", err)
			}
			filtered := notes.Filter(all, search)
			notes.SortByID(filtered)
			for _, n := range filtered {
				if n.LastModified.IsZero() {
					fmt.Fprintln(cmd.OutOrStdout(), n.ID)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", n.ID, n.LastModified.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive substring filter")
	return cmd
}

func newShowCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "show <note>",
		Short: "Print a note's markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			fetch := a.notes.Content
			if refresh {
				fetch = a.notes.Refetch
			}
			content, err := fetch(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load note %q: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), content)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the content cache")
	return cmd
}

func newDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "Show notes due for review and the current streak",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, appStore)
			if err != nil {
				return err
			}
			defer a.Close()

			all, err := a.notes.ListNotes(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list notes: %w", err)
			}
			dash, err := a.tracker.Dashboard(cmd.Context(), all, a.now())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderDashboard(dash, 0))
			return nil
		},
	}
}

func newPracticeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "practice <note>",
		Short: "Practice a note in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appStore|appLogFile)
			if err != nil {
				return err
			}
			defer a.Close()

			opts, err := a.practiceOptions()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() {
				if err := a.watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					a.log.Warn("Stopped watching for changes", "error", err)
				}
			}()

			engine := practice.NewEngine(a.notes, opts, a.log)
			complete := func(ctx context.Context, noteID string) (review.Outcome, error) {
				all, err := a.notes.ListNotes(ctx)
				if err != nil {
					return review.Outcome{}, err
				}
				return a.tracker.Complete(ctx, all, noteID, a.now())
			}
			model := tui.NewPracticeModel(ctx, engine, args[0], complete)
			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("failed to run TUI: %w", err)
			}
			if out := model.Outcome(); out != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s marked complete, streak %d\n", out.NoteID, out.Streak.Count)
			}
			return nil
		},
	}
}

func newVisitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "visit <url>",
		Short: "Report a visited page to the notes backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, 0)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.notes.AddWebsite(cmd.Context(), args[0])
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Report browser navigations read as JSON from stdin",
		Long: `Reads navigation events such as {"tabId": 3, "frameId": 0, "url": "https://go.dev"}
from stdin and reports every top-level page to the notes backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			r := visits.NewReporter(a.notes, a.log)
			err = r.Run(cmd.Context(), cmd.InOrStdin())
			r.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
