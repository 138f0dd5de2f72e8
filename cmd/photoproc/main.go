package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"photoproc/internal/config"
	"photoproc/internal/domain"
	apperrors "photoproc/internal/errors"
	"photoproc/internal/infra/exif"
	"photoproc/internal/infra/exiftool"
	osfs "photoproc/internal/infra/fs"
	"photoproc/internal/infra/garmin"
	"photoproc/internal/infra/gpicsync"
	"photoproc/internal/logging"
	"photoproc/internal/pipeline"
	"photoproc/internal/presentation"
	"photoproc/internal/scan"
	"photoproc/internal/state"
	"photoproc/internal/timezone"
	"photoproc/internal/tui"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, apperrors.UserMessage(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.Config

	rootCmd := &cobra.Command{
		Use:           "photoproc",
		Short:         "Put photo timestamps, names and places in order",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.FromEnv()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfg.Timezone, "timezone", "t", "", "timezone the photos were taken in (city name or +HH:MM)")
	rootCmd.PersistentFlags().BoolVar(&cfg.DST, "dst", false, "daylight saving time was in effect")
	rootCmd.PersistentFlags().IntVar(&cfg.TimerangeSec, "timerange", 0, "max seconds between photo and track point when geotagging")
	rootCmd.PersistentFlags().StringSliceVarP(&cfg.Suffixes, "suffix", "s", nil, "file suffixes to process (default jpg,mp4)")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "w", 0, "worker count for EXIF reads and stage execution (default CPU count)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.DryRun, "dry-run", "d", false, "print what would happen without touching files")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&cfg.StatePath, "state", "", "stage marker database path")
	rootCmd.PersistentFlags().BoolVar(&cfg.NoState, "no-state", false, "do not persist stage markers")

	rootCmd.AddCommand(newProcessCmd(&cfg))
	rootCmd.AddCommand(newStageCmd(&cfg, domain.StageShiftToUTC, "shift-to-utc",
		"Shift capture timestamps from camera local time to UTC"))
	rootCmd.AddCommand(newStageCmd(&cfg, domain.StageOrganize, "organize",
		"Move photos into per-day directories"))
	rootCmd.AddCommand(newStageCmd(&cfg, domain.StageGeotag, "geotag",
		"Write GPS coordinates from GPX track logs"))
	rootCmd.AddCommand(newStageCmd(&cfg, domain.StageSetTime, "set-time",
		"Shift timestamps back to local time and write timezone tags"))
	rootCmd.AddCommand(newStageCmd(&cfg, domain.StageRename, "rename",
		"Rename photos to their capture timestamp"))
	rootCmd.AddCommand(newDetectTimezoneCmd(&cfg))
	rootCmd.AddCommand(newDownloadGPXCmd(&cfg))

	return rootCmd
}

func newProcessCmd(cfg *config.Config) *cobra.Command {
	var force bool
	var noOrganize bool
	var useTUI bool

	cmd := &cobra.Command{
		Use:   "process [paths...]",
		Short: "Run the full pipeline: shift-to-utc, organize, geotag, set-time, rename",
		RunE: func(cmd *cobra.Command, args []string) error {
			// process previews by default; --force applies.
			dryRun := !force || cfg.DryRun
			spec := pipeline.ProcessSpec(!noOrganize)
			if useTUI {
				return runTUI(cmd.Context(), cfg, rootsFrom(args), spec, dryRun)
			}
			return runStages(cmd.Context(), cfg, rootsFrom(args), spec, dryRun)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "apply the changes instead of previewing them")
	cmd.Flags().BoolVar(&noOrganize, "no-organize", false, "keep photos in their current directories")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "interactive terminal interface")
	return cmd
}

func newStageCmd(cfg *config.Config, stage domain.Stage, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [paths...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd.Context(), cfg, rootsFrom(args), pipeline.Single(stage), cfg.DryRun)
		},
	}
}

func newDetectTimezoneCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "detect-timezone [paths...]",
		Short: "Report the camera timezone found in each directory's metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(os.Stderr, cfg.Verbose)
			scanner, orch, closeTool := buildPipeline(cfg, logger, nil)
			defer closeTool()

			batch, warnings, err := scanner.Scan(cmd.Context(), rootsFrom(args))
			if err != nil {
				return err
			}
			printer := presentation.Printer{Writer: os.Stdout, Verbose: cfg.Verbose}
			printer.PrintWarnings(warnings)
			printer.PrintDetectedOffsets(orch.DetectOffsets(cmd.Context(), batch))
			return nil
		},
	}
}

func newDownloadGPXCmd(cfg *config.Config) *cobra.Command {
	var startDate, endDate string

	cmd := &cobra.Command{
		Use:   "download-gpx <dest>",
		Short: "Download Garmin activities as GPX track logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			end := time.Now()
			if endDate != "" {
				parsed, err := time.Parse("2006-01-02", endDate)
				if err != nil {
					return apperrors.New(apperrors.InvalidConfig, "download-gpx", "", "invalid end date, use YYYY-MM-DD")
				}
				end = parsed
			}
			start := end.AddDate(0, 0, -config.DefaultLookbackDays)
			if startDate != "" {
				parsed, err := time.Parse("2006-01-02", startDate)
				if err != nil {
					return apperrors.New(apperrors.InvalidConfig, "download-gpx", "", "invalid start date, use YYYY-MM-DD")
				}
				start = parsed
			}

			logger := logging.New(os.Stderr, cfg.Verbose)
			client := garmin.Client{Logger: logger}
			count, err := client.Download(cmd.Context(), args[0], start, end)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Downloaded %d activities.\n", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&startDate, "start-date", "", "earliest activity date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "latest activity date (YYYY-MM-DD)")
	return cmd
}

func rootsFrom(args []string) []string {
	if len(args) == 0 {
		return []string{"."}
	}
	return args
}

// buildPipeline wires the scanner and orchestrator onto the real adapters.
// The returned close function shuts down the exiftool process.
func buildPipeline(cfg *config.Config, logger logging.Logger, store pipeline.Store) (*scan.Scanner, *pipeline.Orchestrator, func()) {
	filesystem := osfs.OSFS{}

	scanner := &scan.Scanner{
		FS:          filesystem,
		Exif:        exif.Reader{},
		ExifWorkers: cfg.Workers,
		Suffixes:    domain.NewSuffixSet(cfg.Suffixes),
		Logger:      logger,
	}

	orch := &pipeline.Orchestrator{
		FS:        filesystem,
		Geotagger: &gpicsync.Geotagger{Logger: logger},
		Resolver:  timezone.NewDefaultResolver(),
		Store:     store,
		Logger:    logger,
		Workers:   cfg.Workers,
	}

	closeTool := func() {}
	metadata, err := exiftool.New()
	if err != nil {
		logger.Warnf("exiftool unavailable: %v", apperrors.UserMessage(err))
	} else {
		orch.Metadata = metadata
		closeTool = func() { metadata.Close() }
	}

	return scanner, orch, closeTool
}

func openStore(cfg *config.Config, logger logging.Logger) pipeline.Store {
	if cfg.NoState {
		return nil
	}
	store, err := state.Open(cfg.StatePath)
	if err != nil {
		logger.Warnf("could not open stage marker database: %v", apperrors.UserMessage(err))
		return nil
	}
	return store
}

func runStages(ctx context.Context, cfg *config.Config, roots []string, spec pipeline.Spec, dryRun bool) error {
	logger := logging.New(os.Stderr, cfg.Verbose)
	scanner, orch, closeTool := buildPipeline(cfg, logger, openStore(cfg, logger))
	defer closeTool()

	batch, warnings, err := scanner.Scan(ctx, roots)
	if err != nil {
		return err
	}
	if len(batch.Records) == 0 {
		fmt.Fprintln(os.Stdout, "No image files found.")
		return nil
	}

	report := orch.Run(ctx, batch, spec, pipeline.Options{
		Timezone:     cfg.Timezone,
		DST:          cfg.DST,
		TimerangeSec: cfg.TimerangeSec,
		DryRun:       dryRun,
	})

	printer := presentation.Printer{Writer: os.Stdout, Verbose: cfg.Verbose}
	printer.PrintWarnings(warnings)
	printer.PrintReport(report)
	if dryRun {
		for _, stage := range []domain.Stage{domain.StageOrganize, domain.StageRename} {
			if spec.Contains(stage) {
				fmt.Fprintf(os.Stdout, "\nPlanned %s moves:\n", stage)
				printer.PrintMoves(report, stage)
			}
		}
		fmt.Fprintln(os.Stdout, "Dry run, no files were modified. Use --force to apply.")
	}

	if report.HasFailures() {
		os.Exit(1)
	}
	return nil
}

func runTUI(ctx context.Context, cfg *config.Config, roots []string, spec pipeline.Spec, dryRun bool) error {
	// Verbose logging would fight the TUI over the terminal.
	logger := logging.New(io.Discard, false)
	scanner, orch, closeTool := buildPipeline(cfg, logger, openStore(cfg, logger))
	defer closeTool()

	opts := pipeline.Options{
		Timezone:     cfg.Timezone,
		DST:          cfg.DST,
		TimerangeSec: cfg.TimerangeSec,
		DryRun:       dryRun,
	}

	model := tui.NewModel(tui.Config{
		Roots:    roots,
		Stages:   []domain.Stage(spec),
		Timezone: cfg.Timezone,
		DryRun:   dryRun,
		Verbose:  cfg.Verbose,
		ExecuteRun: func(batch *domain.Batch) tea.Cmd {
			return func() tea.Msg {
				return tui.RunDoneMsg{Report: orch.Run(ctx, batch, spec, opts)}
			}
		},
	})

	program := tea.NewProgram(model)
	scanner.OnProgress = func(current, total int) {
		program.Send(tui.ScanProgressMsg{Current: current, Total: total})
	}
	orch.OnStage = func(stage domain.Stage) {
		program.Send(tui.StageMsg{Stage: stage})
	}
	orch.OnProgress = func(stage domain.Stage, current, total int) {
		program.Send(tui.StageProgressMsg{Stage: stage, Current: current, Total: total})
	}

	go func() {
		batch, warnings, err := scanner.Scan(ctx, roots)
		if err != nil {
			program.Send(tui.ErrorMsg{Err: err})
			return
		}
		program.Send(tui.BatchReadyMsg{Batch: batch, Warnings: warnings})
	}()

	final, err := program.Run()
	if err != nil {
		return apperrors.Wrap(apperrors.Internal, "tui", "", err)
	}
	if m, ok := final.(tui.Model); ok {
		if m.Err != nil {
			return m.Err
		}
		if m.Phase == tui.PhaseDone && m.Report.HasFailures() {
			os.Exit(1)
		}
	}
	return nil
}
