// Command advisor runs the advisory engines offline against the embedded
// knowledge tables. It needs no network, database or sensor hardware.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"krishi/internal/knowledge"
	"krishi/internal/types"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// options are the flags shared by every subcommand.
type options struct {
	crop     string
	soil     string
	sown     string
	days     int
	date     string
	kbPath   string
	jsonOut  bool
	logLevel string
}

// env is what a subcommand runs against.
type env struct {
	kb     *knowledge.Base
	clock  types.Clock
	farm   types.FarmContext
	logger *slog.Logger
	out    io.Writer
	json   bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "advisor",
		Short: "Offline farm advisor",
		Long: `advisor answers irrigation, fertilizer, crop health and weather questions
for one plot using the embedded crop, soil and climate tables.`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.crop, "crop", string(types.CropWheat), "crop id")
	pf.StringVar(&opts.soil, "soil", string(types.SoilLoamy), "soil id")
	pf.StringVar(&opts.sown, "sown", "", "sowing date (YYYY-MM-DD); overrides --days")
	pf.IntVar(&opts.days, "days", 30, "days since sowing")
	pf.StringVar(&opts.date, "date", "", "evaluate as of this date (YYYY-MM-DD) instead of today")
	pf.StringVar(&opts.kbPath, "knowledge", "", "path to a replacement knowledge YAML file")
	pf.BoolVar(&opts.jsonOut, "json", false, "print the full result as JSON")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newIrrigationCmd(opts),
		newFertilizerCmd(opts),
		newDiagnoseCmd(opts),
		newWeatherCmd(opts),
		newAskCmd(opts),
	)
	return root
}

// load resolves the shared flags into an env.
func (o *options) load(cmd *cobra.Command) (*env, error) {
	logger := newLogger(cmd.ErrOrStderr(), o.logLevel)

	kb, err := knowledge.Default()
	if o.kbPath != "" {
		kb, err = knowledge.LoadFile(o.kbPath)
	}
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	now := time.Now().UTC()
	if o.date != "" {
		d, err := time.Parse(time.DateOnly, o.date)
		if err != nil {
			return nil, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
		// Midday keeps day arithmetic away from the date boundary.
		now = d.Add(12 * time.Hour)
	}
	clock := types.FixedClock{T: now}

	sown := now.AddDate(0, 0, -o.days)
	if o.sown != "" {
		sown, err = time.Parse(time.DateOnly, o.sown)
		if err != nil {
			return nil, fmt.Errorf("--sown must be YYYY-MM-DD: %w", err)
		}
	}
	if sown.After(now) {
		return nil, fmt.Errorf("sowing date %s is after %s", sown.Format(time.DateOnly), now.Format(time.DateOnly))
	}

	logger.Debug("advisor context", "crop", o.crop, "soil", o.soil, "sown", sown.Format(time.DateOnly), "now", now)
	return &env{
		kb:    kb,
		clock: clock,
		farm: types.FarmContext{
			Crop:       types.CropType(o.crop),
			Soil:       types.SoilType(o.soil),
			SowingDate: sown,
			PlotSizeM2: 1,
		},
		logger: logger,
		out:    cmd.OutOrStdout(),
		json:   o.jsonOut,
	}, nil
}

// emit prints v as JSON, or msg in both languages followed by detail lines.
func (e *env) emit(v any, msg types.Bilingual, details ...string) error {
	if e.json {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	for _, line := range details {
		fmt.Fprintln(e.out, line)
	}
	if msg.EN != "" {
		fmt.Fprintln(e.out, msg.EN)
	}
	if msg.HI != "" {
		fmt.Fprintln(e.out, msg.HI)
	}
	return nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
