package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gopscore/pkg/config"
	"gopscore/pkg/metrics"
	"gopscore/pkg/pipeline"
	"gopscore/pkg/report"
	"gopscore/pkg/score"
	"gopscore/pkg/version"
	"gopscore/pkg/view"
)

var (
	logger = logrus.New()
	cfg    *config.Config

	cfgFile string

	flagFormat      string
	flagMethod      string
	flagSkipSilence bool
	flagBaseline    float64
	flagMinScore    float64
	flagMaxScore    float64
	flagOutput      string
	flagWorkers     int
	flagPhoneTable  string
	flagLogLevel    string
	flagLogFormat   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.WithError(err).Fatal("Run failed")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gopscore",
		Short: "Utterance-level pronunciation scoring from phone-level GOP tables",
		Long: `gopscore aggregates phone-level goodness-of-pronunciation (GOP) values
into one quality score per spoken utterance, normalizes it onto a bounded
scale and assigns a discrete grade.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format (text or json)")
	root.PersistentFlags().StringVar(&flagMethod, "method", "", "aggregation method (mean, median, min, max, weighted)")
	root.PersistentFlags().BoolVar(&flagSkipSilence, "skip-silence", true, "exclude silence phones (ids 0-2) from aggregation")
	root.PersistentFlags().Float64Var(&flagBaseline, "baseline", 0, "native speaker baseline GOP for calibration")
	root.PersistentFlags().Float64Var(&flagMinScore, "min-score", 0, "minimum pronunciation score")
	root.PersistentFlags().Float64Var(&flagMaxScore, "max-score", 100, "maximum pronunciation score")
	root.PersistentFlags().StringVarP(&flagOutput, "output", "o", "", "output file ('-' or empty for stdout)")
	root.PersistentFlags().StringVar(&flagFormat, "format", "", "input format (flat or post)")
	root.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "scoring worker count (1 = sequential)")
	root.PersistentFlags().StringVar(&flagPhoneTable, "phone-table", "", "path to phone symbol table")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	}

	root.AddCommand(newAggregateCmd())
	root.AddCommand(newScoreCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newViewCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// setup loads configuration, overlays any flags that were set explicitly,
// and configures the shared logger.
func setup(cmd *cobra.Command) error {
	var err error
	cfg, err = config.Load(logger, cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Input.Format = flagFormat
	}
	if flags.Changed("phone-table") {
		cfg.Input.PhoneTable = flagPhoneTable
	}
	if flags.Changed("method") {
		cfg.Aggregate.Method = flagMethod
	}
	if flags.Changed("skip-silence") {
		cfg.Aggregate.SkipSilence = flagSkipSilence
	}
	if flags.Changed("baseline") {
		baseline := flagBaseline
		cfg.Scoring.Baseline = &baseline
	}
	if flags.Changed("min-score") {
		cfg.Scoring.MinScore = flagMinScore
	}
	if flags.Changed("max-score") {
		cfg.Scoring.MaxScore = flagMaxScore
	}
	if flags.Changed("output") {
		cfg.Report.Output = flagOutput
	}
	if flags.Changed("workers") {
		cfg.Workers = flagWorkers
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = flagLogFormat
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	configureLogger()
	metrics.Init(logger)

	return nil
}

func configureLogger() {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(cfg.LogrusLevel())

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func newAggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate <phone-score-file> [output-file]",
		Short: "Aggregate phone-level scores to an utterance score table",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := cfg.Report.Output
			if len(args) > 1 {
				output = args[1]
			}

			p := pipeline.New(logger, cfg)
			set, err := p.ReadGroups(args[0])
			if err != nil {
				return err
			}
			results, err := p.Aggregate(set)
			if err != nil {
				return err
			}

			err = report.WriteTo(output, func(w io.Writer) error {
				return report.UtteranceTable(w, results)
			})
			if err != nil {
				return err
			}

			entry := logger.WithFields(logrus.Fields{
				"run_id":     p.RunID(),
				"utterances": len(results),
				"output":     destName(output),
			})
			entry.Info("Wrote utterance scores")
			if len(results) > 0 {
				entry.Infof("Average utterance score: %.4f", report.AverageScore(results))
			}

			pushMetrics(p.RunID())
			return nil
		},
	}
}

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <utterance-score-file>",
		Short: "Compute graded pronunciation scores from an utterance score table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			aggregates, err := report.ReadUtteranceTableFile(args[0])
			if err != nil {
				return err
			}

			p := pipeline.New(logger, cfg)
			results := p.Score(aggregates)

			err = report.WriteTo(cfg.Report.Output, func(w io.Writer) error {
				return report.PronunciationReport(w, results)
			})
			if err != nil {
				return err
			}

			logSummary(p.RunID(), results)
			pushMetrics(p.RunID())
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <phone-score-file>",
		Short: "Read, aggregate, score and report in one pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := pipeline.New(logger, cfg)

			if publisher := pipeline.NewPublisher(logger, cfg); publisher != nil {
				defer publisher.Disconnect()
				p.WithPublisher(publisher)
			}

			results, err := p.Run(args[0])
			if err != nil {
				return err
			}

			err = report.WriteTo(cfg.Report.Output, func(w io.Writer) error {
				return report.PronunciationReport(w, results)
			})
			if err != nil {
				return err
			}

			logSummary(p.RunID(), results)
			pushMetrics(p.RunID())
			return nil
		},
	}
}

func newViewCmd() *cobra.Command {
	var asText bool

	cmd := &cobra.Command{
		Use:   "view <gop-scp-file>",
		Short: "Inspect phone-level GOP scores with phone names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := view.ResolveTable(logger, args[0], cfg.Input.PhoneTable)
			viewer := view.New(logger, table, os.Stdout)

			if asText {
				return viewer.ViewText(args[0])
			}
			return viewer.ViewScript(args[0])
		},
	}

	cmd.Flags().BoolVar(&asText, "text", false, "treat the argument as a text posterior table instead of a .scp file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gopscore version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.UserAgent())
		},
	}
}

func logSummary(runID string, results []score.Result) {
	entry := logger.WithFields(logrus.Fields{
		"run_id":     runID,
		"utterances": len(results),
		"output":     destName(cfg.Report.Output),
	})
	entry.Info("Wrote pronunciation report")
	if len(results) > 0 {
		avgGOP, avgPron := report.Averages(results)
		entry.Infof("Average GOP: %.4f", avgGOP)
		entry.Infof("Average pronunciation score: %.2f/100", avgPron)
	}
}

func destName(output string) string {
	if output == "" || output == "-" {
		return "stdout"
	}
	return output
}

func pushMetrics(runID string) {
	if cfg.Metrics.PushGateway == "" {
		return
	}
	if err := metrics.Push(cfg.Metrics.PushGateway, cfg.Metrics.JobName, runID); err != nil {
		logger.WithError(err).Warn("Failed to push run metrics")
	} else {
		logger.WithField("gateway", cfg.Metrics.PushGateway).Debug("Pushed run metrics")
	}
}
