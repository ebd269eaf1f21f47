// Package config assembles the tool configuration from defaults, an
// optional YAML file, environment variables and (in the CLI layer) flags,
// in that precedence order.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"gopscore/pkg/aggregate"
	"gopscore/pkg/errors"
	"gopscore/pkg/score"
)

// InputConfig selects the input table format and the optional phone
// symbol table used by the viewer.
type InputConfig struct {
	// Format is "flat" (key<TAB>value lines) or "post" (text posteriors).
	Format string `yaml:"format"`

	// PhoneTable is the path to a "phone_name phone_id" symbol table.
	PhoneTable string `yaml:"phone_table"`
}

// AggregateConfig selects the aggregation policy.
type AggregateConfig struct {
	Method      string `yaml:"method"`
	SkipSilence bool   `yaml:"skip_silence"`
}

// ScoringConfig configures the quality score calibration.
type ScoringConfig struct {
	// Baseline is the native-speaker reference GOP; nil selects the
	// baseline-free mapping.
	Baseline *float64 `yaml:"baseline"`

	MinScore float64 `yaml:"min_score"`
	MaxScore float64 `yaml:"max_score"`
}

// ReportConfig selects the output destination. Empty or "-" writes to
// standard output.
type ReportConfig struct {
	Output string `yaml:"output"`
}

// LoggingConfig configures the shared logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MessagingConfig configures the optional AMQP result publisher.
// Publishing is disabled unless both URL and queue name are set.
type MessagingConfig struct {
	AMQPURL   string `yaml:"amqp_url"`
	QueueName string `yaml:"queue_name"`
}

// MetricsConfig configures the optional end-of-run metrics push.
// Disabled unless a Pushgateway URL is set.
type MetricsConfig struct {
	PushGateway string `yaml:"push_gateway"`
	JobName     string `yaml:"job_name"`
}

// Config is the full tool configuration.
type Config struct {
	Input     InputConfig     `yaml:"input"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Report    ReportConfig    `yaml:"report"`
	Logging   LoggingConfig   `yaml:"logging"`
	Messaging MessagingConfig `yaml:"messaging"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// Workers bounds the per-utterance scoring fan-out; 1 runs fully
	// sequentially.
	Workers int `yaml:"workers"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Input: InputConfig{Format: "flat"},
		Aggregate: AggregateConfig{
			Method:      string(aggregate.MethodMean),
			SkipSilence: true,
		},
		Scoring: ScoringConfig{
			MinScore: score.DefaultMinScore,
			MaxScore: score.DefaultMaxScore,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{JobName: "gopscore"},
		Workers: runtime.NumCPU(),
	}
}

// Load builds the configuration: defaults, then the YAML file when one is
// given, then .env and process environment overrides.
func Load(logger *logrus.Logger, path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewIOError("read config file", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parsing config file", map[string]interface{}{"path": path})
		}
		logger.WithField("path", path).Debug("Loaded configuration file")
	}

	// Load .env into the environment when present; a missing file is fine.
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded environment from .env file")
	}

	cfg.applyEnv(logger)

	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration. Invalid
// numeric values are reported and ignored, keeping the previous value.
func (c *Config) applyEnv(logger *logrus.Logger) {
	if v := os.Getenv("GOPSCORE_FORMAT"); v != "" {
		c.Input.Format = v
	}
	if v := os.Getenv("GOPSCORE_PHONE_TABLE"); v != "" {
		c.Input.PhoneTable = v
	}
	if v := os.Getenv("GOPSCORE_METHOD"); v != "" {
		c.Aggregate.Method = v
	}
	if v := os.Getenv("GOPSCORE_SKIP_SILENCE"); v != "" {
		c.Aggregate.SkipSilence = v != "false"
	}
	if v := os.Getenv("GOPSCORE_BASELINE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Scoring.Baseline = &f
		} else {
			logger.Warnf("Invalid GOPSCORE_BASELINE '%s', ignoring", v)
		}
	}
	c.floatFromEnv(logger, "GOPSCORE_MIN_SCORE", &c.Scoring.MinScore)
	c.floatFromEnv(logger, "GOPSCORE_MAX_SCORE", &c.Scoring.MaxScore)
	if v := os.Getenv("GOPSCORE_OUTPUT"); v != "" {
		c.Report.Output = v
	}
	if v := os.Getenv("GOPSCORE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		} else {
			logger.Warnf("Invalid GOPSCORE_WORKERS '%s', ignoring", v)
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv("AMQP_URL"); v != "" {
		c.Messaging.AMQPURL = v
	}
	if v := os.Getenv("AMQP_QUEUE_NAME"); v != "" {
		c.Messaging.QueueName = v
	}

	if v := os.Getenv("METRICS_PUSH_GATEWAY"); v != "" {
		c.Metrics.PushGateway = v
	}
	if v := os.Getenv("METRICS_JOB_NAME"); v != "" {
		c.Metrics.JobName = v
	}
}

func (c *Config) floatFromEnv(logger *logrus.Logger, name string, dst *float64) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warnf("Invalid %s '%s', ignoring", name, v)
		return
	}
	*dst = f
}

// Validate rejects configurations that would make the run undefined.
func (c *Config) Validate() error {
	if c.Input.Format != "flat" && c.Input.Format != "post" {
		return errors.New(fmt.Sprintf("unknown input format %q (want flat or post)", c.Input.Format))
	}
	if _, err := aggregate.ParseMethod(c.Aggregate.Method); err != nil {
		return err
	}
	if c.Scoring.MinScore >= c.Scoring.MaxScore {
		return errors.New(fmt.Sprintf("min score %.2f must be below max score %.2f",
			c.Scoring.MinScore, c.Scoring.MaxScore))
	}
	if c.Workers < 1 {
		return errors.New(fmt.Sprintf("workers must be at least 1, got %d", c.Workers))
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	return nil
}

// LogrusLevel returns the configured log level, defaulting to info when
// unparseable.
func (c *Config) LogrusLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// Method returns the validated aggregation method.
func (c *Config) Method() (aggregate.Method, error) {
	return aggregate.ParseMethod(c.Aggregate.Method)
}

// Mapper builds the score mapper from the scoring section.
func (c *Config) Mapper() score.Mapper {
	return score.Mapper{
		Baseline: c.Scoring.Baseline,
		MinScore: c.Scoring.MinScore,
		MaxScore: c.Scoring.MaxScore,
	}
}
