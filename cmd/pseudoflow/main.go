package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pseudoflow/internal/config"
	"pseudoflow/internal/events"
	"pseudoflow/internal/logging"
	"pseudoflow/internal/telemetry"
	"pseudoflow/internal/translator"
)

const version = "1.0.0"

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// translate flags
	outputPath    string
	modelName     string
	noStream      bool
	showTelemetry bool
	watchConfig   bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pseudoflow",
	Short: "pseudoflow - pseudocode to Python translation pipeline",
	Long: `pseudoflow translates mixed pseudocode and natural language into a
single runnable Python script.

Input is split into typed blocks (code, prose, comments, mixed lines),
natural-language blocks are translated through a model backend, and the
results are assembled into one consistent script that is then validated
for syntax and common logic problems.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// translateCmd runs the pipeline on one input
var translateCmd = &cobra.Command{
	Use:   "translate [file]",
	Short: "Translate a pseudocode file into a Python script",
	Long: `Reads pseudocode from a file (or stdin when the argument is "-" or
omitted) and writes the generated Python script to stdout or --output.

Examples:
  pseudoflow translate notes.txt -o notes.py
  cat notes.txt | pseudoflow translate --model gemini`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTranslate,
}

// configCmd groups configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveConfigPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(resolveConfigPath())
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pseudoflow %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default <workspace>/.pseudoflow/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory")

	translateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the script to a file instead of stdout")
	translateCmd.Flags().StringVarP(&modelName, "model", "m", "", "model backend to use (overrides config)")
	translateCmd.Flags().BoolVar(&noStream, "no-stream", false, "disable chunked streaming for large inputs")
	translateCmd.Flags().BoolVar(&showTelemetry, "telemetry", false, "print a telemetry snapshot to stderr when done")
	translateCmd.Flags().BoolVar(&watchConfig, "watch", false, "re-run the translation whenever the config file changes")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(translateCmd, configCmd, versionCmd)
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(workspace, ".pseudoflow", "config.yaml")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if modelName != "" {
		cfg.LLM.Provider = modelName
	}
	if noStream {
		cfg.Streaming.Enabled = false
	}
	if verbose {
		cfg.Logging.DebugMode = true
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func runTranslate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logging.Initialize(workspace, logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return err
	}
	defer logging.CloseAll()

	input, err := readInput(args)
	if err != nil {
		return err
	}
	if len(input) == 0 {
		return fmt.Errorf("no input to translate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	disp := events.NewDispatcher()
	if verbose {
		disp.SubscribeAll(func(ev events.Event) {
			logger.Debug("pipeline event",
				zap.String("type", string(ev.Type)),
				zap.String("source", ev.Source))
		})
	}

	if err := translateOnce(ctx, cfg, disp, input); err != nil {
		return err
	}

	if watchConfig {
		if err := watchAndRetranslate(ctx, disp, input); err != nil {
			return err
		}
	}

	if showTelemetry {
		data, err := json.MarshalIndent(telemetry.Get().Snapshot(), "", "  ")
		if err == nil {
			fmt.Fprintln(os.Stderr, string(data))
		}
	}
	return nil
}

func translateOnce(ctx context.Context, cfg *config.Config, disp *events.Dispatcher, input string) error {
	tr, err := translator.New(cfg, translator.WithDispatcher(disp))
	if err != nil {
		return err
	}
	defer tr.Shutdown()

	res := tr.Translate(ctx, input)
	for _, w := range res.Warnings {
		logger.Warn(w, zap.String("translation_id", res.TranslationID))
	}
	if !res.Success {
		for _, e := range res.Errors {
			logger.Error(e, zap.String("translation_id", res.TranslationID))
		}
		return fmt.Errorf("translation failed with %d error(s)", len(res.Errors))
	}

	logger.Info("translation complete",
		zap.String("translation_id", res.TranslationID),
		zap.Float64("duration_ms", res.DurationMs),
		zap.Int("warnings", len(res.Warnings)))

	return writeOutput(res.Code)
}

// watchAndRetranslate blocks until interrupted, re-running the translation
// every time the config file is reloaded.
func watchAndRetranslate(ctx context.Context, disp *events.Dispatcher, input string) error {
	reload := make(chan *config.Config, 1)
	w, err := config.NewWatcher(resolveConfigPath(), func(cfg *config.Config) {
		select {
		case reload <- cfg:
		default:
		}
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()
	logger.Info("watching config for changes", zap.String("path", resolveConfigPath()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg := <-reload:
			if modelName != "" {
				cfg.LLM.Provider = modelName
			}
			if noStream {
				cfg.Streaming.Enabled = false
			}
			logger.Info("config reloaded, re-translating")
			if err := translateOnce(ctx, cfg, disp, input); err != nil {
				logger.Error("re-translation failed", zap.Error(err))
			}
		}
	}
}

func readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return string(data), nil
}

func writeOutput(code string) error {
	if outputPath == "" {
		fmt.Println(code)
		return nil
	}
	if err := os.WriteFile(outputPath, []byte(code), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	logger.Info("script written", zap.String("path", outputPath))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
