package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"classifier-forge/internal/config"
	"classifier-forge/internal/dataset"
	"classifier-forge/internal/model"
	"classifier-forge/internal/optim"
	"classifier-forge/internal/tensor"
	"classifier-forge/internal/trainer"
)

const svcName = "classifier_forge"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "classifier-forge",
		Short: "Image classifier training",
		Long:  `Trains and validates a supervised image classifier end-to-end.`,
	}
	root.AddCommand(newTrainCmd())
	return root
}

func newTrainCmd() *cobra.Command {
	var (
		artifactDir string
		dataDir     string
		configPath  string
		logLevel    string
		metricsAddr string
		hiddenSize  int
		numClasses  int
		overrides   config.Overrides
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a training job",
		Long: `Run a full training job against an MNIST-format dataset.

The artifact directory is wiped at start and receives the config
snapshot, per-epoch checkpoints and the final model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := configureLogger(logLevel)
			slog.SetDefault(logger)

			var cfg config.Training
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			} else {
				cfg = config.New(model.Config{
					NumClasses:  numClasses,
					HiddenSize:  hiddenSize,
					ImageHeight: 28,
					ImageWidth:  28,
				}, optim.NewAdamConfig())
			}
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			cfg.ApplyOverrides(overrides)

			trainData, err := dataset.Train(dataDir)
			if err != nil {
				return fmt.Errorf("load training split: %w", err)
			}
			validData, err := dataset.Test(dataDir)
			if err != nil {
				return fmt.Errorf("load validation split: %w", err)
			}

			var instr *trainer.Instrumentation
			if metricsAddr != "" {
				instr = makeInstrumentation()
				go func() {
					if err := http.ListenAndServe(metricsAddr, promhttp.Handler()); err != nil {
						logger.Error("metrics server stopped", slog.Any("error", err))
					}
				}()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := trainer.Train(ctx, artifactDir, cfg, tensor.CPU, trainData, validData, logger, instr); err != nil {
				return fmt.Errorf("training failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&artifactDir, "artifact-dir", "artifacts", "Artifact output directory (wiped at start)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "data/mnist", "Directory holding the idx-ubyte dataset files")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a saved config.json (overrides model flags)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().IntVar(&hiddenSize, "hidden-size", 128, "Hidden layer width")
	cmd.Flags().IntVar(&numClasses, "num-classes", 10, "Number of classes")
	cmd.Flags().IntVar(&overrides.NumEpochs, "epochs", 0, "Number of epochs")
	cmd.Flags().IntVar(&overrides.BatchSize, "batch-size", 0, "Batch size")
	cmd.Flags().IntVar(&overrides.NumWorkers, "num-workers", 0, "Number of data loader workers")
	cmd.Flags().Int64Var(&overrides.Seed, "seed", 0, "PRNG seed")
	cmd.Flags().Float64Var(&overrides.LearningRate, "lr", 0, "Learning rate")

	return cmd
}

func configureLogger(level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		log.Printf("Invalid log level: %s. Defaulting to info.\n", level)
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(logHandler)
}

func makeInstrumentation() *trainer.Instrumentation {
	return &trainer.Instrumentation{
		Steps: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: svcName,
			Subsystem: "trainer",
			Name:      "steps_total",
			Help:      "Total step contract invocations.",
		}, []string{"phase"}),
		Latency: kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
			Namespace: svcName,
			Subsystem: "trainer",
			Name:      "step_latency_seconds",
			Help:      "Step compute latency.",
		}, []string{"phase"}),
	}
}
