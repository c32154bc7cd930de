package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sdserve/core"
	"sdserve/core/validation"
	"sdserve/db"
	"sdserve/imagegen"
	"sdserve/logging"
	"sdserve/metrics"
	"sdserve/sdruntime"
	"sdserve/shutdown"
	"sdserve/webapi"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Service control verbs (install/start/stop/...) print their result
	// and exit inside the handler.
	if HandleServiceCommand(os.Args) {
		return
	}

	strictLoad := flag.Bool("strict-load", false, "exit instead of serving degraded when the model fails to load at startup")
	benchPlan := flag.String("bench", "", "run the scheduler benchmark described by the given plan file, then exit")
	flag.Parse()

	if *benchPlan != "" {
		os.Exit(runBenchmark(*benchPlan))
	}

	// Under a service manager the lifecycle is driven by control requests
	// instead of terminal signals.
	if ran, err := RunAsService(*strictLoad); ran {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Service failed: %v\n", err)
			os.Exit(core.ExitCodeError)
		}
		return
	}

	os.Exit(run(context.Background(), *strictLoad))
}

// run starts the server and blocks until shutdown, returning the process
// exit code. Cancelling ctx acts like a termination signal; the Windows
// service wrapper stops the server that way.
func run(ctx context.Context, strictLoad bool) int {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Use fmt here since logger isn't initialized yet
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	isDevelopment := core.ParseBoolEnv("DEV_MODE", false)

	// The logger comes up before configuration is loaded, so the log file
	// path is read straight from the environment.
	logFile := core.GetEnvOrDefault("LOG_FILE", "sdserve.log")
	logger, err := logging.NewLogger(isDevelopment, logFile)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		return core.ExitCodeError
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Printf("Failed to sync logger: %v\n", syncErr)
		}
	}()

	logger.Info("Starting stable-diffusion-api",
		zap.String("version", core.GetVersionInfo()),
		zap.Bool("dev_mode", isDevelopment),
	)

	// Run pre-flight checks before heavy operations
	if exitCode := runStartupValidation(logger); exitCode != core.ExitCodeSuccess {
		return exitCode
	}

	// Load configuration (safe to call after pre-flight passes)
	config, err := LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return core.ExitCodeConfigError
	}

	// Log configuration values
	logger.Info("Configuration loaded",
		zap.String("model_id", config.ModelID),
		zap.String("model_path", config.ModelPath),
		zap.String("device", config.Device),
		zap.String("dtype", config.Dtype),
		zap.String("scheduler", string(config.Scheduler)),
		zap.Bool("karras_sigmas", config.UseKarrasSigmas),
		zap.Bool("offline_mode", config.OfflineMode),
		zap.Int("default_steps", config.DefaultSteps),
		zap.Float64("default_guidance", config.DefaultGuidance),
		zap.Int("default_height", config.DefaultHeight),
		zap.Int("default_width", config.DefaultWidth),
		zap.String("addr", config.Addr()),
		zap.Bool("auth_enabled", config.AuthEnabled()),
		zap.Bool("history_enabled", config.HistoryEnabled()),
		zap.Int("retention_days", config.RetentionDays),
		zap.String("log_file", config.LogFile),
	)

	manager := shutdown.NewManager(logger, shutdown.WithTimeout(60*time.Second))

	// Metrics store backs /metrics and the health snapshot. Degraded until
	// the model finishes loading.
	storeConfig := metrics.DefaultStoreConfig()
	storeConfig.Version = serviceVersion()
	collector := metrics.NewMetricsStore(storeConfig, time.Now())
	collector.SetHealth(metrics.SystemHealthDegraded)

	// GPU sampling only makes sense on a CUDA device
	var gpuCollector *metrics.GPUCollector
	if config.Device == "cuda" {
		gpuLogger := logger.Named("gpu")
		gpuCollector = metrics.NewGPUCollector(metrics.DefaultGPUCollectorConfig(), func(sample metrics.GPUMetrics) {
			collector.UpdateGPUMetrics(sample)
			gpu := sample.ToCore()
			switch {
			case gpu.RunningHot():
				gpuLogger.Warn("GPU running hot", logging.GPUFields(gpu))
			case gpu.VRAMNearlyFull():
				gpuLogger.Warn("VRAM nearly full", logging.GPUFields(gpu))
			}
		})
		gpuCollector.Start()
		manager.Register("gpu-sampler", 20, shutdown.Stopper(logger, "gpu-sampler", gpuCollector.Stop))
	}

	// History persistence is optional; without DB_PATH the service runs
	// stateless and /history is not registered.
	var history webapi.HistoryStore
	var recorder imagegen.Recorder
	if config.HistoryEnabled() {
		database, err := db.NewDatabase(config.DBPath)
		if err != nil {
			logger.Error("Failed to open history database", zap.Error(err))
			return core.ExitCodeError
		}
		if err := database.Migrate(); err != nil {
			logger.Error("Failed to migrate history database", zap.Error(err))
			return core.ExitCodeError
		}
		logger.Info("History database ready", zap.String("path", database.Path()))

		store, writer := db.NewAsyncStore(database)
		writer.Start()
		history = store
		recorder = store

		manager.Register("history-writer", 25, shutdown.HistoryWriter(logger, writer, 5*time.Second))
		manager.Register("database", 30, shutdown.Database(logger, database))

		if config.RetentionDays > 0 {
			cleanupConfig := db.DefaultCleanupSchedulerConfig()
			cleanupConfig.RetentionDays = config.RetentionDays
			cleanupConfig.Interval = config.CleanupInterval
			cleanupConfig.OnCleanup = func(result db.CleanupResult, err error) {
				if err != nil {
					logger.Warn("History cleanup failed", zap.Error(err))
					return
				}
				if result.GenerationsDeleted > 0 {
					logger.Info("History cleanup removed expired records",
						zap.Int64("deleted", result.GenerationsDeleted),
						zap.Duration("duration", result.Duration),
					)
				}
			}
			database.StartCleanupSchedulerWithConfig(manager.Context(), cleanupConfig)
			logger.Info("History retention sweeper started",
				zap.Int("retention_days", config.RetentionDays),
				zap.Duration("interval", config.CleanupInterval),
			)
		}
	}

	// Generator owns the device; requests serialize on it
	generator, err := sdruntime.NewGenerator(config.RuntimeOptions())
	if err != nil {
		logger.Error("Failed to create generator", zap.Error(err))
		return core.ExitCodeConfigError
	}
	manager.Register("generator", 10, shutdown.Generator(logger, generator))

	if strictLoad {
		logger.Info("Loading model before serving", zap.String("model_id", config.ModelID))
		if err := generator.EnsureLoaded(manager.Context()); err != nil {
			logger.Error("Model load failed", zap.Error(err))
			return core.ExitCodeLoadFailed
		}
		collector.SetHealth(metrics.SystemHealthRunning)
		logger.Info("Model loaded", zap.String("device", generator.Device()))
	} else {
		// Load in the background so /health can report the warmup instead
		// of the listener staying down for the whole load.
		go warmLoad(manager.Context(), logger, generator, collector)
	}

	service, err := imagegen.NewService(generator, recorder, logger)
	if err != nil {
		logger.Error("Failed to create generation service", zap.Error(err))
		return core.ExitCodeError
	}

	var auth webapi.AuthProvider
	if config.AuthEnabled() {
		tokenAuth, err := webapi.NewTokenAuth(webapi.TokenAuthConfig{
			Token:     config.APIKey,
			TokenHash: config.APIKeyHash,
		}, logger)
		if err != nil {
			logger.Error("Failed to configure authentication", zap.Error(err))
			return core.ExitCodeConfigError
		}
		// Expired lockout records are swept in the background so the
		// attempt map does not grow with every scanner that probes the port.
		tokenAuth.RateLimiter().StartCleanupTicker(manager.Context(), 15*time.Minute)
		auth = tokenAuth
	}

	serverConfig := webapi.DefaultServerConfig()
	serverConfig.Version = serviceVersion()
	serverConfig.Host = config.Host
	serverConfig.Port = config.Port

	server, err := webapi.NewServer(serverConfig, service, generator, history, collector, gpuCollector, auth, logger)
	if err != nil {
		logger.Error("Failed to create server", zap.Error(err))
		return core.ExitCodeError
	}
	manager.Register("http-server", 15, shutdown.HTTPServer(logger, server))

	manager.Start()

	// Record the first signal so the exit code can follow the 128+signum
	// convention after the graceful sequence runs.
	observed := make(chan os.Signal, 1)
	signal.Notify(observed, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(observed)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	exitCode := core.ExitCodeSuccess
	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			exitCode = core.ExitCodeError
		}
	case <-ctx.Done():
		logger.Info("Stop requested, shutting down")
	case <-manager.Context().Done():
		select {
		case sig := <-observed:
			if sig == syscall.SIGTERM {
				exitCode = core.ExitCodeSIGTERM
			} else {
				exitCode = core.ExitCodeSIGINT
			}
		default:
		}
	}

	collector.SetHealth(metrics.SystemHealthStopped)
	if err := manager.Shutdown(); err != nil {
		logger.Warn("Shutdown finished with errors", zap.Error(err))
	}

	logger.Info("Goodbye", zap.String("exit", core.ExitCodeName(exitCode)))
	return exitCode
}

// warmLoad loads the model off the serving path. On failure the server
// keeps running degraded; generate requests report the model as not
// loaded until a restart.
func warmLoad(ctx context.Context, logger *logging.Logger, generator *sdruntime.Generator, collector *metrics.MetricsStore) {
	start := time.Now()
	info := generator.Info()
	logger.Info("Loading model",
		zap.String("model_id", info.ModelID),
		zap.String("device", info.Device),
		zap.String("dtype", info.Dtype),
	)

	if err := generator.EnsureLoaded(ctx); err != nil {
		logger.Error("Model load failed, serving degraded", zap.Error(err))
		return
	}

	collector.SetHealth(metrics.SystemHealthRunning)
	logger.Info("Model loaded",
		zap.String("device", generator.Device()),
		zap.Duration("load_time", time.Since(start)),
	)
}

// runStartupValidation runs the pre-flight suite before any heavy
// initialization, so misconfiguration is caught while the process can
// still print a readable report.
//
// Returns the appropriate exit code:
//   - ExitCodeSuccess (0) if all checks pass (warnings allowed)
//   - ExitCodeConfigError (2) if any check fails
func runStartupValidation(logger *logging.Logger) int {
	logger.Info("Running pre-flight checks...")

	suite := validation.NewValidationSuite().
		WithShowProgress(true)

	result := suite.Validate()

	if !result.Success {
		logger.Error("Pre-flight checks failed",
			zap.Int("passed", result.PassedSteps),
			zap.Int("failed", result.FailedSteps),
			zap.Duration("duration", result.Duration),
		)

		// Log individual failures for debugging
		for _, step := range result.Steps {
			if step.Status == validation.StepFailed {
				logger.Error("Pre-flight step failed",
					zap.String("step", step.Name),
					zap.String("message", step.Message),
					zap.Error(step.Error),
				)
			}
		}

		return core.ExitCodeConfigError
	}

	logger.Info("Pre-flight checks passed",
		zap.Int("checks_passed", result.PassedSteps),
		zap.Int("warnings", result.Warnings),
		zap.Duration("duration", result.Duration),
	)

	return core.ExitCodeSuccess
}

// serviceVersion resolves the version the API reports: the build-injected
// value when one was set, the baked-in default otherwise.
func serviceVersion() string {
	if core.Version != "dev" {
		return core.Version
	}
	return webapi.DefaultServerConfig().Version
}
