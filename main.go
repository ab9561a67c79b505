package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"heartpredict/config"
	qhttp "heartpredict/http"
	"heartpredict/logging"
	"heartpredict/ml"
	"heartpredict/monitoring"
	"heartpredict/predictor"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:          "heartpredict",
	Short:        "Serve heart disease predictions over HTTP",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the artifacts and run one prediction on a sample patient",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		service, err := buildService(cfg, zap.NewNop(), nil)
		if err != nil {
			return err
		}
		result, err := service.Predict(cmd.Context(), samplePatient())
		if err != nil {
			return err
		}
		cmd.Printf("%s (%.4f%%)\n", result.Label, result.Confidence)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("heartpredict version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.AddCommand(checkCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func buildService(cfg *config.Config, logger *zap.Logger, metrics *monitoring.MetricsCollector) (*predictor.Service, error) {
	scaler, err := ml.LoadScaler(cfg.Artifacts.ScalerPath)
	if err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	model, err := ml.LoadModel(cfg.Artifacts.ModelType, cfg.Artifacts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return predictor.New(scaler, model, predictor.Options{
		CacheSize: cfg.Cache.Size,
		Logger:    logger,
		Metrics:   metrics,
	})
}

func serve(ctx context.Context) error {
	// 1. 加载配置
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. 初始化日志
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 加载模型，失败则拒绝启动
	metrics := monitoring.NewMetricsCollector()
	go metrics.Run(ctx, 15*time.Second)

	service, err := buildService(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to load artifacts", zap.Error(err))
		return err
	}
	logger.Info("artifacts loaded",
		zap.String("scaler", cfg.Artifacts.ScalerPath),
		zap.String("model", cfg.Artifacts.ModelPath),
		zap.String("model_type", cfg.Artifacts.ModelType),
	)

	if cfg.Artifacts.Watch {
		watcher, err := ml.NewArtifactWatcher(logger, cfg.Artifacts.ScalerPath, cfg.Artifacts.ModelPath)
		if err != nil {
			return fmt.Errorf("failed to watch artifacts: %w", err)
		}
		watcher.OnChange(func(path string, _ fsnotify.Op) {
			metrics.IncrCounter(monitoring.MetricArtifactChanges, 1, map[string]string{"path": path})
		})
		go watcher.Run(ctx)
	}

	// 4. 启动HTTP服务器
	handler := qhttp.NewHandler(service, cfg.Artifacts.ModelType, metrics, logger)
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	}, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. 优雅关闭
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	logger.Info("server exited")
	return nil
}

func samplePatient() ml.HeartFeatures {
	return ml.HeartFeatures{
		Age:      63,
		Sex:      1,
		CP:       3,
		Trestbps: 145,
		Chol:     233,
		Fbs:      1,
		Restecg:  0,
		Thalach:  150,
		Exang:    0,
		Oldpeak:  2.3,
		Slope:    0,
		CA:       0,
		Thal:     1,
	}
}
