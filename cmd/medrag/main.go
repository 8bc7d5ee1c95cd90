package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/efebarandurmaz/medrag/internal/app"
	"github.com/efebarandurmaz/medrag/internal/config"
	"github.com/efebarandurmaz/medrag/internal/llm"
	"github.com/efebarandurmaz/medrag/internal/logging"
	"github.com/efebarandurmaz/medrag/internal/server"
	temporalmod "github.com/efebarandurmaz/medrag/internal/temporal"
)

func main() {
	var (
		configPath string
		logLevel   string
	)

	rootCmd := &cobra.Command{
		Use:           "medrag",
		Short:         "Medical retrieval-augmented question answering and patient history service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       app.Version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (YAML); environment variables override it")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	env := func() (*config.Config, *zap.Logger, error) {
		return bootstrap(configPath, logLevel)
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger)
		},
	}

	loadCmd := &cobra.Command{
		Use:   "load-kb",
		Short: "Replace the knowledge base collection with the configured dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app.App) error {
				n, err := a.Service.ReloadKnowledgeBase(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Loaded %d knowledge documents into %s\n", n, a.Config.Vector.KnowledgeCollection)
				return nil
			})
		},
	}

	var topK int
	queryCmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a medical question from the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app.App) error {
				if _, _, err := a.Service.EnsureKnowledgeBase(ctx); err != nil {
					return err
				}
				ans, err := a.Service.GenerateQueryAnswer(ctx, strings.Join(args, " "), topK)
				if err != nil {
					return err
				}
				return printJSON(ans)
			})
		},
	}
	queryCmd.Flags().IntVar(&topK, "top-k", 0, "Number of knowledge documents to retrieve (0 uses the configured default)")

	var (
		ingestPatient string
		ingestText    string
		ingestFile    string
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Structure a prescription and add it to a patient's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := prescriptionText(ingestText, ingestFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app.App) error {
				rec, err := a.Service.IngestPrescription(ctx, ingestPatient, text)
				if err != nil {
					return err
				}
				return printJSON(rec)
			})
		},
	}
	ingestCmd.Flags().StringVar(&ingestPatient, "patient", "", "Patient id")
	ingestCmd.Flags().StringVar(&ingestText, "text", "", "Prescription text")
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "Read prescription text from a file (- for stdin)")
	_ = ingestCmd.MarkFlagRequired("patient")

	var (
		insightPatient  string
		insightSymptoms string
		insightTopK     int
	)
	insightCmd := &cobra.Command{
		Use:   "insight",
		Short: "Relate current symptoms to a patient's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), env, func(ctx context.Context, a *app.App) error {
				res, err := a.Service.GenerateHistoryInsight(ctx, insightPatient, insightSymptoms, insightTopK)
				if err != nil {
					return err
				}
				if res.Fallback() && res.Reason != "" {
					fmt.Fprintf(os.Stderr, "Warning: model unavailable (%s), showing the local summary\n", res.Reason)
				}
				return printJSON(res)
			})
		},
	}
	insightCmd.Flags().StringVar(&insightPatient, "patient", "", "Patient id")
	insightCmd.Flags().StringVar(&insightSymptoms, "symptoms", "", "Current symptoms")
	insightCmd.Flags().IntVar(&insightTopK, "top-k", 0, "History items to use (0 uses the configured default)")
	_ = insightCmd.MarkFlagRequired("patient")
	_ = insightCmd.MarkFlagRequired("symptoms")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			names := make([]string, 0, len(llm.KnownProviders))
			for name := range llm.KnownProviders {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Println("Available LLM providers:")
			fmt.Println()
			for _, name := range names {
				fmt.Printf("  %-14s %s\n", name, llm.KnownProviders[name])
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none           (no model: questions fail, insights use the local summary)")
			fmt.Println()
			fmt.Println("Configure in a YAML file passed with --config or via environment:")
			fmt.Println("  MEDRAG_LLM_PROVIDER=openrouter")
			fmt.Println("  MEDRAG_LLM_API_KEY=sk-or-...")
			fmt.Println("  MEDRAG_LLM_MODEL=deepseek/deepseek-r1")
		},
	}

	rootCmd.AddCommand(serveCmd, loadCmd, queryCmd, ingestCmd, insightCmd, providersCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func bootstrap(configPath, logLevel string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withApp builds the App for a one-shot command and releases it afterwards.
func withApp(ctx context.Context, env func() (*config.Config, *zap.Logger, error), fn func(context.Context, *app.App) error) error {
	cfg, logger, err := env()
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Knowledge.AutoLoad {
		n, loaded, err := a.Service.EnsureKnowledgeBase(ctx)
		if err != nil {
			a.Close(context.Background())
			return fmt.Errorf("loading knowledge base: %w", err)
		}
		if loaded {
			logger.Info("knowledge base loaded", zap.Int("documents", n))
		}
	}

	health := server.NewHealthServer(&server.HealthConfig{
		Version:   app.Version,
		Documents: a.Service.DocumentCount,
	})
	a.RegisterHealthChecks(health)

	tc, err := app.DialTemporal(cfg.Temporal, logger)
	if err != nil {
		// Background ingestion is optional; synchronous routes still work.
		logger.Warn("temporal unavailable, async ingestion disabled", zap.Error(err))
	}
	var dispatcher server.Dispatcher
	if tc != nil {
		dispatcher = temporalmod.NewDispatcher(tc, cfg.Temporal.TaskQueue)
		health.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
			_, err := tc.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
			return err
		}))
	}

	api := server.NewAPI(server.Config{
		Service:        a.Service,
		Health:         health,
		Metrics:        a.Metrics,
		Dispatcher:     dispatcher,
		Audit:          a.Audit,
		Logger:         logger,
		OCR:            a.OCR,
		PDF:            a.PDF,
		Audio:          a.Audio,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	gs := server.NewGracefulServer(api.Server(cfg.Server.Addr), health, &server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Logger:  logger,
	})
	for _, hook := range a.ShutdownHooks() {
		gs.Shutdown.Register(hook)
	}
	if tc != nil {
		gs.Shutdown.Register(server.TemporalClientShutdownHook(tc.Close))
	}

	logger.Info("serving",
		zap.String("addr", cfg.Server.Addr),
		zap.String("version", app.Version),
		zap.String("llm_provider", a.ProviderName()),
		zap.Bool("async_ingest", dispatcher != nil))
	return gs.Run()
}

// prescriptionText picks the prescription from --text, --file or stdin.
func prescriptionText(text, file string, stdin io.Reader) (string, error) {
	switch {
	case text != "" && file != "":
		return "", errors.New("use either --text or --file, not both")
	case text != "":
		return text, nil
	case file == "-":
		b, err := io.ReadAll(stdin)
		return string(b), err
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading prescription: %w", err)
		}
		return string(b), nil
	default:
		return "", errors.New("one of --text or --file is required")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
