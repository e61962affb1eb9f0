package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/spacecat/sage/internal/captioning"
	"github.com/spacecat/sage/internal/config"
	"github.com/spacecat/sage/internal/gemini"
	"github.com/spacecat/sage/internal/models"
	"github.com/spacecat/sage/internal/ollama"
	"github.com/spacecat/sage/internal/openai"
	"github.com/spacecat/sage/internal/providers"
	"github.com/spacecat/sage/internal/session"
	"github.com/spf13/cobra"
)

// app carries state shared by every subcommand
type app struct {
	cfg       config.Config
	workspace string
	settings  string
	logLevel  string
	verbose   bool
	cleanup   func() error
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "sage",
		Short: "Image captioning tool for building training datasets",
		Long: `Sage imports images into a working session, captions them with a
vision-capable LLM (OpenAI, vLLM/JoyCaption, Gemini or Ollama), and stores
the captions for review and export.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			a.cfg = config.Load()
			if a.workspace != "" {
				a.cfg.Workspace = a.workspace
			}
			if a.settings != "" {
				a.cfg.SettingsFile = a.settings
			}
			if a.logLevel != "" {
				a.cfg.LogLevel = config.ParseLogLevel(a.logLevel)
			}
			if a.verbose {
				a.cfg.LogLevel = slog.LevelDebug
			}

			logger, cleanup := config.SetupLogger(a.cfg)
			slog.SetDefault(logger)
			a.cleanup = cleanup
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.cleanup != nil {
				return a.cleanup()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&a.workspace, "workspace", "w", "", "Session workspace directory (default from SAGE_WORKSPACE)")
	cmd.PersistentFlags().StringVar(&a.settings, "settings", "", "Settings file (default from SAGE_SETTINGS)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newIngestCmd(a))
	cmd.AddCommand(newCaptionCmd(a))
	cmd.AddCommand(newBatchCmd(a))
	cmd.AddCommand(newCaptionsCmd(a))
	cmd.AddCommand(newViewedCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newSessionCmd(a))
	cmd.AddCommand(newSettingsCmd(a))

	return cmd
}

// clients returns one provider per supported model type
func clients() map[models.ModelType]providers.Provider {
	httpClient := &http.Client{}
	oa := openai.New(httpClient)
	return map[models.ModelType]providers.Provider{
		models.ModelTypeOpenAI: oa,
		models.ModelTypeVLLM:   oa,
		models.ModelTypeGemini: gemini.New(),
		models.ModelTypeOllama: ollama.New(httpClient),
	}
}

func (a *app) openSession(ctx context.Context) (*session.Session, error) {
	return session.Open(ctx, a.cfg.Workspace, session.Options{
		BackupDir: a.cfg.BackupDir(),
		Clients:   clients(),
		Engine: []captioning.Option{
			captioning.WithRetry(a.cfg.MaxAttempts, a.cfg.RetryDelay),
			captioning.WithRequestTimeout(a.cfg.RequestTimeout),
		},
	})
}

func (a *app) loadSettings() (config.Settings, error) {
	return config.LoadSettings(a.cfg.SettingsFile)
}
