// Package cli provides the command-line interface for the agent trader.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"agent-trader/internal/advisors"
	"agent-trader/internal/config"
	"agent-trader/internal/decision"
	"agent-trader/internal/engine"
	"agent-trader/internal/events"
	"agent-trader/internal/ledger"
	"agent-trader/internal/logging"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    ledger.Store
	Notifier *events.Notifier
	Engine   *engine.Engine
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize the SQLite ledger.
	store, err := ledger.Open(cfg.Ledger.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize ledger, most commands will be unavailable")
	} else {
		app.Store = store
		logger.Debug().Str("path", cfg.Ledger.DBPath).Msg("SQLite ledger initialized")
	}

	app.Notifier = events.NewNotifierWithConfig(events.NotifierConfig{
		BufferSize:           cfg.Events.BufferSize,
		SubscriberBufferSize: cfg.Events.SubscriberBufferSize,
	})

	if app.Store != nil {
		app.Engine = buildEngine(app, cfg, logger)
	}

	rootCmd := &cobra.Command{
		Use:   "agent-trader",
		Short: "Agent Trader - autonomous AI trading agents with a durable ledger",
		Long: `Agent Trader runs autonomous trading agents. Each agent periodically
decides, via an AI reasoning process, whether to buy or sell instruments,
and every consequence (cash, holdings, performance) is recorded durably.

Use 'agent-trader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/agent-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addSessionCommands(rootCmd, app)
	addAgentCommands(rootCmd, app)
	addLedgerCommands(rootCmd, app)
	addServeCommand(rootCmd, app)
	addVersionCommand(rootCmd)

	return rootCmd
}

// buildEngine wires advisors, decider, notifier and ledger into the session
// engine.
func buildEngine(app *App, cfg *config.Config, logger zerolog.Logger) *engine.Engine {
	apiKey := cfg.Credentials.OpenAI.APIKey
	baseURL := cfg.Credentials.OpenAI.BaseURL
	model := cfg.Engine.DefaultModel

	var llmClient advisors.LLMClient
	if apiKey != "" {
		llmClient = advisors.NewOpenAIClientWithBaseURL(apiKey, model, baseURL)
		logger.Debug().Str("model", model).Msg("OpenAI LLM client initialized")
	}

	breakerCfg := advisors.BreakerConfig{
		MaxFailures: cfg.Advisors.BreakerThreshold,
		Cooldown:    cfg.Advisors.BreakerCooldown,
	}
	pool := []advisors.Advisor{
		advisors.NewBreakerAdvisor(advisors.NewTechnicalAdvisor(llmClient), breakerCfg, logger),
		advisors.NewBreakerAdvisor(advisors.NewSentimentAdvisor(llmClient), breakerCfg, logger),
		advisors.NewBreakerAdvisor(advisors.NewFundamentalAdvisor(llmClient), breakerCfg, logger),
		advisors.NewBreakerAdvisor(advisors.NewRiskAdvisor(llmClient, 0.2), breakerCfg, logger),
	}
	fanout := advisors.NewFanout(pool, cfg.Advisors.Timeout, logger)

	decider := decision.NewOpenAIDeciderWithBaseURL(apiKey, model, baseURL)

	engineCfg := engine.Config{
		DecisionTimeout: cfg.Engine.DecisionTimeout,
		AdvisorTimeout:  cfg.Advisors.Timeout,
		HistoryLimit:    cfg.Engine.HistoryLimit,
		Commission:      engine.RateCommission(cfg.Engine.CommissionRate),
	}
	return engine.New(app.Store, fanout, decider, app.Notifier, engineCfg, logger)
}
