package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/interviewer/internal/catalog"
	"github.com/pavelanni/interviewer/internal/console"
	"github.com/pavelanni/interviewer/internal/evalclient"
	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/report"
	"github.com/pavelanni/interviewer/internal/server"
	"github.com/pavelanni/interviewer/internal/session"
	"github.com/pavelanni/interviewer/internal/store"
)

func main() {
	// A missing .env is normal; values then come from flags, env and config.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "interviewer",
		Short:        "Job interview practice with LLM feedback",
		SilenceUsage: true,
	}
	root.AddCommand(
		serveCmd(),
		sessionCmd("practice", "Answer a set of questions and get a score for each", model.ModeBatch),
		sessionCmd("mock", "Run a conversational mock interview", model.ModeConversational),
		exportCmd(),
		rolesCmd(),
		tipsCmd(),
		hashTokenCmd(),
	)
	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.Int("mock-turns", llm.DefaultMockTurns, "Answers after which a mock interview closes")
	f.String("catalog", "", "Catalog YAML with roles, tips and fallback questions (default: built-in)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP evaluation service",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "interviewer.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Default language for interviewer messages (en, ru)")
	f.String("api-token-hash", "", "bcrypt hash of the API token (empty disables auth)")
	f.Duration("timeout", session.DefaultTimeout, "Upper bound for each LLM call")
	addLLMFlags(f)
	addLogFlags(f)
	return cmd
}

func sessionCmd(use, short string, mode model.Mode) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, mode)
		},
	}
	f := cmd.Flags()
	f.StringP("role", "r", "", "Target job role (asks when empty)")
	f.StringP("lang", "l", "en", "Interface language (en, ru)")
	f.String("service-url", "", "Evaluation service URL (empty runs the LLM in-process)")
	f.String("api-token", "", "API token for the evaluation service")
	f.Duration("timeout", session.DefaultTimeout, "Upper bound for each evaluation request")
	f.String("db", "interviewer.db", "SQLite database for the session archive (empty disables it)")
	f.Bool("no-color", false, "Disable colored output")
	if mode == model.ModeBatch {
		f.IntP("count", "n", session.DefaultPlannedCount, "Number of questions")
		f.StringP("difficulty", "d", string(model.DifficultyMixed), "Question difficulty (easy, medium, hard, mixed)")
	}
	addLLMFlags(f)
	addLogFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived sessions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "interviewer.db", "SQLite database path")
	f.StringP("role", "r", "", "Only export sessions for this role")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
}

func rolesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "List the built-in job roles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			cat, err := catalog.Load(viperForCmd(cmd).GetString("catalog"))
			if err != nil {
				return err
			}
			return console.PrintRoles(cmd.OutOrStdout(), cat)
		},
	}
	cmd.Flags().String("catalog", "", "Catalog YAML file (default: built-in)")
	addLogFlags(cmd.Flags())
	return cmd
}

func tipsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tips",
		Short: "Print interview tips and common questions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			if err := appI18n.Init(v.GetString("lang")); err != nil {
				return fmt.Errorf("init i18n: %w", err)
			}
			cat, err := catalog.Load(v.GetString("catalog"))
			if err != nil {
				return err
			}
			return console.PrintTips(cmd.Context(), cmd.OutOrStdout(), cat, v.GetBool("no-color"))
		},
	}
	f := cmd.Flags()
	f.String("catalog", "", "Catalog YAML file (default: built-in)")
	f.StringP("lang", "l", "en", "Interface language (en, ru)")
	f.Bool("no-color", false, "Disable colored output")
	addLogFlags(f)
	return cmd
}

func hashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token TOKEN",
		Short: "Print the bcrypt hash to use as --api-token-hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := server.HashToken(args[0])
			if err != nil {
				return fmt.Errorf("hash token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("INTERVIEWER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("interviewer")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/interviewer")
	v.AddConfigPath("/etc/interviewer")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newLLMClient builds the in-process engine from the LLM flags. ts may be
// nil, in which case mock interviews are unavailable.
func newLLMClient(v *viper.Viper, ts llm.TranscriptStore) (*llm.Client, error) {
	if err := prompts.Load(prompts.Templates); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	cat, err := catalog.Load(v.GetString("catalog"))
	if err != nil {
		return nil, err
	}

	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}
	opts := []llm.Option{
		llm.WithVariant(prompts.PromptVariant(variant)),
		llm.WithCatalog(cat),
		llm.WithMockTurns(v.GetInt("mock-turns")),
	}
	if ts != nil {
		opts = append(opts, llm.WithTranscripts(ts))
	}
	return llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"), opts...), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	engine, err := newLLMClient(v, db)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}

	tokenHash := v.GetString("api-token-hash")
	h := server.New(engine, server.Config{
		Lang:      lang,
		TokenHash: tokenHash,
		Timeout:   v.GetDuration("timeout"),
	})

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"prompt_variant", v.GetString("prompt-variant"),
		"mock_turns", v.GetInt("mock-turns"),
		"auth", tokenHash != "",
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runSession(cmd *cobra.Command, mode model.Mode) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx, stop := signal.NotifyContext(appI18n.WithLanguage(cmd.Context(), lang), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *store.Store
	if path := v.GetString("db"); path != "" {
		var err error
		db, err = store.New(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
	}

	var ev session.Evaluator
	if url := v.GetString("service-url"); url != "" {
		client := evalclient.New(url, v.GetString("api-token"), v.GetDuration("timeout"))
		if _, err := client.Health(ctx); err != nil {
			return fmt.Errorf("evaluation service health check: %w", err)
		}
		slog.Info("evaluation service OK", "url", url)
		ev = client
	} else {
		// The in-process engine keeps mock transcripts in memory when no
		// archive database is configured.
		ts := db
		if ts == nil {
			mem, err := store.New(":memory:")
			if err != nil {
				return fmt.Errorf("open transcript store: %w", err)
			}
			defer mem.Close()
			ts = mem
		}
		engine, err := newLLMClient(v, ts)
		if err != nil {
			return fmt.Errorf("create LLM client: %w", err)
		}
		ev = engine
	}

	cfg := session.Config{Timeout: v.GetDuration("timeout")}
	if mode == model.ModeBatch {
		cfg.PlannedCount = v.GetInt("count")
		cfg.Difficulty = model.Difficulty(strings.ToLower(v.GetString("difficulty")))
		if !model.IsValidRequestDifficulty(cfg.Difficulty) {
			return fmt.Errorf("unknown difficulty %q", cfg.Difficulty)
		}
	}
	var coachOpts []session.CoachOption
	if db != nil {
		coachOpts = append(coachOpts, session.WithArchiver(db))
	}
	coach := session.NewCoach(ev, cfg, coachOpts...)

	cat, err := catalog.Load(v.GetString("catalog"))
	if err != nil {
		return err
	}
	runner := console.New(coach, cat, cmd.InOrStdin(), cmd.OutOrStdout(), report.Options{NoColor: v.GetBool("no-color")})
	role, err := runner.ChooseRole(ctx, v.GetString("role"))
	if err != nil {
		return err
	}
	return runner.Run(ctx, role, mode)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportSessions(model.Role(v.GetString("role")))
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported sessions", "count", len(export.Sessions), "output", outPath)
	return nil
}
