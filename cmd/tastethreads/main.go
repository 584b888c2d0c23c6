// ABOUTME: Entry point for the tastethreads room and agent server
// ABOUTME: Wires the store, trigger, tool router, and gateway together

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/youneslaaroussi/TasteThreads-sub001/internal/agent"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/auth"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/booking"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/config"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/gateway"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/llm"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/profile"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/room"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/store"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/tools"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/trace"
	"github.com/youneslaaroussi/TasteThreads-sub001/internal/trigger"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _            _       _   _                        _
| |_ __ _ ___| |_ ___| |_| |__  _ __ ___  __ _  __| |___
| __/ _' / __| __/ _ \ __| '_ \| '__/ _ \/ _' |/ _' / __|
| || (_| \__ \ ||  __/ |_| | | | | |  __/ (_| | (_| \__ \
 \__\__,_|___/\__\___|\__|_| |_|_|  \___|\__,_|\__,_|___/
`

// getConfigPath returns the path to the config file.
// Priority: TASTETHREADS_CONFIG env var > XDG_CONFIG_HOME/tastethreads/config.yaml > ~/.config/tastethreads/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TASTETHREADS_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "tastethreads", "config.yaml")
}

// getDataPath returns the path to the data directory.
// Priority: XDG_DATA_HOME/tastethreads > ~/.local/share/tastethreads
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "tastethreads")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: tastethreads <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve               Start the server")
		fmt.Println("  init                Create a starter config file")
		fmt.Println("  token --name NAME   Mint a JWT for a new user")
		fmt.Println("  health              Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if cfg.Provider.TestMode {
		green.Print("    ▶ ")
		yellow.Println("Booking:  test mode (canned provider)")
	}
	fmt.Println()

	logger.Info("starting tastethreads",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"test_mode", cfg.Provider.TestMode,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	broadcaster := room.NewBroadcaster(logger)
	defer broadcaster.Close()
	rooms := room.NewService(st, broadcaster, logger)

	cadence := cfg.Agent.Cadence
	if cadence == 0 {
		cadence = trigger.DefaultCadence
	}
	aliases := cfg.Agent.Aliases
	if len(aliases) == 0 {
		aliases = trigger.DefaultAliases
	}
	coordinator := trigger.NewCoordinator(trigger.NewEvaluator(cadence, aliases), logger)

	tracer := trace.NewLogRecorder(logger)
	router := tools.NewRouter(tools.RouterConfig{
		Live:     tools.NewHTTPProvider(cfg.Provider.BaseURL, cfg.Provider.APIKey, 0),
		Canned:   tools.NewCannedProvider(nil),
		TestMode: cfg.Provider.TestMode,
		Tracer:   tracer,
		Logger:   logger,
	})
	workflow := booking.NewWorkflow(router, st, nil, logger)

	planner, summarizer, err := buildPlanner(ctx, cfg, logger)
	if err != nil {
		return err
	}

	profiles := profile.NewService(st, nil, 0, logger)
	runner := agent.NewRunner(agent.RunnerConfig{
		Store:     st,
		Rooms:     rooms,
		Assembler: agent.NewAssembler(st, profiles, summarizer, cfg.Agent.ContextBudget, logger),
		Relay:     agent.NewRelay(logger),
		Planner:   planner,
		Router:    router,
		Workflow:  workflow,
		Tracer:    tracer,
		Logger:    logger,
	})

	sweeper, err := booking.NewSweeper(st, rooms, nil, cfg.Booking.SweepInterval, logger)
	if err != nil {
		return fmt.Errorf("creating hold sweeper: %w", err)
	}
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("starting hold sweeper: %w", err)
	}
	defer func() {
		if err := sweeper.Stop(); err != nil {
			logger.Error("stopping hold sweeper", "error", err)
		}
	}()

	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	gw := gateway.New(cfg, rooms, coordinator, runner, profiles, verifier, logger)
	return gw.Run(ctx)
}

// buildPlanner selects the model backend. Without a Gemini key the server
// runs on the deterministic stub, which is only useful for local work.
func buildPlanner(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Planner, llm.Summarizer, error) {
	if cfg.Gemini.APIKey == "" {
		logger.Warn("no gemini api key configured, using stub planner")
		return &llm.StubPlanner{}, &llm.StubSummarizer{}, nil
	}
	model := cfg.Gemini.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	g, err := llm.NewGemini(ctx, cfg.Gemini.APIKey, model, 0, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return g, g, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// runInit writes a starter config with a fresh JWT secret.
func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "tastethreads.db")

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# tastethreads configuration
# Generated by tastethreads init

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

auth:
  jwt_secret: "%s"

provider:
  base_url: "https://provider.example.com"
  api_key: "${PROVIDER_API_KEY}"
  test_mode: true

gemini:
  api_key: "${GEMINI_API_KEY}"
  model: "gemini-2.0-flash"

agent:
  cadence: 5
  aliases: ["tess", "ai", "yelp"]

booking:
  sweep_interval: "30s"

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println()
	fmt.Println("  Next steps:")
	fmt.Println("    tastethreads token --name \"Your Name\"   # mint a user token")
	fmt.Println("    tastethreads serve                      # start the server")
	return nil
}

// runToken mints a JWT for a new user against the configured secret.
func runToken() error {
	// Supports both "--name value" and "--name=value" formats
	var displayName string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--name" || arg == "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			displayName = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			displayName = strings.TrimPrefix(arg, "--name=")
		case strings.HasPrefix(arg, "-n="):
			displayName = strings.TrimPrefix(arg, "-n=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return fmt.Errorf("--name flag is required")
	}
	if len(displayName) > 100 {
		return fmt.Errorf("display name exceeds maximum length of 100 characters")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	userID := uuid.NewString()
	tokenTTL := 30 * 24 * time.Hour
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Generate(userID, displayName, tokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Println("  Token minted")
	fmt.Printf("  User ID: %s\n", userID)
	fmt.Printf("  Name:    %s\n", displayName)
	fmt.Printf("  Expires: %s\n", time.Now().Add(tokenTTL).UTC().Format("Jan 02, 2006"))
	fmt.Println()
	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/api/healthz", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
