// ABOUTME: Entry point for the teable-gateway server
// ABOUTME: Multiplexes MCP sessions onto per-tenant Teable workspaces

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/relaymark/teable-gateway/internal/config"
	"github.com/relaymark/teable-gateway/internal/gateway"
	"github.com/relaymark/teable-gateway/internal/notify"
	"github.com/relaymark/teable-gateway/internal/store"
	"github.com/relaymark/teable-gateway/internal/vault"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _             _     _
| |_ ___  __ _| |__ | | ___        __ _  __ _| |_ _____      ____ _ _   _
| __/ _ \/ _' | '_ \| |/ _ \_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| ||  __/ (_| | |_) | |  __/_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__\___|\__,_|_.__/|_|\___|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                  |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: TEABLE_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/teable-gateway/gateway.yaml > ~/.config/teable-gateway/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TEABLE_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "teable-gateway", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: teable-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                              Start the gateway server")
		fmt.Println("  init                               Create a new config file with fresh secrets")
		fmt.Println("  create-customer --name N --email E Provision a customer and print their MCP key")
		fmt.Println("  health                             Check gateway health")
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
	case "create-customer":
		err = runCreateCustomer(ctx)
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

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:  %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting teable-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	v, err := vault.New(cfg.VaultKey())
	if err != nil {
		return fmt.Errorf("initializing vault: %w", err)
	}

	gw := gateway.New(cfg, s, v, notify.NewLogNotifier())
	return gw.Start(ctx)
}

// runInit writes a starter config with freshly generated secrets
func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	vaultKey := make([]byte, 32)
	if _, err := rand.Read(vaultKey); err != nil {
		return fmt.Errorf("generating vault key: %w", err)
	}
	jwtSecret := make([]byte, 32)
	if _, err := rand.Read(jwtSecret); err != nil {
		return fmt.Errorf("generating jwt secret: %w", err)
	}

	content := fmt.Sprintf(`server:
  http_addr: "0.0.0.0:8080"

database:
  path: "gateway.db"

vault:
  encryption_key: "%s"

auth:
  jwt_secret: "%s"
  admin_email: ""
  admin_password: ""

sessions:
  idle_timeout: "30m"
  rate_limit: 10
  rate_burst: 20

billing:
  webhook_secret: "${PAYMENT_WEBHOOK_SECRET}"
  payment_link_pro: ""
  payment_link_enterprise: ""

teable:
  default_base_url: "https://app.teable.ai/api"

logging:
  level: "info"
  format: "text"

metrics:
  enabled: true
  path: "/metrics"
`, hex.EncodeToString(vaultKey), hex.EncodeToString(jwtSecret))

	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("Created %s\n", configPath)
	fmt.Println("Set auth.admin_email and auth.admin_password before enabling the admin API.")
	return nil
}

// runCreateCustomer provisions a tenant directly in the database and prints
// the generated MCP key. Useful before the admin API has credentials.
func runCreateCustomer(ctx context.Context) error {
	var name, email, tier string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--name":
			if i+1 >= len(args) {
				return fmt.Errorf("--name requires a value")
			}
			name = args[i+1]
			i++
		case strings.HasPrefix(arg, "--name="):
			name = strings.TrimPrefix(arg, "--name=")
		case arg == "--email":
			if i+1 >= len(args) {
				return fmt.Errorf("--email requires a value")
			}
			email = args[i+1]
			i++
		case strings.HasPrefix(arg, "--email="):
			email = strings.TrimPrefix(arg, "--email=")
		case arg == "--tier":
			if i+1 >= len(args) {
				return fmt.Errorf("--tier requires a value")
			}
			tier = args[i+1]
			i++
		case strings.HasPrefix(arg, "--tier="):
			tier = strings.TrimPrefix(arg, "--tier=")
		default:
			return fmt.Errorf("unknown argument: %s", arg)
		}
	}

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return fmt.Errorf("--name and --email are required")
	}
	if tier == "" {
		tier = store.TierFree
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	keyBytes := make([]byte, 16)
	if _, err := rand.Read(keyBytes); err != nil {
		return fmt.Errorf("generating mcp key: %w", err)
	}
	lookupKey := hex.EncodeToString(keyBytes)

	tenant := &store.Tenant{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		LookupKey:    lookupKey,
		Tier:         tier,
		QuotaCeiling: store.TierCeiling(tier),
	}
	if err := s.CreateTenant(ctx, tenant); err != nil {
		return fmt.Errorf("creating customer: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	green.Println("Customer created")
	fmt.Printf("  Email:   %s\n", email)
	fmt.Printf("  Tier:    %s (%d records)\n", tier, tenant.QuotaCeiling)
	fmt.Print("  MCP key: ")
	cyan.Println(lookupKey)
	fmt.Printf("\nSSE endpoint:        /mcp/%s/sse\n", lookupKey)
	fmt.Printf("Streamable endpoint: /mcp/%s/mcp\n", lookupKey)
	fmt.Println("\nUpload a Teable token with POST /api/customers/" + lookupKey + "/token to activate.")
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
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

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{level: level})
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

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

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

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
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
