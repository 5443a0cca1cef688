package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/term"

	"github.com/apollo-com-ph/apollo-claude/internal/api"
	"github.com/apollo-com-ph/apollo-claude/internal/completion"
	"github.com/apollo-com-ph/apollo-claude/internal/config"
	"github.com/apollo-com-ph/apollo-claude/internal/history"
	"github.com/apollo-com-ph/apollo-claude/internal/hook"
	"github.com/apollo-com-ph/apollo-claude/internal/logger"
	"github.com/apollo-com-ph/apollo-claude/internal/policy"
	"github.com/apollo-com-ph/apollo-claude/internal/refresh"
	"github.com/apollo-com-ph/apollo-claude/internal/tui"
)

// Version is set at build time via ldflags: -X main.Version=x.y.z
var Version = "1.0.0"

var log = logger.New("main")

func main() {
	// Shell completion (COMP_LINE set by the shell) bypasses everything.
	if completion.Run() {
		return
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "hook":
			runHook()
			return
		case "check":
			runCheck(os.Args[2:])
			return
		case "list-rules":
			runListRules(os.Args[2:])
			return
		case "lint-rules":
			runLintRules(os.Args[2:])
			return
		case "update":
			runUpdate(os.Args[2:])
			return
		case "history":
			runHistory(os.Args[2:])
			return
		case "serve":
			runServe(os.Args[2:])
			return
		case "init":
			runInit(os.Args[2:])
			return
		case "completion":
			runCompletion(os.Args[2:])
			return
		case "help", "-h", "--help":
			printUsage()
			return
		case "version", "-v", "--version":
			runVersion(os.Args[2:])
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
			printUsage()
			os.Exit(1)
		}
	}

	// Bare invocation: hook mode when something is piped in, usage when a
	// human runs it from a terminal.
	if term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec // Fd() fits in int on all supported platforms
		printUsage()
		return
	}
	runHook()
}

// applyLogSettings configures the global logger from config.
func applyLogSettings(cfg *config.Config) {
	logger.SetGlobalLevelFromString(cfg.Log.Level.String())
	if cfg.Log.NoColor {
		logger.SetColored(false)
		tui.SetPlainMode(true)
	}
}

// hookConfig loads configuration for the hook path. Unlike the CLI
// surfaces, a broken config file degrades to defaults with a warning: the
// gate keeps screening with builtin rules instead of failing the agent's
// tool call.
func hookConfig() (*config.Config, *config.Secrets) {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		log.Warn("Cannot load config, using defaults: %v", err)
		cfg = config.DefaultConfig()
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		log.Warn("Cannot load environment overrides: %v", err)
		secrets = &config.Secrets{}
	}
	secrets.Apply(cfg)
	applyLogSettings(cfg)
	return cfg, secrets
}

// mustConfig loads configuration for the CLI surfaces, where a broken
// config file is the user's problem and worth stopping for.
func mustConfig() (*config.Config, *config.Secrets) {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load secrets: %v\n", err)
		os.Exit(1)
	}
	secrets.Apply(cfg)
	applyLogSettings(cfg)
	return cfg, secrets
}

// buildEngine creates the policy engine per config.
func buildEngine(cfg *config.Config) *policy.Engine {
	docPath := cfg.Rules.PatternsFile
	if docPath == "" {
		docPath = config.PatternsPath()
	}
	return policy.NewEngine(policy.Options{
		DocumentPath:   docPath,
		DisableBuiltin: cfg.Rules.DisableBuiltin,
		Normalize:      cfg.Rules.Normalize,
		DeepScan:       cfg.Rules.DeepScan,
	})
}

// openHistory opens the decision store, or returns nil when history is
// disabled or unusable. The audit trail is best-effort throughout.
func openHistory(cfg *config.Config) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	dbPath := cfg.History.DBPath
	if dbPath == "" {
		dbPath = config.HistoryDBPath()
	}
	store, err := history.Open(dbPath, cfg.History.RetentionDays)
	if err != nil {
		log.Warn("Decision history disabled: %v", err)
		return nil
	}
	return store
}

// runHook reads one tool-call envelope from stdin and exits 0 (allow) or
// 2 (deny). This is the default mode the agent CLI invokes.
func runHook() {
	cfg, secrets := hookConfig()

	matcher, err := policy.NewToolMatcher(cfg.Hook.Tools)
	if err != nil {
		// An unusable tool filter means nothing can be screened.
		log.Warn("Invalid hook.tools, passing through: %v", err)
		os.Exit(hook.ExitAllow)
	}

	engine := buildEngine(cfg)
	store := openHistory(cfg)

	var refresher *refresh.Refresher
	if cfg.Update.Enabled {
		refresher = refresh.New(cfg, secrets)
	}

	runner := hook.NewRunner(cfg, engine, matcher, store, refresher)
	res := runner.Run(os.Stdin)

	if res.Decision.Denied() {
		// The protocol line. Written raw, not through the logger: the
		// agent relays this exact text to the model as the block reason.
		fmt.Fprintf(os.Stderr, "Blocked: %s\n", res.Decision.Reason)
	}
	if store != nil {
		_ = store.Close()
	}
	os.Exit(res.ExitCode)
}

// runCheck screens a command from the command line with the same exit
// contract as hook mode, so scripts can use it interchangeably.
func runCheck(args []string) {
	checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
	jsonOutput := checkFlags.Bool("json", false, "Output the decision as JSON")
	_ = checkFlags.Parse(args)

	command := strings.Join(checkFlags.Args(), " ")
	if strings.TrimSpace(command) == "" {
		fmt.Fprintln(os.Stderr, "Usage: safe-bash check [--json] <command>")
		os.Exit(1)
	}

	cfg, _ := mustConfig()
	engine := buildEngine(cfg)
	decision := engine.Evaluate(command)

	if store := openHistory(cfg); store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = store.Record(ctx, history.Entry{
			Tool:    "check",
			Command: command,
			Verdict: decision.Verdict.String(),
			Reason:  decision.Reason,
			Rule:    decision.Rule,
			Source:  string(decision.Source),
			Segment: decision.Segment,
		})
		cancel()
		_ = store.Close()
	}

	if *jsonOutput {
		out, err := json.MarshalIndent(decision, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	} else if decision.Denied() {
		tui.PrintDenied(decision.Reason)
	} else {
		tui.PrintAllowed()
	}

	if decision.Denied() {
		fmt.Fprintf(os.Stderr, "Blocked: %s\n", decision.Reason)
		os.Exit(hook.ExitDeny)
	}
}

// runListRules prints the active rule layers.
func runListRules(args []string) {
	listFlags := flag.NewFlagSet("list-rules", flag.ExitOnError)
	jsonOutput := listFlags.Bool("json", false, "Output as JSON")
	_ = listFlags.Parse(args)

	cfg, _ := mustConfig()
	engine := buildEngine(cfg)
	snap := engine.Snapshot()

	if *jsonOutput {
		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	total := len(snap.Builtin) + len(snap.UserDeny) + len(snap.UserAllow)
	fmt.Printf("%s %s\n\n", tui.Prefix(),
		tui.StyleTitle.Render(fmt.Sprintf("Rules (%d total, document version %d)", total, snap.Version)))

	printLayer("Builtin deny", snap.Builtin)
	printLayer("User deny", snap.UserDeny)
	printLayer("User allow", snap.UserAllow)

	docPath := cfg.Rules.PatternsFile
	if docPath == "" {
		docPath = config.PatternsPath()
	}
	fmt.Printf("User document: %s\n", tui.Faint(config.DisplayPath(docPath)))
}

// printLayer renders one rule layer for list-rules.
func printLayer(title string, list []policy.RuleStat) {
	fmt.Printf("%s\n", tui.StyleBold.Render(fmt.Sprintf("%s (%d):", title, len(list))))
	if len(list) == 0 {
		fmt.Printf("  %s\n\n", tui.Faint("(none)"))
		return
	}
	for _, r := range list {
		pattern := r.Pattern
		if len(pattern) > 70 {
			pattern = pattern[:67] + "..."
		}
		fmt.Printf("  %s\n", tui.StyleCommand.Render(pattern))
		if r.Reason != "" {
			fmt.Printf("    %s\n", tui.Faint(r.Reason))
		}
		if r.Exclude != "" {
			fmt.Printf("    %s\n", tui.Faint("except: "+r.Exclude))
		}
	}
	fmt.Println()
}

// runLintRules validates a rule document without touching the hook path.
func runLintRules(args []string) {
	lintFlags := flag.NewFlagSet("lint-rules", flag.ExitOnError)
	showInfo := lintFlags.Bool("info", false, "Show info-level issues")
	_ = lintFlags.Parse(args)

	cfg, _ := mustConfig()

	path := cfg.Rules.PatternsFile
	if path == "" {
		path = config.PatternsPath()
	}
	if rest := lintFlags.Args(); len(rest) > 0 {
		path = rest[0]
	}

	result, err := policy.NewLinter().LintFile(path)
	if err != nil {
		tui.PrintError(fmt.Sprintf("Cannot lint %s: %v", config.DisplayPath(path), err))
		os.Exit(1)
	}

	if output := result.FormatIssues(*showInfo); output != "" {
		fmt.Print(output)
		fmt.Println()
	}

	display := config.DisplayPath(path)
	switch {
	case result.Errors > 0:
		tui.PrintError(fmt.Sprintf("%s: %d error(s), %d warning(s)", display, result.Errors, result.Warns))
		os.Exit(1)
	case result.Warns > 0:
		tui.PrintWarning(fmt.Sprintf("%s: %d warning(s)", display, result.Warns))
	default:
		tui.PrintSuccess(fmt.Sprintf("%s lints clean", display))
	}
}

// runUpdate fetches the rule document. The plain form is the foreground
// command for humans; --detached is the quiet path the hook spawns.
func runUpdate(args []string) {
	updateFlags := flag.NewFlagSet("update", flag.ExitOnError)
	force := updateFlags.Bool("force", false, "Refresh even if the document is fresh")
	detached := updateFlags.Bool("detached", false, "Internal: run as the background updater")
	_ = updateFlags.Parse(args)

	cfg, secrets := mustConfig()
	r := refresh.New(cfg, secrets)

	ctx, cancel := context.WithTimeout(context.Background(), refresh.FetchTimeout)
	defer cancel()

	if *detached {
		// Spawned by the hook: no terminal, no output beyond the log.
		logger.SetColored(false)
		if err := r.Run(ctx); err != nil {
			log.Warn("Background update failed: %v", err)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v", err)
		os.Exit(1)
	}

	if !*force && !r.Stale() {
		tui.PrintInfo(fmt.Sprintf("Rule document is fresh (last update %s); use --force to fetch anyway",
			r.LastAttempt().Local().Format(time.RFC3339)))
		return
	}

	tui.PrintInfo(fmt.Sprintf("Fetching %s", cfg.Update.URL))
	if err := r.Run(ctx); err != nil {
		tui.PrintError(fmt.Sprintf("Update failed: %v", err))
		os.Exit(1)
	}
	tui.PrintSuccess(fmt.Sprintf("Rule document updated: %s", config.DisplayPath(config.PatternsPath())))
}

// runHistory lists recent screening decisions.
func runHistory(args []string) {
	histFlags := flag.NewFlagSet("history", flag.ExitOnError)
	limit := histFlags.Int("n", 20, "Number of entries to show")
	blocked := histFlags.Bool("blocked", false, "Show only blocked commands")
	jsonOutput := histFlags.Bool("json", false, "Output as JSON")
	_ = histFlags.Parse(args)

	if *limit < 1 {
		*limit = 20
	} else if *limit > 1000 {
		*limit = 1000
	}

	cfg, _ := mustConfig()
	dbPath := cfg.History.DBPath
	if dbPath == "" {
		dbPath = config.HistoryDBPath()
	}

	store, err := history.Open(dbPath, cfg.History.RetentionDays)
	if err != nil {
		tui.PrintError(fmt.Sprintf("Cannot open history: %v", err))
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	entries, err := store.List(ctx, history.ListOptions{Limit: *limit, OnlyDenied: *blocked})
	if err != nil {
		tui.PrintError(fmt.Sprintf("Cannot read history: %v", err))
		os.Exit(1)
	}

	if *jsonOutput {
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	if len(entries) == 0 {
		tui.PrintInfo("No recorded decisions")
		return
	}

	if stats, err := store.CountStats(ctx); err == nil {
		fmt.Printf("%s %s\n\n", tui.Prefix(),
			tui.StyleTitle.Render(fmt.Sprintf("Decision history (%d total, %d blocked)", stats.Total, stats.Denied)))
	}

	for _, e := range entries {
		verdict := tui.StyleSuccess.Render(fmt.Sprintf("%-5s", e.Verdict))
		if e.Verdict == "deny" {
			verdict = tui.StyleError.Render(fmt.Sprintf("%-5s", e.Verdict))
		}
		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		fmt.Printf("  %s  %s  %s\n", tui.Faint(ts), verdict, tui.StyleCommand.Render(e.Command))
		if e.Reason != "" {
			fmt.Printf("      %s\n", tui.Faint(e.Reason))
		}
	}
}

// runServe runs the local inspection API in the foreground.
func runServe(args []string) {
	serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := serveFlags.String("addr", "", "Listen address (default from config)")
	_ = serveFlags.Parse(args)

	cfg, _ := mustConfig()
	if *addr != "" {
		cfg.Serve.Addr = *addr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v", err)
		os.Exit(1)
	}

	engine := buildEngine(cfg)
	policy.SetGlobalEngine(engine)

	watcher, err := policy.NewWatcher(engine)
	if err != nil {
		log.Warn("Cannot create document watcher: %v", err)
		watcher = nil
	} else if err := watcher.Start(); err != nil {
		log.Warn("Cannot start document watcher: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.SecurityHeadersMiddleware())
	router.Use(api.BodySizeLimitMiddleware(api.MaxBodySize))

	handler := policy.NewAPIHandler(engine)
	v1 := router.Group("/v1")
	{
		v1.GET("/rules", handler.HandleRules)
		v1.GET("/rules/builtin", handler.HandleBuiltinRules)
		v1.GET("/rules/user", handler.HandleUserRules)
		v1.POST("/check", handler.HandleCheck)
		v1.POST("/lint", handler.HandleLint)
		v1.POST("/reload", handler.HandleReload)
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	server := &http.Server{
		Addr:    cfg.Serve.Addr,
		Handler: router,
		// SECURITY: ReadHeaderTimeout prevents Slowloris attacks.
		ReadHeaderTimeout: 10 * time.Second,
	}

	builtin, deny, allow := engine.RuleCount()
	log.Info("Inspection API listening on %s (%d builtin, %d user deny, %d user allow)",
		cfg.Serve.Addr, builtin, deny, allow)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	if watcher != nil {
		_ = watcher.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
		os.Exit(1)
	}
	log.Info("Stopped")
}

// runInit writes the commented default config file.
func runInit(args []string) {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	force := initFlags.Bool("force", false, "Overwrite an existing config file")
	_ = initFlags.Parse(args)

	path := config.DefaultConfigPath()
	if *force {
		_ = os.Remove(path)
	}
	if err := config.WriteDefault(path); err != nil {
		tui.PrintError(fmt.Sprintf("Cannot write config: %v", err))
		os.Exit(1)
	}
	tui.PrintSuccess(fmt.Sprintf("Wrote %s", config.DisplayPath(path)))
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Review %s\n", config.DisplayPath(path))
	fmt.Println("  2. Register safe-bash as a PreToolUse hook for your agent's Bash tool")
	fmt.Println("  3. Try it: safe-bash check 'rm -rf /'")
}

// runCompletion installs or removes shell tab-completion.
func runCompletion(args []string) {
	compFlags := flag.NewFlagSet("completion", flag.ExitOnError)
	doInstall := compFlags.Bool("install", false, "Install shell completion")
	doUninstall := compFlags.Bool("uninstall", false, "Remove shell completion")
	_ = compFlags.Parse(args)

	switch {
	case *doInstall:
		if completion.IsInstalled() {
			tui.PrintInfo("Shell completion is already installed")
			return
		}
		if err := completion.Install(); err != nil {
			tui.PrintError(fmt.Sprintf("Cannot install completion: %v", err))
			os.Exit(1)
		}
		tui.PrintSuccess("Shell completion installed; restart your shell to use it")
	case *doUninstall:
		if err := completion.Uninstall(); err != nil {
			tui.PrintError(fmt.Sprintf("Cannot remove completion: %v", err))
			os.Exit(1)
		}
		tui.PrintSuccess("Shell completion removed")
	default:
		fmt.Fprintln(os.Stderr, "Usage: safe-bash completion --install | --uninstall")
		os.Exit(1)
	}
}

// runVersion prints version information.
func runVersion(args []string) {
	versionFlags := flag.NewFlagSet("version", flag.ExitOnError)
	jsonOutput := versionFlags.Bool("json", false, "Output as JSON")
	_ = versionFlags.Parse(args)

	if *jsonOutput {
		out, err := json.Marshal(map[string]string{
			"version": Version,
			"go":      runtime.Version(),
			"os":      runtime.GOOS,
			"arch":    runtime.GOARCH,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}
	fmt.Printf("safe-bash version %s\n", Version)
}

func printUsage() {
	fmt.Println(`safe-bash - Command policy gate for AI agents

Screens shell commands an agent wants to run against builtin and
user-maintained deny/allow rules, before anything executes.

Usage:
  safe-bash                         Hook mode: read one tool-call envelope from stdin
  safe-bash check [--json] <cmd>    Screen a command (exit 0 allowed, 2 blocked)
  safe-bash list-rules [--json]     List builtin and user rules
  safe-bash lint-rules [--info] [file]
                                    Validate a rule document (default: live document)
  safe-bash update [--force]        Fetch the latest rule document now
  safe-bash history [-n N] [--blocked] [--json]
                                    Show recent decisions
  safe-bash serve [--addr host:port]
                                    Run the local inspection API
  safe-bash init [--force]          Write the default config file
  safe-bash completion --install    Set up shell tab-completion
  safe-bash version [--json]        Show version
  safe-bash help                    Show this help message

Files (override the directory with SAFE_BASH_DIR):
  ~/.safe-bash/config.yaml      configuration
  ~/.safe-bash/patterns.json    user rule document (deny/allow patterns)
  ~/.safe-bash/history.db       decision history

Environment:
  SAFE_BASH_UPDATE_URL      Override the rule document URL
  SAFE_BASH_UPDATE_TOKEN    Bearer token for private rule feeds
  SAFE_BASH_LOG_LEVEL       trace, debug, info, warn, error

Exit codes (hook and check):
  0  command allowed
  2  command blocked ("Blocked: <reason>" on stderr)

Examples:
  echo '{"tool_name":"Bash","tool_input":{"command":"rm -rf /"}}' | safe-bash
  safe-bash check "git push --force"
  safe-bash history --blocked -n 50`)
}
