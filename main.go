package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/overtabbed/internal/applog"
	"github.com/lotas/overtabbed/internal/browser"
	"github.com/lotas/overtabbed/internal/engine"
	"github.com/lotas/overtabbed/internal/rules"
	"github.com/lotas/overtabbed/internal/session"
	"github.com/lotas/overtabbed/internal/storage"
	"github.com/lotas/overtabbed/internal/tui"
	"github.com/lotas/overtabbed/internal/types"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			runDaemon(os.Args[2:], false)
			return
		case "watch":
			runDaemon(os.Args[2:], true)
			return
		case "rules":
			runRules(os.Args[2:])
			return
		case "preview":
			runPreview(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}
	runDaemon(os.Args[1:], false)
}

func resolveDBPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("OVERTABBED_DB"); env != "" {
		return env
	}
	path, err := storage.DefaultDBPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving database path: %v\n", err)
		os.Exit(1)
	}
	return path
}

func resolvePort(flagValue int) int {
	if flagValue != 0 {
		return flagValue
	}
	if env := os.Getenv("OVERTABBED_PORT"); env != "" {
		if p, err := strconv.Atoi(env); err == nil {
			return p
		}
	}
	return 19192
}

func dataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "overtabbed")
}

// runDaemon starts the bridge and the rule engine; with watch=true it also
// shows the monitor TUI.
func runDaemon(args []string, watch bool) {
	name := "run"
	if watch {
		name = "watch"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	port := fs.Int("port", 0, "WebSocket port for the extension bridge (default: 19192)")
	dbPath := fs.String("db", "", "Rule database path")
	intervalSec := fs.Int("interval", 60, "Evaluation interval in seconds")
	fs.Parse(args)

	if err := applog.Init(dataDir()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open log file: %v\n", err)
	}
	defer applog.Close()

	db, err := storage.OpenDB(resolveDBPath(*dbPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	store := storage.NewStore(db)

	bridge := browser.NewBridge(resolvePort(*port))
	eng := engine.New(bridge, store)
	eng.SetInterval(time.Duration(*intervalSec) * time.Second)
	bridge.OnRun(func() {
		eng.RunNow(context.Background())
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cycles chan engine.CycleResult
	if watch {
		cycles = make(chan engine.CycleResult, 16)
		eng.SetOnCycle(func(res engine.CycleResult) {
			select {
			case cycles <- res:
			default:
			}
		})
	}

	eng.Start(ctx, bridge.Events())
	defer eng.Stop()

	if !watch {
		fmt.Fprintf(os.Stderr, "overtabbed: waiting for extension on port %d\n", resolvePort(*port))
		if err := bridge.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	go bridge.ListenAndServe(ctx)

	p := tea.NewProgram(tui.NewModel(eng, bridge, cycles), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runRules is the rule management CLI: list, enable, disable, delete,
// import, export.
func runRules(args []string) {
	if len(args) > 0 {
		switch args[0] {
		case "enable", "disable":
			setEnabled(args[1:], args[0] == "enable")
			return
		case "delete":
			deleteRule(args[1:])
			return
		case "import":
			importRules(args[1:])
			return
		case "export":
			exportRules(args[1:])
			return
		}
	}
	listRules(args)
}

func openStore(dbPath string) *storage.Store {
	db, err := storage.OpenDB(resolveDBPath(dbPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	return storage.NewStore(db)
}

var (
	ruleNameStyle = lipgloss.NewStyle().Bold(true)
	ruleIDStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true)
	partStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func listRules(args []string) {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	dbPath := fs.String("db", "", "Rule database path")
	fs.Parse(args)

	store := openStore(*dbPath)
	defer store.DB.Close()

	all, err := store.ListRules(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(all) == 0 {
		fmt.Println("No rules. Add some with: overtabbed rules import <file.json>")
		return
	}

	for _, r := range all {
		name := ruleNameStyle.Render(r.Name)
		if !r.Enabled {
			name = disabledStyle.Render(r.Name + " (disabled)")
		}
		fmt.Printf("%s  %s\n", name, ruleIDStyle.Render(r.ID))
		fmt.Printf("  %s\n", partStyle.Render(describeRule(r)))
	}
}

// describeRule renders a one-line human summary of a rule's three parts.
func describeRule(r *rules.Rule) string {
	if r.Inert() {
		return "incomplete rule (missing subject, condition, or action)"
	}
	var parts []string
	for _, m := range r.Subject.Matchers {
		parts = append(parts, fmt.Sprintf("%s %s %q", m.Field, m.Operator, m.Value))
	}
	subject := "all tabs"
	if len(parts) > 0 {
		subject = joinWith(parts, r.Subject.Join)
	}

	parts = parts[:0]
	for _, m := range r.Condition.Matchers {
		switch m.Type {
		case rules.CondTabAge, rules.CondTabInactive:
			parts = append(parts, fmt.Sprintf("%s %s %d %s", m.Type, m.Operator, m.Value, m.Unit))
		default:
			parts = append(parts, fmt.Sprintf("%s %s %d", m.Type, m.Operator, m.Value))
		}
	}
	condition := "always"
	if len(parts) > 0 {
		condition = joinWith(parts, r.Condition.Join)
	}

	parts = parts[:0]
	for _, m := range r.Action.Matchers {
		desc := m.Type.String()
		if m.Type == rules.ActionMoveToGroup && m.Params != nil {
			desc = fmt.Sprintf("%s %q", m.Type, m.Params.GroupName)
		}
		parts = append(parts, desc)
	}

	return fmt.Sprintf("%s | when %s | then %s", subject, condition, joinWith(parts, rules.JoinAnd))
}

func joinWith(parts []string, join rules.JoinOperator) string {
	sep := " and "
	if join == rules.JoinOr {
		sep = " or "
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += sep + p
	}
	return out
}

func setEnabled(args []string, enabled bool) {
	fs := flag.NewFlagSet("rules enable", flag.ExitOnError)
	dbPath := fs.String("db", "", "Rule database path")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: overtabbed rules enable|disable <rule-id>")
		os.Exit(1)
	}

	store := openStore(*dbPath)
	defer store.DB.Close()

	if err := store.SetRuleEnabled(context.Background(), fs.Arg(0), enabled); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func deleteRule(args []string) {
	fs := flag.NewFlagSet("rules delete", flag.ExitOnError)
	dbPath := fs.String("db", "", "Rule database path")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: overtabbed rules delete <rule-id>")
		os.Exit(1)
	}

	store := openStore(*dbPath)
	defer store.DB.Close()

	if err := store.DeleteRule(context.Background(), fs.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func importRules(args []string) {
	fs := flag.NewFlagSet("rules import", flag.ExitOnError)
	dbPath := fs.String("db", "", "Rule database path")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: overtabbed rules import <file.json>")
		os.Exit(1)
	}

	imported, err := loadRuleFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store := openStore(*dbPath)
	defer store.DB.Close()

	ctx := context.Background()
	for _, r := range imported {
		if err := store.SaveRule(ctx, r); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving rule %q: %v\n", r.Name, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Imported %d rules\n", len(imported))
}

// loadRuleFile reads a JSON file containing either a single rule object or
// an array of rules.
func loadRuleFile(path string) ([]*rules.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []*rules.Rule
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var one rules.Rule
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return []*rules.Rule{&one}, nil
}

func exportRules(args []string) {
	fs := flag.NewFlagSet("rules export", flag.ExitOnError)
	dbPath := fs.String("db", "", "Rule database path")
	outFile := fs.String("out", "", "Output file path (default: stdout)")
	fs.Parse(args)

	store := openStore(*dbPath)
	defer store.DB.Close()

	all, err := store.ListRules(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	data = append(data, '\n')

	if *outFile != "" {
		if err := os.WriteFile(*outFile, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *outFile, err)
			os.Exit(1)
		}
		return
	}
	os.Stdout.Write(data)
}

// runPreview evaluates rules against a Firefox session file without
// performing any actions: a dry run for authoring rules offline.
func runPreview(args []string) {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	dbPath := fs.String("db", "", "Rule database path")
	rulesFile := fs.String("rules", "", "Evaluate rules from a JSON file instead of the database")
	profileName := fs.String("profile", "", "Firefox profile name")
	fs.Parse(args)

	var all []*rules.Rule
	var err error
	if *rulesFile != "" {
		all, err = loadRuleFile(*rulesFile)
	} else {
		store := openStore(*dbPath)
		defer store.DB.Close()
		all, err = store.ListRules(context.Background())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading rules: %v\n", err)
		os.Exit(1)
	}

	tabs, err := loadSessionTabs(*profileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	stats := types.Collect(tabs)
	fmt.Printf("Loaded %d tabs across %d windows (%d pinned)\n\n",
		stats.TotalTabs, stats.TotalWindows, stats.PinnedTabs)

	now := time.Now()
	for _, r := range all {
		if !r.Enabled || r.Inert() {
			continue
		}
		candidates := rules.FilterSubjects(r.Subject, tabs)
		var qualifying []*types.Tab
		for _, tab := range candidates {
			if rules.EvaluateCondition(r.Condition, tab, tabs, now) {
				qualifying = append(qualifying, tab)
			}
		}

		fmt.Printf("%s  %s\n", ruleNameStyle.Render(r.Name), ruleIDStyle.Render(fmt.Sprintf("%d of %d tabs", len(qualifying), len(tabs))))
		for _, tab := range qualifying {
			title := tab.Title
			if title == "" {
				title = tab.URL
			}
			fmt.Printf("  %s\n", partStyle.Render(title))
		}
	}
}

func loadSessionTabs(profileName string) ([]*types.Tab, error) {
	profiles, err := session.DiscoverProfiles()
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no Firefox profiles with a session store found")
	}

	profile := profiles[0]
	if profileName != "" {
		found := false
		for _, p := range profiles {
			if p.Name == profileName {
				profile, found = p, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("profile %q not found", profileName)
		}
	} else {
		for _, p := range profiles {
			if p.IsDefault {
				profile = p
				break
			}
		}
	}

	return session.ReadSessionFile(profile.Path)
}

func printHelp() {
	fmt.Print(`overtabbed — rule-driven tab automation daemon

Usage:
  overtabbed [run]                       Start the engine (default)
    --port <n>           WebSocket port for the extension bridge (default: 19192)
    --db <path>          Rule database path
    --interval <sec>     Evaluation interval in seconds (default: 60)

  overtabbed watch                       Start the engine with a terminal monitor
                                         (same flags as run)

  overtabbed rules                       List stored rules
  overtabbed rules enable <id>           Enable a rule
  overtabbed rules disable <id>          Disable a rule
  overtabbed rules delete <id>           Delete a rule
  overtabbed rules import <file.json>    Import rules from JSON
  overtabbed rules export [--out file]   Export rules as JSON

  overtabbed preview                     Dry-run rules against a Firefox session file
    --rules <file.json>  Evaluate rules from a file instead of the database
    --profile <name>     Firefox profile name (default: the default profile)

Manual trigger:
  POST http://127.0.0.1:<port>/run runs one evaluation cycle immediately;
  the extension can also send a runRules message over the WebSocket.

Environment:
  OVERTABBED_DB        Rule database path (overridden by --db)
  OVERTABBED_PORT      Extension bridge port (overridden by --port)
`)
}
