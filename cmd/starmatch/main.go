// starmatch CLI - stores chart pattern scripts and evaluates them against
// computed chart contexts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/kexing/starmatch/audit"
	"github.com/kexing/starmatch/chart"
	"github.com/kexing/starmatch/config"
	"github.com/kexing/starmatch/engine"
	"github.com/kexing/starmatch/sandbox"
	"github.com/kexing/starmatch/server"
	"github.com/kexing/starmatch/store"
)

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0 = notices and up)")
	configDir := flag.String("config", ".", "Directory to search for starmatch.toml (walks up)")
	dbPath := flag.String("db", "", "Pattern database path (overrides config)")
	listen := flag.String("listen", "", "TCP listen address for serve (overrides config; empty = stdio)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: starmatch [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  create <name> <script> [description] [examples]   Store a new pattern\n")
		fmt.Fprintf(os.Stderr, "  list                                              List stored patterns\n")
		fmt.Fprintf(os.Stderr, "  eval <chart.json>                                 Evaluate all patterns against a chart\n")
		fmt.Fprintf(os.Stderr, "  export <file>                                     Write a CBOR pattern-set snapshot\n")
		fmt.Fprintf(os.Stderr, "  import <file>                                     Load a pattern-set snapshot\n")
		fmt.Fprintf(os.Stderr, "  stats                                             Show per-pattern match counts (audit)\n")
		fmt.Fprintf(os.Stderr, "  serve                                             Serve JSON-RPC on stdio (or -listen addr)\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  starmatch create \"male chart\" \"return context.gender === 'male';\"\n")
		fmt.Fprintf(os.Stderr, "  starmatch eval chart.json\n")
		fmt.Fprintf(os.Stderr, "  starmatch -listen :7600 serve\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fatalf("loading config: %v", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(cfg, flag.Args()); err != nil {
		fatalf("%v", err)
	}
}

func run(cfg *config.Config, args []string) error {
	if dir := dirOf(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "create":
		if len(args) < 3 {
			return fmt.Errorf("create needs a name and a script")
		}
		description, examples := "", ""
		if len(args) > 3 {
			description = args[3]
		}
		if len(args) > 4 {
			examples = args[4]
		}
		id, err := st.Create(args[1], args[2], description, examples)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil

	case "list":
		patterns, err := st.List()
		if err != nil {
			return err
		}
		for _, p := range patterns {
			fmt.Printf("%s  %s\n", p.ID, p.Name)
			if p.Description != "" {
				fmt.Printf("    %s\n", p.Description)
			}
		}
		return nil

	case "eval":
		if len(args) < 2 {
			return fmt.Errorf("eval needs a chart JSON file")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		c, err := chart.FromJSON(data)
		if err != nil {
			return err
		}
		coord, closeAudit, err := newCoordinator(cfg, st)
		if err != nil {
			return err
		}
		defer closeAudit()
		matches, err := coord.EvaluateAll(context.Background(), c)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(matches, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case "export":
		if len(args) < 2 {
			return fmt.Errorf("export needs an output file")
		}
		data, err := st.ExportSet()
		if err != nil {
			return err
		}
		return os.WriteFile(args[1], data, 0o644)

	case "import":
		if len(args) < 2 {
			return fmt.Errorf("import needs an input file")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		n, err := st.ImportSet(data)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d patterns\n", n)
		return nil

	case "stats":
		if !cfg.Audit.Enabled {
			return fmt.Errorf("audit is disabled in configuration")
		}
		rec, err := audit.Open(cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer rec.Close()
		counts, err := rec.MatchCounts()
		if err != nil {
			return err
		}
		for _, c := range counts {
			fmt.Printf("%s  %d/%d matched\n", c.PatternID, c.Matches, c.Runs)
		}
		return nil

	case "serve":
		coord, closeAudit, err := newCoordinator(cfg, st)
		if err != nil {
			return err
		}
		defer closeAudit()
		svc := server.NewService(st, coord)
		if cfg.Server.Listen != "" {
			return svc.ServeTCP(context.Background(), cfg.Server.Listen)
		}
		return svc.ServeStdio(context.Background())
	}

	return fmt.Errorf("unknown command %q", args[0])
}

// newCoordinator builds the evaluation coordinator, attaching the audit
// recorder when configured.
func newCoordinator(cfg *config.Config, st *store.Store) (*engine.Coordinator, func(), error) {
	exec := sandbox.NewExecutor(cfg.Sandbox.Timeout())

	if !cfg.Audit.Enabled {
		return engine.NewCoordinator(st, exec), func() {}, nil
	}

	if dir := dirOf(cfg.Audit.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating audit directory: %w", err)
		}
	}
	rec, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		return nil, nil, err
	}
	coord := engine.NewCoordinator(st, exec, engine.WithObserver(rec))
	return coord, func() { rec.Close() }, nil
}

func dirOf(path string) string {
	if path == "" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
