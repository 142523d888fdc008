package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/geocalc/internal/backend"
	"github.com/aristath/geocalc/internal/config"
	"github.com/aristath/geocalc/internal/events"
	"github.com/aristath/geocalc/internal/merge"
	"github.com/aristath/geocalc/internal/orchestrator"
	"github.com/aristath/geocalc/internal/persistence"
	"github.com/aristath/geocalc/internal/scheduler"
	"github.com/aristath/geocalc/internal/tui"
)

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, exit, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
	if exit {
		return
	}
	if opts.InitConfig {
		path, err := initConfig(opts.ConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return
	}

	// API keys may live in .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("WARNING: failed to load .env: %v", err)
	}

	pm := backend.NewProcessManager()
	err = run(ctx, opts, pm, os.Stdout)

	if ctx.Err() != nil {
		// Call stop() to restore default signal handling (double Ctrl+C = force exit)
		stop()
		log.Println("Shutdown signal received, cleaning up...")
		if err := pm.KillAll(); err != nil {
			log.Printf("Error killing subprocesses: %v", err)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads the plan, wires agents, journal and views, runs the session and
// prints the merged result as JSON.
func run(ctx context.Context, opts *options, pm *backend.ProcessManager, stdout io.Writer) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	plan, err := scheduler.LoadPlan(opts.PlanPath)
	if err != nil {
		return err
	}
	var update *scheduler.Update
	if opts.UpdatePath != "" {
		data, err := os.ReadFile(opts.UpdatePath)
		if err != nil {
			return fmt.Errorf("failed to read update: %w", err)
		}
		if update, err = scheduler.ParseUpdate(data); err != nil {
			return err
		}
	}

	var store persistence.Store
	if path := journalPath(cfg, opts); path != "" {
		s, err := persistence.NewSQLiteStore(ctx, path)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	agents, err := newAgents(ctx, cfg, pm, plan.Problem)
	if err != nil {
		return err
	}
	defer agents.Close()

	bus := events.NewEventBus()
	defer bus.Close()

	sessionCfg := orchestrator.SessionConfig{
		Dispatch: agents.dispatch,
		Events:   bus,
	}
	if store != nil {
		sessionCfg.Journal = store
	}
	if agents.planWriter != nil {
		sessionCfg.PlanWriter = agents.planWriter
	}
	session, err := orchestrator.NewSession(sessionCfg)
	if err != nil {
		return err
	}

	if err := session.Plan(ctx, plan); err != nil {
		return err
	}
	if update != nil {
		if err := session.Revise(ctx, *update); err != nil {
			return err
		}
	}
	if store != nil {
		agents.journal(ctx, store, session.RunID())
	}

	var final *merge.Final
	if opts.TUI {
		final, err = runWithTUI(ctx, session, bus, plan.Problem)
	} else {
		final, err = session.Run(ctx)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(final)
}

// runWithTUI runs the session and the terminal UI side by side. Quitting the
// UI early cancels the session.
func runWithTUI(ctx context.Context, session *orchestrator.Session, bus *events.EventBus, title string) (*merge.Final, error) {
	p := tea.NewProgram(tui.New(bus, title), tea.WithAltScreen(), tea.WithContext(ctx))

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var final *merge.Final
	var g errgroup.Group
	g.Go(func() error {
		var err error
		final, err = session.Run(runCtx)
		p.Send(tui.RunFinishedMsg{Err: err})
		return err
	})
	g.Go(func() error {
		_, err := p.Run()
		cancelRun()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil // the session reports the cancellation
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return final, nil
}

// initConfig writes the default config to path, or to the project config
// location when path is empty. An existing file is left alone.
func initConfig(path string) (string, error) {
	if path == "" {
		path = filepath.Join(".geocalc", "config.json")
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	}
	if err := config.Save(config.DefaultConfig(), path); err != nil {
		return "", err
	}
	return path, nil
}

func loadConfig(projectPath string) (*config.Config, error) {
	if projectPath == "" {
		return config.LoadDefault()
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}
	return config.Load(filepath.Join(homeDir, ".geocalc", "config.json"), projectPath)
}

func journalPath(cfg *config.Config, opts *options) string {
	if opts.JournalPath != "" {
		return opts.JournalPath
	}
	if cfg.Journal.Enabled {
		return cfg.Journal.Path
	}
	return ""
}
