package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/jask/dexnav/internal/config"
	"github.com/jask/dexnav/internal/fetch"
	"github.com/jask/dexnav/internal/journal"
	"github.com/jask/dexnav/internal/logging"
	"github.com/jask/dexnav/internal/metrics"
	"github.com/jask/dexnav/internal/navigator"
	"github.com/jask/dexnav/internal/observe"
	"github.com/jask/dexnav/internal/secrets"
	"github.com/jask/dexnav/internal/tui"
)

func main() {
	// .env is optional; real env vars win.
	_ = godotenv.Load()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "token":
			exitOn(runToken(os.Args[2:], os.Stdout))
			return
		case "config":
			exitOn(runConfig(os.Args[2:], os.Stdout))
			return
		case "journal":
			exitOn(runJournal(os.Args[2:], os.Stdout))
			return
		}
	}

	fs := pflag.NewFlagSet("dexnav", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.LoadWithFlags(fs)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("dexnav: %v", err)
	}
}

func run(cfg config.Config) error {
	logger := logging.Open(cfg.Log.Path, cfg.Log.Level)
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	token, source := secrets.ResolveToken(cfg.API.TokenEnv, cfg.API.BaseURL, cfg.API.Token)
	fetcher := fetch.NewHTTPFetcher(cfg.API.BaseURL,
		fetch.WithTimeout(cfg.API.Timeout),
		fetch.WithToken(token),
		fetch.WithLogger(logger.Logger),
	)
	logger.Info("starting",
		"base_url", fetcher.BaseURL(),
		"timeout", fetcher.Timeout(),
		"range", cfg.SequenceRange().String(),
		"gate", cfg.Gate(),
		"token", source,
	)

	collector := metrics.New()
	opts := []navigator.Option{
		navigator.WithContext(ctx),
		navigator.WithLogger(logger.Logger),
		navigator.WithGate(cfg.Gate()),
		navigator.WithMetrics(collector),
	}

	var jr *journal.Journal
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			// The journal is diagnostic; browsing works without it.
			logger.Warn("journal disabled", "path", cfg.Journal.Path, "error", err)
		} else {
			defer j.Close()
			jr = j
			opts = append(opts, navigator.WithRecorder(jr))
		}
	}

	ctrl, err := navigator.New(fetcher, cfg.SequenceRange(), opts...)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	if cfg.Server.Addr != "" {
		srvOpts := []observe.Option{
			observe.WithLogger(logger.Logger),
			observe.WithMetrics(collector.Handler()),
			observe.WithInvalidID(cfg.Range.InvalidID),
		}
		if jr != nil {
			srvOpts = append(srvOpts, observe.WithHistory(jr))
		}
		srv := observe.New(ctrl, srvOpts...)
		if _, err := srv.Start(cfg.Server.Addr); err != nil {
			return fmt.Errorf("observer server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("observer shutdown", "error", err)
			}
		}()
	}

	appOpts := tui.Options{InvalidID: cfg.Range.InvalidID, BaseURL: fetcher.BaseURL()}
	if jr != nil {
		appOpts.Names = jr
	}
	app := tui.New(ctx, ctrl, appOpts)
	defer app.Close()

	if _, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	logger.Info("exiting", "last_id", ctrl.Snapshot().CurrentID, "in_flight", ctrl.InFlight())
	return nil
}

func runToken(args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("usage: dexnav token set <token> | clear | status")
	}
	switch args[0] {
	case "set":
		if len(args) != 2 {
			return errors.New("usage: dexnav token set <token>")
		}
		if err := secrets.StoreToken(cfg.API.BaseURL, args[1]); err != nil {
			return err
		}
		fmt.Fprintln(out, "token stored for", cfg.API.BaseURL)
	case "clear":
		if err := secrets.DeleteToken(cfg.API.BaseURL); err != nil {
			return err
		}
		fmt.Fprintln(out, "token cleared for", cfg.API.BaseURL)
	case "status":
		_, source := secrets.ResolveToken(cfg.API.TokenEnv, cfg.API.BaseURL, cfg.API.Token)
		fmt.Fprintln(out, "token source:", source)
	default:
		return fmt.Errorf("unknown token command %q", args[0])
	}
	return nil
}

func runConfig(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: dexnav config init | path")
	}
	switch args[0] {
	case "init":
		if _, err := os.Stat(config.Path()); err == nil {
			return fmt.Errorf("%s already exists", config.Path())
		}
		if err := config.Save(config.Default()); err != nil {
			return err
		}
		fmt.Fprintln(out, "wrote", config.Path())
	case "path":
		fmt.Fprintln(out, config.Path())
	default:
		return fmt.Errorf("unknown config command %q", args[0])
	}
	return nil
}

func runJournal(args []string, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("usage: dexnav journal recent | stats | reset")
	}
	jr, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer jr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "recent":
		entries, err := jr.Recent(ctx, 20)
		if err != nil {
			return err
		}
		for _, e := range entries {
			detail := e.Name
			if e.Error != "" {
				detail = e.Error
			}
			fmt.Fprintf(out, "%s  #%-5d %-8s %-7s %6s  %s\n",
				e.ResolvedAt.Local().Format(time.DateTime), e.EntityID, e.Command, e.Outcome,
				e.Duration.Round(time.Millisecond), detail)
		}
	case "stats":
		stats, err := jr.Stats(ctx)
		if err != nil {
			return err
		}
		for _, o := range []navigator.Outcome{navigator.OutcomeLoaded, navigator.OutcomeFailed, navigator.OutcomeStale} {
			fmt.Fprintf(out, "%-7s %d\n", o, stats[o])
		}
	case "reset":
		if err := jr.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "journal cleared")
	default:
		return fmt.Errorf("unknown journal command %q", args[0])
	}
	return nil
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
