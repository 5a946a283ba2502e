package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"hypertoken/internal/app"
	"hypertoken/internal/models"
	"hypertoken/internal/service"
)

func Usage(w io.Writer) {
	fmt.Fprint(w, `tokensync <command> [flags]

Configuration comes from HT_CONFIG (default config/config.yaml) and HT_* env.

Commands:
  sync                          run one sync cycle (exit 1 on failure)
  export [-out data/tokens.json] write every token record as JSON ("-" for stdout)
  seed-startpx -file <path>     insert reference start prices that are not stored yet
  curate -index <n> -set field=value [-set ...]
                                edit curated fields of one token (teamAllocation, highlighted, ...)
`)
}

func Dispatch(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		Usage(os.Stderr)
		return errors.New("missing command")
	}
	switch args[0] {
	case "sync":
		return syncCmd(ctx, a, stdout)
	case "export":
		return exportCmd(ctx, a, args[1:], stdout)
	case "seed-startpx":
		return seedStartPxCmd(ctx, a, args[1:], stdout)
	case "curate":
		return curateCmd(ctx, a, args[1:], stdout)
	default:
		Usage(os.Stderr)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func syncCmd(ctx context.Context, a *app.App, stdout io.Writer) error {
	// The lock only spans processes when the cache is shared (redis).
	warnLocalCache(a, "sync")
	scheduler := service.NewScheduler(a.Sync, a.Cache, a.Logger.Named("scheduler"), service.SchedulerConfig{
		LockTTL: a.Config.TokenSync.LockTTL,
	})
	result, err := scheduler.Trigger(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return writeJSON(stdout, result)
}

func exportCmd(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("tokensync export", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	out := fs.String("out", "data/tokens.json", "output file, - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tokens, err := a.Store.ListTokens(ctx)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}
	if tokens == nil {
		tokens = []models.TokenRecord{}
	}

	path := strings.TrimSpace(*out)
	if path == "-" {
		return writeJSON(stdout, tokens)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeJSON(f, tokens); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "exported %d tokens to %s\n", len(tokens), path)
	return err
}

func seedStartPxCmd(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("tokensync seed-startpx", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	file := fs.String("file", "", `JSON array of {"index": 1, "startPx": "0.5"}`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*file) == "" {
		return errors.New("-file required")
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	var entries []models.StartPx
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decode %s: %w", *file, err)
	}
	written, err := service.SeedStartPx(ctx, a.Store, entries)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "seeded %d of %d start prices\n", written, len(entries))
	return err
}

func curateCmd(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("tokensync curate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	index := fs.Int("index", -1, "token index")
	var sets assignments
	fs.Var(&sets, "set", "field=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *index < 0 {
		return errors.New("-index required")
	}
	if len(sets) == 0 {
		return errors.New("at least one -set required")
	}

	patch, err := service.ParseCuratedAssignments(sets)
	if err != nil {
		return err
	}
	warnLocalCache(a, "curate")
	rec, err := service.CurateToken(ctx, a.Store, a.Cache, *index, patch)
	if err != nil {
		return err
	}
	return writeJSON(stdout, rec)
}

// assignments collects repeated -set flags.
type assignments []string

func (s *assignments) String() string {
	return strings.Join(*s, ",")
}

func (s *assignments) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// warnLocalCache flags runs whose lock and list cache a running server
// cannot see.
func warnLocalCache(a *app.App, command string) {
	backend := strings.ToLower(strings.TrimSpace(a.Config.Cache.Backend))
	if backend != "" && backend != "memory" {
		return
	}
	a.Logger.Warn("cache backend is process-local; a running server does not see this run's lock or cache invalidation",
		zap.String("command", command),
		zap.String("cache_backend", "memory"),
	)
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
