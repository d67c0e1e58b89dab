package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-git/go-billy/v5/osfs"

	"pcal/internal/calendar"
	"pcal/internal/command"
	"pcal/internal/config"
	"pcal/internal/filter"
	"pcal/internal/ics"
	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/recur"
	"pcal/internal/store"
)

const usage = `usage: pcal [-config path] [-calendar name] [-debug] <command> [flags] [args]

commands:
  add        add an event (or -file to import one)
  import     import events from .ics files or feed URLs ("-" reads stdin)
  remove     remove events by id or prefix, or -all
  list       list occurrences (-today, -week, -month, -from, -until)
  show       show one event and its next occurrences
  edit       change fields of an event
  export     write the calendar as iCalendar text
  calendars  list, create, delete or show history of calendars
  serve      serve the read-only HTTP feed
  agenda     print the agenda once, or on a cron schedule with -every
`

// globalFlags holds the flags accepted before the command name.
type globalFlags struct {
	configPath string
	calendar   string
	debug      bool
}

// app is the state shared by every command.
type app struct {
	cfg      *config.Config
	store    store.Store
	runner   *command.Runner
	fetcher  *ics.Fetcher
	calendar string
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pcal", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	var g globalFlags
	fs.StringVar(&g.configPath, "config", config.DefaultPath(), "Path to config file (.yaml or .toml)")
	fs.StringVar(&g.calendar, "calendar", "", "Calendar to work on (overrides config)")
	fs.BoolVar(&g.debug, "debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	a, err := newApp(g, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "pcal: %v\n", err)
		return 1
	}
	defer a.store.Close()

	name, rest := fs.Arg(0), fs.Args()[1:]
	cmds := map[string]func(context.Context, []string) error{
		"add":       a.cmdAdd,
		"import":    a.cmdImport,
		"remove":    a.cmdRemove,
		"rm":        a.cmdRemove,
		"list":      a.cmdList,
		"ls":        a.cmdList,
		"show":      a.cmdShow,
		"edit":      a.cmdEdit,
		"export":    a.cmdExport,
		"calendars": a.cmdCalendars,
		"serve":     a.cmdServe,
		"agenda":    a.cmdAgenda,
	}
	cmd, ok := cmds[name]
	if !ok {
		fmt.Fprintf(stderr, "pcal: unknown command %q\n\n%s", name, usage)
		return 2
	}
	if err := cmd(ctx, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "pcal: %s\n", describe(err))
		return 1
	}
	return 0
}

func newApp(g globalFlags, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	appLog.SetOutput(stderr)
	if g.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", g.configPath, err)
	}
	if !g.debug {
		appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", g.configPath, err)
	}
	name := cfg.Calendar
	if g.calendar != "" {
		name = g.calendar
	}
	if err := store.ValidName(name); err != nil {
		return nil, err
	}

	loc, _ := cfg.Location()
	appLog.Debug("effective config",
		"config_path", g.configPath,
		"data_dir", cfg.DataDir,
		"store", cfg.Store,
		"history", cfg.History,
		"calendar", name,
		"timezone", loc.String(),
		"week_start", cfg.WeekStart,
		"horizon_days", cfg.HorizonDays,
	)

	st, err := store.Open(store.Options{Backend: cfg.Store, Dir: cfg.DataDir, History: cfg.History})
	if err != nil {
		return nil, fmt.Errorf("open %s store in %s: %w", cfg.Store, cfg.DataDir, err)
	}
	return &app{
		cfg:   cfg,
		store: st,
		runner: &command.Runner{
			WeekStart:      filter.ParseWeekStart(cfg.WeekStart),
			Location:       loc,
			Horizon:        cfg.Horizon(),
			MaxOccurrences: cfg.MaxOccurrences,
		},
		fetcher:  ics.NewFetcher(osfs.New(filepath.Join(cfg.DataDir, "ics-cache")), nil),
		calendar: name,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
	}, nil
}

// checkout loads the working calendar. The configured default calendar is
// created on first use; any other name must exist.
func (a *app) checkout() (*calendar.Calendar, error) {
	cal, err := a.store.Load(a.calendar)
	if errors.Is(err, store.ErrNotFound) && a.calendar == a.cfg.Calendar {
		appLog.Debug("starting empty calendar", "calendar", a.calendar)
		return calendar.New(a.calendar), nil
	}
	return cal, err
}

// describe renders the typed errors of the core for a terminal.
func describe(err error) string {
	var (
		verr  *model.ValidationError
		dup   *calendar.DuplicateError
		nf    *calendar.NotFoundError
		amb   *calendar.AmbiguousError
		bound *recur.RecurrenceBoundError
	)
	switch {
	case errors.As(err, &dup):
		return err.Error() + " (use -force to overwrite)"
	case errors.As(err, &amb):
		return err.Error() + " (give more characters of the id)"
	case errors.As(err, &verr), errors.As(err, &nf), errors.As(err, &bound):
		return err.Error()
	case errors.Is(err, store.ErrNotFound):
		return err.Error() + " (create it with: pcal calendars create <name>)"
	default:
		return err.Error()
	}
}
