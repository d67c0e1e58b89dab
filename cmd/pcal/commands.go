package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"pcal/internal/calendar"
	"pcal/internal/command"
	"pcal/internal/ics"
	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/store"
	"pcal/internal/web"
)

func (a *app) flagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "usage: pcal %s %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	fs := a.flagSet("add", "[-file path.ics] | -start when [flags] [title]")
	var ef eventFlags
	ef.register(fs)
	file := fs.String("file", "", "Add the events of an .ics file instead")
	force := fs.Bool("force", false, "Overwrite an identical event")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file != "" {
		return a.importFiles(ctx, []string{*file}, *force)
	}

	loc := a.runner.Location
	if ef.title == "" {
		ef.title = strings.Join(fs.Args(), " ")
	}
	if ef.start == "" {
		return errors.New("add: -start is required")
	}
	start, err := parseDateTime(ef.start, loc)
	if err != nil {
		return err
	}
	p := model.EventParams{Title: ef.title, Location: ef.location, Description: ef.description, Start: start}
	set := visited(fs)
	switch {
	case ef.end != "":
		if p.End, err = parseDateTime(ef.end, loc); err != nil {
			return err
		}
	case set["duration"]:
		p.Duration = ef.duration
	default:
		p.Duration, _ = a.cfg.Duration()
	}
	if p.Recurrence, err = ef.recurrence(loc); err != nil {
		return err
	}

	cal, err := a.checkout()
	if err != nil {
		return err
	}
	res, err := a.runner.Add(cal, p, *force)
	if err != nil {
		return err
	}
	if err := a.store.Save(cal); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "added %s %s\n", model.ShortID(res.Event.ID), res.Event.Title)
	printOverlaps(a.stdout, res.Overlaps)
	return nil
}

func (a *app) cmdImport(ctx context.Context, args []string) error {
	fs := a.flagSet("import", "[-force] file.ics|url...")
	force := fs.Bool("force", false, "Overwrite identical events")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("import: no files given")
	}
	return a.importFiles(ctx, fs.Args(), *force)
}

// importFiles imports every file or feed URL into the working calendar. The
// calendar is saved when at least one event was added, even if some blocks
// failed.
func (a *app) importFiles(ctx context.Context, paths []string, force bool) error {
	cal, err := a.checkout()
	if err != nil {
		return err
	}

	var (
		added  int
		failed []error
	)
	for _, path := range paths {
		res, err := a.importFile(ctx, cal, path, force)
		if res != nil {
			added += len(res.Added)
			printImport(a.stdout, path, res)
		}
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", path, err))
		}
	}
	if added > 0 {
		if err := a.store.Save(cal); err != nil {
			return err
		}
	}
	return errors.Join(failed...)
}

func (a *app) importFile(ctx context.Context, cal *calendar.Calendar, path string, force bool) (*command.ImportResult, error) {
	var r io.Reader = a.stdin
	switch {
	case ics.IsRemote(path):
		feed, err := a.fetcher.Fetch(ctx, path)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(feed.Body)
	case path != "-":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return a.runner.Import(cal, r, force)
}

func (a *app) cmdRemove(_ context.Context, args []string) error {
	fs := a.flagSet("remove", "-all | id...")
	all := fs.Bool("all", false, "Remove every event")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*all && fs.NArg() == 0 {
		return errors.New("remove: give an event id or -all")
	}

	cal, err := a.checkout()
	if err != nil {
		return err
	}
	if *all {
		n := a.runner.RemoveAll(cal)
		if err := a.store.Save(cal); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "removed %d events\n", n)
		return nil
	}

	var errs []error
	removed := 0
	for _, ref := range fs.Args() {
		ev, err := a.runner.Remove(cal, ref)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		fmt.Fprintf(a.stdout, "removed %s %s\n", model.ShortID(ev.ID), ev.Title)
	}
	if removed > 0 {
		if err := a.store.Save(cal); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func (a *app) cmdList(_ context.Context, args []string) error {
	fs := a.flagSet("list", "[-today|-week|-month] [-from day] [-until day] [-agenda]")
	var ff filterFlags
	ff.register(fs)
	agenda := fs.Bool("agenda", false, "Print one line per occurrence in time order")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := ff.filter(a.runner.Location)
	if err != nil {
		return err
	}
	cal, err := a.checkout()
	if err != nil {
		return err
	}
	res, err := a.runner.List(cal, f)
	if err != nil {
		return err
	}
	if *agenda {
		printAgenda(a.stdout, res, a.runner.Location)
	} else {
		printList(a.stdout, res, a.runner.Location)
	}
	return nil
}

func (a *app) cmdShow(_ context.Context, args []string) error {
	fs := a.flagSet("show", "[-ics] id")
	asICS := fs.Bool("ics", false, "Print the event as a VEVENT block")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("show: give exactly one event id")
	}
	cal, err := a.checkout()
	if err != nil {
		return err
	}
	res, err := a.runner.Show(cal, fs.Arg(0))
	if err != nil {
		return err
	}
	if *asICS {
		_, err := io.WriteString(a.stdout, ics.MarshalEvent(res.Event, ics.EncodeOptions{}))
		return err
	}
	printShow(a.stdout, res)
	return nil
}

func (a *app) cmdEdit(_ context.Context, args []string) error {
	fs := a.flagSet("edit", "id [flags]")
	var ef eventFlags
	ef.register(fs)
	noRepeat := fs.Bool("no-repeat", false, "Drop the recurrence")
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fs.Usage()
		return errors.New("edit: the event id comes first")
	}
	ref := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cal, err := a.checkout()
	if err != nil {
		return err
	}
	loc := a.runner.Location
	set := visited(fs)
	var ch command.Changes
	if set["title"] {
		ch.Title = &ef.title
	}
	if set["location"] {
		ch.Location = &ef.location
	}
	if set["description"] {
		ch.Description = &ef.description
	}
	if set["start"] {
		t, err := parseDateTime(ef.start, loc)
		if err != nil {
			return err
		}
		ch.Start = &t
	}
	if set["end"] {
		t, err := parseDateTime(ef.end, loc)
		if err != nil {
			return err
		}
		ch.End = &t
	}
	if set["duration"] {
		ch.Duration = &ef.duration
	}
	if *noRepeat {
		ch.ClearRecurrence = true
	} else if set["repeat"] || set["interval"] || set["count"] || set["until"] {
		rule, err := a.editedRule(cal, ref, ef, set)
		if err != nil {
			return err
		}
		ch.Recurrence = rule
	}

	res, err := a.runner.Edit(cal, ref, ch)
	if err != nil {
		return err
	}
	if err := a.store.Save(cal); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "edited %s -> %s %s\n", model.ShortID(res.Old.ID), model.ShortID(res.New.ID), res.New.Title)
	return nil
}

// editedRule merges the recurrence flags into the event's current rule, so
// "-count 3" alone keeps the frequency.
func (a *app) editedRule(cal *calendar.Calendar, ref string, ef eventFlags, set map[string]bool) (*model.Recurrence, error) {
	ev, err := cal.Lookup(ref)
	if err != nil {
		return nil, err
	}
	if !set["repeat"] {
		if ev.Recurrence == nil {
			return nil, errors.New("edit: event does not repeat; give -repeat")
		}
		ef.repeat = ev.Recurrence.Frequency.String()
		if !set["interval"] {
			ef.interval = ev.Recurrence.Interval
		}
		if !set["count"] {
			ef.count = ev.Recurrence.Count
		}
		if !set["until"] && !ev.Recurrence.Until.IsZero() {
			ef.until = ev.Recurrence.Until.Format(time.RFC3339)
		}
	}
	return ef.recurrence(a.runner.Location)
}

func (a *app) cmdExport(_ context.Context, args []string) error {
	fs := a.flagSet("export", "[-o file.ics]")
	out := fs.String("o", "-", "Output file, - for stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cal, err := a.checkout()
	if err != nil {
		return err
	}
	if *out == "-" {
		return a.runner.Export(cal, a.stdout)
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := a.runner.Export(cal, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	appLog.Info("calendar exported", "calendar", cal.Name(), "events", cal.Len(), "path", *out)
	return nil
}

func (a *app) cmdCalendars(_ context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	needName := func() (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("calendars %s: give one calendar name", sub)
		}
		return args[0], nil
	}

	switch sub {
	case "list", "ls":
		names, err := a.store.Names()
		if err != nil {
			return err
		}
		for _, n := range names {
			marker := " "
			if n == a.calendar {
				marker = "*"
			}
			fmt.Fprintf(a.stdout, "%s %s\n", marker, n)
		}
		return nil
	case "create":
		name, err := needName()
		if err != nil {
			return err
		}
		if err := a.store.Create(name); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "created %s\n", name)
		return nil
	case "delete", "rm":
		name, err := needName()
		if err != nil {
			return err
		}
		if err := a.store.Delete(name); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "deleted %s\n", name)
		return nil
	case "history", "log":
		name, err := needName()
		if err != nil {
			return err
		}
		h, ok := a.store.(store.Historian)
		if !ok {
			return fmt.Errorf("calendars history: the %s store keeps no history", a.cfg.Store)
		}
		revs, err := h.History(name)
		if err != nil {
			return err
		}
		if len(revs) == 0 && !a.cfg.History {
			return errors.New("calendars history: enable history in the config first")
		}
		printHistory(a.stdout, revs)
		return nil
	default:
		return fmt.Errorf("calendars: unknown subcommand %q (want list, create, delete or history)", sub)
	}
}

func (a *app) cmdServe(ctx context.Context, args []string) error {
	fs := a.flagSet("serve", "[-listen addr]")
	listen := fs.String("listen", "", "HTTP listen address (overrides config if set)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen != "" {
		a.cfg.Listen = *listen
	}
	a.cfg.Calendar = a.calendar
	return web.StartServer(ctx, a.cfg, a.store, a.runner)
}
