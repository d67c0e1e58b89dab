package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "pcal/internal/log"
)

// cmdAgenda prints the agenda (today by default). With -every it keeps
// running and prints on that cron schedule until the context is cancelled.
func (a *app) cmdAgenda(ctx context.Context, args []string) error {
	fs := a.flagSet("agenda", "[-every \"cron spec\"] [-today|-week|-month] [-from day] [-until day]")
	var ff filterFlags
	ff.register(fs)
	every := fs.String("every", "", "Cron schedule, e.g. \"0 8 * * *\"; \"default\" uses agenda_cron from the config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !ff.today && !ff.week && !ff.month && ff.from == "" && ff.until == "" {
		ff.today = true
	}
	f, err := ff.filter(a.runner.Location)
	if err != nil {
		return err
	}

	printOnce := func() error {
		cal, err := a.checkout()
		if err != nil {
			return err
		}
		res, err := a.runner.List(cal, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "== %s: %s ==\n", cal.Name(), f)
		printAgenda(a.stdout, res, a.runner.Location)
		return nil
	}

	if *every == "" {
		return printOnce()
	}
	spec := *every
	if spec == "default" {
		spec = a.cfg.AgendaCron
	}

	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("agenda: schedule %q: %w", spec, err)
	}
	c := cron.New(cron.WithLocation(a.runner.Location))
	c.Schedule(sched, cron.FuncJob(func() {
		if err := printOnce(); err != nil {
			appLog.Error("agenda run failed", err, "calendar", a.calendar)
		}
	}))
	c.Start()
	appLog.Info("agenda scheduled", "spec", spec, "next", sched.Next(time.Now().In(a.runner.Location)).Format(time.RFC3339))

	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("agenda stopped")
	return nil
}
