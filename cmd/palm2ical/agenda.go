package main

import (
	"fmt"
	"io"

	"github.com/urfave/cli"

	"palm2ical/internal/convert"
	"palm2ical/internal/model"
	"palm2ical/internal/recur"
)

var (
	agendaDays     int
	agendaBackfill int

	agendaFlags = []cli.Flag{
		cli.IntFlag{
			Name:        "days, d",
			Usage:       "number of future days to list (default: horizon_days)",
			Destination: &agendaDays,
		},
		cli.IntFlag{
			Name:        "backfill, b",
			Usage:       "number of past days to include (default: backfill_days)",
			Destination: &agendaBackfill,
			Value:       -1,
		},
	}
)

func agendaAction(c *cli.Context) error {
	cfg, logger, err := settings()
	if err != nil {
		return err
	}
	opts, err := convertOptions(cfg, logger)
	if err != nil {
		return err
	}

	days := agendaDays
	if days <= 0 {
		days = cfg.HorizonDays
	}
	backfill := agendaBackfill
	if backfill < 0 {
		backfill = cfg.BackfillDays
	}

	cal, err := convert.Load(sourceArg(c, cfg), opts)
	if err != nil {
		return err
	}

	today := now().In(opts.Location)
	result, err := recur.Expand(cal.Events, recur.ExpandConfig{
		DisplayLocation:        opts.Location,
		RangeStart:             today.AddDate(0, 0, -backfill),
		RangeEnd:               today.AddDate(0, 0, days),
		MaxOccurrencesPerEvent: cfg.MaxOccurrences,
		Logger:                 logger,
	})
	if err != nil {
		return err
	}
	return printAgenda(stdout, result)
}

// printAgenda writes one line per occurrence:
//
//	2024-03-04 09:30-09:45  Standup [Work]
//	2024-12-25 all day      Christmas
func printAgenda(w io.Writer, result recur.ExpandResult) error {
	for _, occ := range result.Occurrences {
		if _, err := fmt.Fprintln(w, agendaLine(occ)); err != nil {
			return err
		}
	}
	if n := len(result.TruncatedEvents); n > 0 {
		if _, err := fmt.Fprintf(w, "(%d events truncated)\n", n); err != nil {
			return err
		}
	}
	return nil
}

func agendaLine(occ model.Occurrence) string {
	when := occ.Start.Format("2006-01-02") + " all day    "
	if !occ.Untimed {
		when = occ.Start.Format("2006-01-02 15:04") + "-" + occ.End.Format("15:04")
	}
	line := when + "  " + occ.Summary
	if occ.CategoryName != "" {
		line += " [" + occ.CategoryName + "]"
	}
	return line
}
