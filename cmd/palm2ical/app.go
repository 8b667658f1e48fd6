package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"palm2ical/internal/config"
	"palm2ical/internal/convert"
	appLog "palm2ical/internal/log"
	"palm2ical/internal/palm"
)

// Replaced in tests.
var (
	appFs  afero.Fs  = afero.NewOsFs()
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	now              = time.Now
)

var (
	configPath  string
	encodingOpt string
	timezoneOpt string
	logLevelOpt string
	verbose     bool

	globalFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "config",
			Usage:       "YAML configuration file (created with defaults if missing)",
			Destination: &configPath,
		},
		cli.StringFlag{
			Name:        "encoding, e",
			Usage:       "code page of strings in the database (default: windows-1252)",
			Destination: &encodingOpt,
		},
		cli.StringFlag{
			Name:        "timezone",
			Usage:       "IANA zone Palm timestamps are read in (default: system zone)",
			Destination: &timezoneOpt,
		},
		cli.StringFlag{
			Name:        "log-level",
			Usage:       "debug, info or error",
			Destination: &logLevelOpt,
		},
		cli.BoolFlag{
			Name:        "verbose, v",
			Usage:       "print a summary line after converting",
			Destination: &verbose,
		},
	}
)

// Execute builds the command-line app and runs it with args.
func Execute(args []string) error {
	cli.VersionFlag = cli.BoolFlag{Name: "version", Usage: "print the version"}

	app := cli.App{
		Name:      "palm2ical",
		HelpName:  "palm2ical",
		Usage:     "convert a Palm Desktop datebook to iCalendar",
		UsageText: "palm2ical [global options] [command] [arguments...]",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     globalFlags,
		// Bare "palm2ical [from [to]]" converts.
		Action: convertAction,
		Commands: []cli.Command{
			{
				Name:      "convert",
				Aliases:   []string{"c"},
				Usage:     "decode a datebook and write iCalendar",
				ArgsUsage: "[from [to]]",
				Action:    convertAction,
			},
			{
				Name:      "agenda",
				Aliases:   []string{"a"},
				Usage:     "print upcoming occurrences",
				ArgsUsage: "[from]",
				Action:    agendaAction,
				Flags:     agendaFlags,
			},
			{
				Name:      "dump",
				Usage:     "print the decoded record tree as YAML",
				ArgsUsage: "[from]",
				Action:    dumpAction,
			},
			{
				Name:   "serve",
				Usage:  "publish /calendar.ics and /api/events, reloading on a schedule",
				Action: serveAction,
				Flags:  serveFlags,
			},
		},
	}
	return app.Run(args)
}

// settings resolves the configuration file and global flag overrides.
func settings() (*config.Config, *appLog.Logger, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(appFs, configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	if encodingOpt != "" {
		cfg.Encoding = encodingOpt
	}
	if timezoneOpt != "" {
		cfg.Timezone = timezoneOpt
	}
	if logLevelOpt != "" {
		cfg.LogLevel = logLevelOpt
	}

	level, err := appLog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	appLog.SetLevel(level)
	return cfg, appLog.New(stderr, level), nil
}

func convertOptions(cfg *config.Config, logger *appLog.Logger) (convert.Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return convert.Options{}, err
	}
	return convert.Options{
		Fs:        appFs,
		Stdin:     stdin,
		Stdout:    stdout,
		Encoding:  cfg.Encoding,
		Location:  loc,
		ProductID: cfg.ProductID,
		Now:       now,
		Logger:    logger,
	}, nil
}

// sourceArg returns the first positional argument, falling back to the
// configured source.
func sourceArg(c *cli.Context, cfg *config.Config) string {
	if c.NArg() > 0 {
		return c.Args().Get(0)
	}
	return cfg.Source
}

func convertAction(c *cli.Context) error {
	if c.NArg() > 2 {
		return errors.New("usage: palm2ical convert [from [to]]")
	}
	cfg, logger, err := settings()
	if err != nil {
		return err
	}
	opts, err := convertOptions(cfg, logger)
	if err != nil {
		return err
	}

	from := sourceArg(c, cfg)
	to := convert.Stdio
	if c.NArg() > 1 {
		to = c.Args().Get(1)
	}

	sum, err := convert.Convert(from, to, opts)
	if err != nil {
		return err
	}
	if verbose {
		// Keep stdout clean when it carries the calendar.
		w := stdout
		if to == convert.Stdio {
			w = stderr
		}
		fmt.Fprintln(w, sum.String())
	}
	return nil
}

func dumpAction(c *cli.Context) error {
	cfg, logger, err := settings()
	if err != nil {
		return err
	}
	enc, err := palm.Charset(cfg.Encoding)
	if err != nil {
		return err
	}
	opts, err := convertOptions(cfg, logger)
	if err != nil {
		return err
	}

	src, err := convert.Open(appFs, sourceArg(c, cfg), stdin)
	if err != nil {
		return err
	}
	defer src.Close()

	f, err := convert.Decode(src, opts)
	if err != nil {
		return err
	}
	return palm.Dump(stdout, f, enc)
}
