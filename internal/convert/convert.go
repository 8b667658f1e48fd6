// Package convert wires the Palm decoder, datebook extraction and the
// iCalendar exporter into a single conversion, with "-" standing for the
// process's standard streams.
package convert

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"palm2ical/internal/datebook"
	"palm2ical/internal/ics"
	appLog "palm2ical/internal/log"
	"palm2ical/internal/model"
	"palm2ical/internal/palm"
)

// Stdio is the name that selects stdin or stdout.
const Stdio = "-"

var ErrNotDatebook = errors.New("convert: source is not a datebook")

// Options carries what a conversion needs besides the file names.
type Options struct {
	// Fs is the filesystem named files are read from and written to. If
	// nil, the OS filesystem is used.
	Fs afero.Fs

	Stdin  io.Reader
	Stdout io.Writer

	// Encoding is a code page name understood by palm.Charset.
	Encoding string

	// Location is the zone Palm timestamps are read in. If nil, time.Local
	// is used.
	Location *time.Location

	// ProductID is written as PRODID.
	ProductID string

	// Now stamps DTSTAMP. If nil, time.Now is used.
	Now func() time.Time

	Logger *appLog.Logger
}

func (o Options) withDefaults() Options {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Logger == nil {
		o.Logger = appLog.Default()
	}
	return o
}

// Summary describes a finished conversion.
type Summary struct {
	From     string
	To       string
	Events   int
	Unmapped []uint32
}

func (s Summary) String() string {
	return fmt.Sprintf("wrote %d events from %s to %s", s.Events, displayName(s.From, "stdin"), displayName(s.To, "stdout"))
}

func displayName(name, std string) string {
	if name == Stdio || name == "" {
		return std
	}
	return name
}

// Open opens name for reading; "-" returns stdin, which is not closed.
func Open(fsys afero.Fs, name string, stdin io.Reader) (io.ReadCloser, error) {
	if name == Stdio || name == "" {
		return io.NopCloser(stdin), nil
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("convert: open source: %w", err)
	}
	return f, nil
}

// Create opens name for writing; "-" returns stdout, which is not
// closed. A named file is written to a temporary file in the same
// directory and renamed into place on Close.
func Create(fsys afero.Fs, name string, stdout io.Writer) (io.WriteCloser, error) {
	if name == Stdio || name == "" {
		return nopWriteCloser{stdout}, nil
	}
	dir := filepath.Dir(name)
	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(name)+"-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("convert: create destination: %w", err)
	}
	return &atomicFile{File: tmp, fs: fsys, path: name}, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// atomicFile renames itself over path when closed without error.
type atomicFile struct {
	afero.File
	fs     afero.Fs
	path   string
	failed bool
}

func (f *atomicFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)
	if err != nil {
		f.failed = true
	}
	return n, err
}

// Abort discards the temporary file.
func (f *atomicFile) Abort() {
	f.failed = true
	_ = f.File.Close()
	_ = f.fs.Remove(f.File.Name())
}

func (f *atomicFile) Close() error {
	tmpName := f.File.Name()
	if f.failed {
		_ = f.File.Close()
		_ = f.fs.Remove(tmpName)
		return errors.New("convert: destination not written")
	}
	if err := f.File.Sync(); err != nil {
		f.File.Close()
		f.fs.Remove(tmpName)
		return err
	}
	if err := f.File.Close(); err != nil {
		f.fs.Remove(tmpName)
		return err
	}
	if err := f.fs.Chmod(tmpName, 0o644); err != nil {
		f.fs.Remove(tmpName)
		return err
	}
	if err := f.fs.Rename(tmpName, f.path); err != nil {
		f.fs.Remove(tmpName)
		return err
	}
	return nil
}

// Decode reads a Palm database from r. r is read through a buffer, so
// bytes following the database may be consumed.
func Decode(r io.Reader, opts Options) (*palm.File, error) {
	opts = opts.withDefaults()
	f, err := palm.Decode(bufio.NewReader(r), palm.WithLogger(opts.Logger))
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("convert: decoded source", "kind", f.Kind)
	return f, nil
}

// Load opens, decodes and extracts the datebook named from.
func Load(from string, opts Options) (*model.Calendar, error) {
	opts = opts.withDefaults()
	enc, err := palm.Charset(opts.Encoding)
	if err != nil {
		return nil, err
	}

	src, err := Open(opts.Fs, from, opts.Stdin)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	f, err := Decode(src, opts)
	if err != nil {
		return nil, fmt.Errorf("convert: decode %s: %w", displayName(from, "stdin"), err)
	}
	return datebook.Extract(f, datebook.Config{
		Encoding: enc,
		Location: opts.Location,
		Logger:   opts.Logger,
	})
}

// Convert reads the datebook named from and writes it as iCalendar to
// the destination named to.
func Convert(from, to string, opts Options) (Summary, error) {
	opts = opts.withDefaults()
	sum := Summary{From: from, To: to}

	cal, err := Load(from, opts)
	if err != nil {
		return sum, err
	}
	if cal.Kind != palm.KindDatebook {
		return sum, fmt.Errorf("%w: %s", ErrNotDatebook, cal.Kind)
	}

	dst, err := Create(opts.Fs, to, opts.Stdout)
	if err != nil {
		return sum, err
	}
	stats, err := ics.Export(dst, cal, ics.ExportConfig{
		ProductID: opts.ProductID,
		Now:       opts.Now,
		Logger:    opts.Logger,
	})
	if err != nil {
		if af, ok := dst.(*atomicFile); ok {
			af.Abort()
		}
		return sum, err
	}
	if err := dst.Close(); err != nil {
		return sum, fmt.Errorf("convert: close destination: %w", err)
	}

	sum.Events = stats.Events
	sum.Unmapped = stats.Unmapped
	opts.Logger.Info("convert: done",
		"events", sum.Events,
		"unmapped", len(sum.Unmapped),
		"from", displayName(from, "stdin"),
		"to", displayName(to, "stdout"),
	)
	return sum, nil
}
