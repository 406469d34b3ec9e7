package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"codeberg.org/snonux/wordaudio/internal/anki"
	"codeberg.org/snonux/wordaudio/internal/artifact"
	"codeberg.org/snonux/wordaudio/internal/audio"
	"codeberg.org/snonux/wordaudio/internal/batch"
	"codeberg.org/snonux/wordaudio/internal/cache"
	"codeberg.org/snonux/wordaudio/internal/cli"
	"codeberg.org/snonux/wordaudio/internal/logger"
	"codeberg.org/snonux/wordaudio/internal/ratelimit"
	"codeberg.org/snonux/wordaudio/internal/synth"
)

// Options configures a Processor
type Options struct {
	CSVFile   string
	Delimiter rune
	OutputDir string
	KeepGoing bool
	Anki      bool // Also write an Anki import file into OutputDir

	// Backend is the undecorated speech backend. New wraps it with the
	// limiter, the breaker and the cache.
	Backend     audio.Provider
	Limiter     *ratelimit.Limiter    // Defaults to ratelimit.DefaultRate
	Breaker     *audio.BreakerSettings // Optional
	Store       audio.FragmentStore    // Optional fragment cache
	Fingerprint string                 // Backend settings, part of cache keys
	Extension   string                 // Defaults to the backend's extension
}

// RowFailure records a row skipped because of KeepGoing
type RowFailure struct {
	Line int
	Word string
	Err  error
}

// Summary describes a finished run
type Summary struct {
	Rows      int
	Languages int
	Written   int
	Paths     []string // Written files in row order
	Failures  []RowFailure
	Replaced  int   // Rows dropped because a later row has the same file name
	Requests  int64 // Permits granted by the limiter
	Duration  time.Duration
	AnkiFile  string // Anki import file, when requested
}

// Processor runs one word list job
type Processor struct {
	opts     Options
	provider audio.Provider
	limiter  *ratelimit.Limiter
	writer   *artifact.Writer
	state    atomic.Int32
}

// New creates a Processor from explicit options
func New(opts Options) (*Processor, error) {
	if opts.Backend == nil {
		return nil, errors.New("no speech backend configured")
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New(ratelimit.DefaultRate)
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.Extension == "" {
		opts.Extension = opts.Backend.Extension()
	}

	provider := audio.Wrap(opts.Backend, audio.ChainOptions{
		Limiter:     opts.Limiter,
		Breaker:     opts.Breaker,
		Store:       opts.Store,
		Fingerprint: opts.Fingerprint,
	})

	return &Processor{
		opts:     opts,
		provider: provider,
		limiter:  opts.Limiter,
		writer:   artifact.NewWriter(opts.OutputDir, opts.Extension),
	}, nil
}

// NewProcessor creates a Processor from command-line flags, creating the
// backend client and opening the fragment cache
func NewProcessor(ctx context.Context, flags *cli.Flags) (*Processor, error) {
	if err := cli.Validate(flags); err != nil {
		return nil, err
	}

	rate, ok := cli.ResolveRate(flags.Rate)
	if !ok {
		logger.Warn("Invalid rate, using default", "rate", flags.Rate, "default", rate)
	}

	delimiter, err := cli.ParseDelimiter(flags.Delimiter)
	if err != nil {
		return nil, err
	}

	providerConfig := flags.ProviderConfig()
	backend, err := audio.NewProvider(ctx, providerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", flags.Backend, err)
	}

	var store audio.FragmentStore
	if flags.CacheFile != "" {
		s, err := cache.Open(flags.CacheFile)
		if err != nil {
			audio.Close(backend)
			return nil, err
		}
		entries, err := s.Len(ctx)
		if err != nil {
			s.Close()
			audio.Close(backend)
			return nil, err
		}
		logger.Debug("Using fragment cache", "path", s.Path(), "entries", entries)
		store = s
	}

	breaker := flags.BreakerSettings()
	return New(Options{
		CSVFile:     flags.CSVFile,
		Delimiter:   delimiter,
		OutputDir:   flags.OutputDir,
		KeepGoing:   flags.KeepGoing,
		Anki:        flags.Anki,
		Backend:     backend,
		Limiter:     ratelimit.New(rate),
		Breaker:     &breaker,
		Store:       store,
		Fingerprint: providerConfig.Fingerprint(),
	})
}

// State returns the current phase
func (p *Processor) State() State {
	return State(p.state.Load())
}

func (p *Processor) setState(s State) {
	p.state.Store(int32(s))
	logger.Debug("Pipeline state changed", "state", s.String())
}

// fail moves to Failed and wraps err with the stage it happened in
func (p *Processor) fail(stage State, err error) error {
	p.setState(Failed)
	return &StageError{Stage: stage, Err: err}
}

// Close releases the backend client and the fragment cache
func (p *Processor) Close() error {
	var errs []error
	if c, ok := p.opts.Store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, audio.Close(p.provider))
	return errors.Join(errs...)
}

// Run executes the job. It reads all rows, synthesizes them concurrently
// and writes the files only after every row has been synthesized. A
// Processor runs once.
func (p *Processor) Run(ctx context.Context) (*Summary, error) {
	if !p.state.CompareAndSwap(int32(Idle), int32(Parsing)) {
		return nil, ErrAlreadyRun
	}
	start := time.Now()
	summary := &Summary{}

	table, rows, err := p.parse(summary)
	if err != nil {
		return summary, p.fail(Parsing, err)
	}
	summary.Rows = len(table.Rows)
	summary.Languages = len(table.Columns)
	if err := p.checkDeadline(ctx, len(rows)*len(table.Columns)); err != nil {
		return summary, p.fail(Parsing, err)
	}

	logger.Info("Starting job",
		"rows", len(table.Rows),
		"languages", len(table.Columns),
		"source", table.SourceLanguage(),
		"rate", p.limiter.Rate(),
		"backend", p.provider.Name())

	p.setState(Synthesizing)
	bundles, err := p.synthesize(ctx, rows, table.Columns, summary)
	summary.Requests = p.limiter.Granted()
	if err != nil {
		summary.Duration = time.Since(start)
		return summary, p.fail(Synthesizing, err)
	}

	p.setState(Writing)
	paths, err := p.write(bundles, summary)
	if err != nil {
		summary.Duration = time.Since(start)
		return summary, p.fail(Writing, err)
	}
	if p.opts.Anki {
		path, err := p.exportAnki(table.Columns, bundles, paths)
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, p.fail(Writing, err)
		}
		summary.AnkiFile = path
	}

	summary.Duration = time.Since(start)
	p.setState(Done)

	logger.Info("Job finished",
		"output", p.writer.Dir(),
		"written", summary.Written,
		"failed", len(summary.Failures),
		"requests", summary.Requests,
		"duration", summary.Duration.Round(time.Millisecond))

	if len(summary.Failures) > 0 {
		return summary, &StageError{
			Stage: Synthesizing,
			Err:   fmt.Errorf("%w: %d of %d rows", ErrPartialFailure, len(summary.Failures), summary.Rows),
		}
	}
	return summary, nil
}

// parse reads the table and checks that every row yields a file name.
// Rows whose name is unusable fail the job, or are recorded and skipped
// with KeepGoing. When several rows map to one file name only the last of
// them is kept.
func (p *Processor) parse(summary *Summary) (*batch.Table, []batch.Row, error) {
	opts := batch.DefaultOptions()
	opts.Delimiter = p.opts.Delimiter
	table, err := batch.ReadFile(p.opts.CSVFile, opts)
	if err != nil {
		return nil, nil, err
	}

	names := make(map[string]int, len(table.Rows)) // file name -> index in rows
	replaced := make(map[int]bool)
	rows := make([]batch.Row, 0, len(table.Rows))
	for _, row := range table.Rows {
		word := row.Word()
		name, err := p.writer.FileName(word)
		if err != nil {
			if !p.opts.KeepGoing {
				return nil, nil, fmt.Errorf("line %d: %w", row.Line, err)
			}
			logger.Warn("Skipping row", "line", row.Line, "word", word, "error", err)
			summary.Failures = append(summary.Failures, RowFailure{Line: row.Line, Word: word, Err: err})
			continue
		}
		if prev, ok := names[name]; ok {
			logger.Warn("Words share an output file, the later row wins",
				"file", name, "first", rows[prev].Word(), "second", word, "line", row.Line)
			replaced[prev] = true
		}
		names[name] = len(rows)
		rows = append(rows, row)
	}

	if len(replaced) > 0 {
		kept := rows[:0]
		for i, row := range rows {
			if !replaced[i] {
				kept = append(kept, row)
			}
		}
		rows = kept
		summary.Replaced = len(replaced)
	}

	return table, rows, nil
}

// checkDeadline rejects a job whose deadline ends before the limiter can
// grant one permit per request. Cached fragments take no permit, so with a
// fragment store a shortfall is only logged.
func (p *Processor) checkDeadline(ctx context.Context, requests int) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}

	need := p.limiter.Span(requests)
	left := time.Until(deadline)
	if left > need {
		return nil
	}

	err := fmt.Errorf("%d requests at %d/s need at least %s", requests, p.limiter.Rate(), need)
	if p.opts.Store != nil {
		logger.Warn("Timeout may end the job before every request is sent", "error", err)
		return nil
	}
	return &cli.ConfigError{Option: "timeout", Value: left.Round(time.Millisecond).String(), Err: err}
}

// synthesize runs every row concurrently. Without KeepGoing the first
// failure cancels the remaining rows.
func (p *Processor) synthesize(ctx context.Context, rows []batch.Row, columns []string, summary *Summary) ([]*synth.Bundle, error) {
	synthesizer := synth.New(p.provider)
	bundles := make([]*synth.Bundle, len(rows))

	var (
		mu        sync.Mutex
		completed int
		total     = len(rows)
	)

	g, gctx := errgroup.WithContext(ctx)
	if p.opts.KeepGoing {
		// Failures are recorded per row and must not cancel the others
		g = &errgroup.Group{}
		gctx = ctx
	}

	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			bundle, err := synthesizer.SynthesizeRow(gctx, row, columns)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var synthErr *audio.SynthesisError
				if errors.As(err, &synthErr) {
					logger.SynthesisError(gctx, synthErr.Provider, synthErr.Language, synthErr.Err, "line", row.Line, "word", row.Word())
				}
				if !p.opts.KeepGoing || jobEnded(ctx, err) {
					return err
				}
				logger.WarnContext(ctx, "Skipping row", "line", row.Line, "word", row.Word())
				summary.Failures = append(summary.Failures, RowFailure{Line: row.Line, Word: row.Word(), Err: err})
				return nil
			}

			bundles[i] = bundle
			completed++
			logger.Info("Row synthesized", "done", completed, "total", total, "word", row.Word(), "bytes", bundle.Size())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return bundles, nil
}

// jobEnded reports whether err comes from the job's own cancellation or
// deadline rather than from the row
func jobEnded(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	_, hasDeadline := ctx.Deadline()
	return hasDeadline && errors.Is(err, context.DeadlineExceeded)
}

// write persists every bundle and waits for all of them. The returned
// paths are aligned with bundles.
func (p *Processor) write(bundles []*synth.Bundle, summary *Summary) ([]string, error) {
	if err := p.writer.EnsureDir(); err != nil {
		return nil, err
	}

	paths := make([]string, len(bundles))
	var g errgroup.Group
	for i, bundle := range bundles {
		if bundle == nil {
			continue
		}
		i, bundle := i, bundle
		g.Go(func() error {
			path, err := p.writer.Write(bundle.Row.Word(), bundle.Fragments)
			if err != nil {
				return err
			}
			bundle.Release()
			paths[i] = path
			logger.Debug("Wrote file", "path", path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, path := range paths {
		if path != "" {
			summary.Paths = append(summary.Paths, path)
		}
	}
	summary.Written = len(summary.Paths)
	return paths, nil
}

// exportAnki writes one note per written row
func (p *Processor) exportAnki(columns []string, bundles []*synth.Bundle, paths []string) (string, error) {
	path := filepath.Join(p.opts.OutputDir, anki.DefaultFileName)
	deck := anki.NewDeck(columns)
	for i, bundle := range bundles {
		if bundle == nil || paths[i] == "" {
			continue
		}
		if err := deck.Add(bundle.Row.Cells, paths[i]); err != nil {
			return "", &artifact.WriteError{Path: path, Err: err}
		}
	}
	if err := deck.WriteFile(path); err != nil {
		return "", &artifact.WriteError{Path: path, Err: err}
	}

	logger.Info("Anki import file written", "path", path, "notes", deck.Len())
	return path, nil
}
