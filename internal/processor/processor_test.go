package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/snonux/wordaudio/internal/artifact"
	"codeberg.org/snonux/wordaudio/internal/audio"
	"codeberg.org/snonux/wordaudio/internal/batch"
	"codeberg.org/snonux/wordaudio/internal/cache"
	"codeberg.org/snonux/wordaudio/internal/cli"
	"codeberg.org/snonux/wordaudio/internal/ratelimit"
	"codeberg.org/snonux/wordaudio/internal/testutil"
)

func newTestProcessor(t *testing.T, csvPath, outDir string, stub *testutil.StubProvider, rate int, keepGoing bool) *Processor {
	t.Helper()

	p, err := New(Options{
		CSVFile:   csvPath,
		OutputDir: outDir,
		KeepGoing: keepGoing,
		Backend:   stub,
		Limiter:   ratelimit.New(rate),
	})
	require.NoError(t, err)
	return p
}

func TestRun_HelloBonjour(t *testing.T) {
	dir := testutil.CreateTestDirectory(t)
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en,fr", "hello,bonjour")
	outDir := filepath.Join(dir, "output")

	stub := testutil.NewStubProvider("mp3")
	p := newTestProcessor(t, csvPath, outDir, stub, 10, false)
	assert.Equal(t, Idle, p.State())

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Done, p.State())
	testutil.AssertFileContent(t, filepath.Join(outDir, "hello.mp3"), []byte("en:hellofr:bonjour"))
	assert.Equal(t, []string{"hello.mp3"}, testutil.ListFiles(t, outDir))

	assert.Equal(t, 1, summary.Rows)
	assert.Equal(t, 2, summary.Languages)
	assert.Equal(t, 1, summary.Written)
	assert.EqualValues(t, 2, summary.Requests)
	assert.Equal(t, []string{filepath.Join(outDir, "hello.mp3")}, summary.Paths)
	assert.Empty(t, summary.Failures)
}

func TestRun_OneArtifactPerRowInColumnOrder(t *testing.T) {
	dir := t.TempDir()
	lines := []string{"en,fr,de"}
	for i := 0; i < 8; i++ {
		lines = append(lines, fmt.Sprintf("word%d,mot%d,wort%d", i, i, i))
	}
	csvPath := testutil.WriteCSV(t, dir, "words.csv", lines...)
	outDir := filepath.Join(dir, "out")

	stub := testutil.NewStubProvider("mp3")
	// First column answers last
	stub.Delays["en"] = 40 * time.Millisecond
	stub.Delays["fr"] = 20 * time.Millisecond

	summary, err := newTestProcessor(t, csvPath, outDir, stub, 100, false).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Written)
	assert.Len(t, testutil.ListFiles(t, outDir), 8)
	for i := 0; i < 8; i++ {
		want := fmt.Sprintf("en:word%dfr:mot%dde:wort%d", i, i, i)
		testutil.AssertFileContent(t, filepath.Join(outDir, fmt.Sprintf("word%d.mp3", i)), []byte(want))
	}
	assert.Equal(t, 24, stub.CallCount())
}

func TestRun_HeaderOnly(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en,fr")
	outDir := filepath.Join(dir, "out")

	stub := testutil.NewStubProvider("mp3")
	p := newTestProcessor(t, csvPath, outDir, stub, 10, false)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	var parseErr *batch.ParseError
	assert.True(t, errors.As(err, &parseErr), "got %v", err)
	assert.ErrorIs(t, err, batch.ErrNoRows)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, Parsing, stageErr.Stage)
	assert.Contains(t, err.Error(), "parsing")

	assert.Equal(t, Failed, p.State())
	assert.Zero(t, stub.CallCount())
	testutil.AssertFileNotExists(t, outDir)
}

func TestRun_InvalidNameBeforeAnyRequest(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en,fr", "hello,bonjour", `"???",quoi`)
	outDir := filepath.Join(dir, "out")

	stub := testutil.NewStubProvider("mp3")
	p := newTestProcessor(t, csvPath, outDir, stub, 10, false)

	_, err := p.Run(context.Background())

	var nameErr *artifact.InvalidNameError
	require.True(t, errors.As(err, &nameErr), "got %v", err)
	assert.Equal(t, "???", nameErr.Word)
	assert.Equal(t, Failed, p.State())
	assert.Zero(t, stub.CallCount())
	assert.Empty(t, testutil.ListFiles(t, outDir))
}

func TestRun_SynthesisFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en,fr", "hello,bonjour", "cat,chat")
	outDir := filepath.Join(dir, "out")

	stub := testutil.NewStubProvider("mp3")
	stub.Errors["fr:chat"] = errors.New("quota exceeded")

	p := newTestProcessor(t, csvPath, outDir, stub, 50, false)
	_, err := p.Run(context.Background())
	require.Error(t, err)

	var synthErr *audio.SynthesisError
	require.True(t, errors.As(err, &synthErr), "got %v", err)
	assert.Equal(t, "fr", synthErr.Language)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, Synthesizing, stageErr.Stage)
	assert.Equal(t, Failed, p.State())
	assert.Empty(t, testutil.ListFiles(t, outDir))
}

func TestRun_KeepGoing(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv",
		"en,fr",
		"hello,bonjour",
		"cat,chat",
		"dog,chien",
		"<>,quoi",
	)
	outDir := filepath.Join(dir, "out")

	stub := testutil.NewStubProvider("mp3")
	stub.Errors["fr:chat"] = errors.New("quota exceeded")

	p := newTestProcessor(t, csvPath, outDir, stub, 50, true)
	summary, err := p.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.Equal(t, Done, p.State())

	assert.Equal(t, []string{"dog.mp3", "hello.mp3"}, testutil.ListFiles(t, outDir))
	assert.Equal(t, 2, summary.Written)
	require.Len(t, summary.Failures, 2)

	failed := map[string]error{}
	for _, f := range summary.Failures {
		failed[f.Word] = f.Err
	}
	var nameErr *artifact.InvalidNameError
	assert.True(t, errors.As(failed["<>"], &nameErr))
	var synthErr *audio.SynthesisError
	assert.True(t, errors.As(failed["cat"], &synthErr))
}

func TestRun_Idempotent(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en,fr", "hello,bonjour", "cat,chat")
	first := filepath.Join(dir, "first")
	outDir := filepath.Join(dir, "out")

	_, err := newTestProcessor(t, csvPath, first, testutil.NewStubProvider("mp3"), 50, false).Run(context.Background())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := newTestProcessor(t, csvPath, outDir, testutil.NewStubProvider("mp3"), 50, false).Run(context.Background())
		require.NoError(t, err)
	}

	testutil.AssertSameFiles(t, first, outDir)
}

func TestRun_OnlyOnce(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en", "hello")

	p := newTestProcessor(t, csvPath, filepath.Join(dir, "out"), testutil.NewStubProvider("mp3"), 10, false)
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestRun_RespectsRate(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en,fr", "a,b", "c,d", "e,f")

	stub := testutil.NewStubProvider("mp3")
	limiter := ratelimit.New(5)
	p, err := New(Options{
		CSVFile:   csvPath,
		OutputDir: filepath.Join(dir, "out"),
		Backend:   stub,
		Limiter:   limiter,
	})
	require.NoError(t, err)

	start := time.Now()
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	// Six requests at 5/s take at least five intervals
	assert.GreaterOrEqual(t, time.Since(start), 5*limiter.Interval()-limiter.Interval()/2)
	assert.EqualValues(t, 6, summary.Requests)
}

func TestRun_Timeout(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en,fr", "a,b", "c,d")
	outDir := filepath.Join(dir, "out")

	stub := testutil.NewStubProvider("mp3")
	stub.Delays["en"] = time.Second
	p := newTestProcessor(t, csvPath, outDir, stub, 100, true)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrPartialFailure)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, Synthesizing, stageErr.Stage)
	assert.Equal(t, Failed, p.State())
	assert.Empty(t, testutil.ListFiles(t, outDir))
}

func TestRun_TimeoutTooShortForRate(t *testing.T) {
	dir := t.TempDir()
	lines := []string{"en"}
	for i := 0; i < 10; i++ {
		lines = append(lines, fmt.Sprintf("word%d", i))
	}
	csvPath := testutil.WriteCSV(t, dir, "words.csv", lines...)
	outDir := filepath.Join(dir, "out")

	stub := testutil.NewStubProvider("mp3")
	p := newTestProcessor(t, csvPath, outDir, stub, 1, false)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := p.Run(ctx)
	require.Error(t, err)

	var cfgErr *cli.ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "timeout", cfgErr.Option)
	assert.Contains(t, err.Error(), "10 requests at 1/s need at least 9s")

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, Parsing, stageErr.Stage)
	assert.Zero(t, stub.CallCount())
	testutil.AssertFileNotExists(t, outDir)
}

func TestRun_TimeoutCoversRate(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en,fr", "a,b", "c,d")
	outDir := filepath.Join(dir, "out")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	summary, err := newTestProcessor(t, csvPath, outDir, testutil.NewStubProvider("mp3"), 20, false).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Written)
}

func TestRun_CollidingNamesKeepLaterRow(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en", "a?", "a", "b")
	outDir := filepath.Join(dir, "out")

	for i := 0; i < 20; i++ {
		stub := testutil.NewStubProvider("mp3")
		summary, err := newTestProcessor(t, csvPath, outDir, stub, 1000, false).Run(context.Background())
		require.NoError(t, err)

		testutil.AssertFileContent(t, filepath.Join(outDir, "a.mp3"), []byte("en:a"))
		assert.Equal(t, []string{"a.mp3", "b.mp3"}, testutil.ListFiles(t, outDir))
		assert.Equal(t, 3, summary.Rows)
		assert.Equal(t, 1, summary.Replaced)
		assert.Equal(t, 2, summary.Written)
		assert.Equal(t, 2, stub.CallCount())
	}
}

func TestRun_CacheSkipsBackendOnRerun(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en,fr", "hello,bonjour")
	outDir := filepath.Join(dir, "out")

	store, err := cache.Open(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	defer store.Close()

	run := func() (*testutil.StubProvider, *Summary) {
		stub := testutil.NewStubProvider("mp3")
		p, err := New(Options{
			CSVFile:     csvPath,
			OutputDir:   outDir,
			Backend:     stub,
			Limiter:     ratelimit.New(50),
			Store:       store,
			Fingerprint: "stub",
		})
		require.NoError(t, err)
		summary, err := p.Run(context.Background())
		require.NoError(t, err)
		return stub, summary
	}

	stub, summary := run()
	assert.Equal(t, 2, stub.CallCount())
	assert.EqualValues(t, 2, summary.Requests)

	stub, summary = run()
	assert.Zero(t, stub.CallCount())
	assert.Zero(t, summary.Requests)
	testutil.AssertFileContent(t, filepath.Join(outDir, "hello.mp3"), []byte("en:hellofr:bonjour"))
}

func TestRun_BreakerStopsRequests(t *testing.T) {
	dir := t.TempDir()
	lines := []string{"en"}
	for i := 0; i < 6; i++ {
		lines = append(lines, fmt.Sprintf("word%d", i))
	}
	csvPath := testutil.WriteCSV(t, dir, "words.csv", lines...)

	stub := testutil.NewStubProvider("mp3")
	stub.Errors["en"] = errors.New("503 service unavailable")

	p, err := New(Options{
		CSVFile:   csvPath,
		OutputDir: filepath.Join(dir, "out"),
		KeepGoing: true,
		Backend:   stub,
		Limiter:   ratelimit.New(100),
		Breaker:   &audio.BreakerSettings{MaxConsecutiveFailures: 2, OpenTimeout: time.Minute},
	})
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.Len(t, summary.Failures, 6)
	assert.Less(t, stub.CallCount(), 6, "open breaker should stop requests")
}

func TestNew_RequiresBackend(t *testing.T) {
	_, err := New(Options{CSVFile: "words.csv"})
	assert.Error(t, err)
}

func TestNewProcessor(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	dir := t.TempDir()
	flags := cli.NewFlags()
	flags.CSVFile = testutil.WriteCSV(t, dir, "words.csv", "en", "hello")
	flags.OutputDir = filepath.Join(dir, "out")
	flags.Backend = "openai"
	flags.Rate = "not-a-number"
	flags.Delimiter = "tab"
	flags.CacheFile = filepath.Join(dir, "cache.db")

	p, err := NewProcessor(context.Background(), flags)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 1, p.limiter.Rate())
	assert.Equal(t, '\t', p.opts.Delimiter)
	assert.Equal(t, "mp3", p.opts.Extension)
	assert.Equal(t, "openai", p.provider.Name())
	assert.NotNil(t, p.opts.Store)
	testutil.AssertFileExists(t, flags.CacheFile)
}

func TestNewProcessor_MissingInput(t *testing.T) {
	flags := cli.NewFlags()
	flags.CSVFile = filepath.Join(t.TempDir(), "missing.csv")

	_, err := NewProcessor(context.Background(), flags)
	var cfgErr *cli.ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "csv", cfgErr.Option)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "synthesizing", Synthesizing.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestRun_AnkiExportCollidingNames(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en,fr", "a?,quoi", "a,un")
	outDir := filepath.Join(dir, "out")

	p, err := New(Options{
		CSVFile:   csvPath,
		OutputDir: outDir,
		Anki:      true,
		Backend:   testutil.NewStubProvider("mp3"),
		Limiter:   ratelimit.New(50),
	})
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	testutil.AssertFileContent(t, filepath.Join(outDir, "a.mp3"), []byte("en:afr:un"))
	testutil.AssertFileContent(t, summary.AnkiFile, []byte("en,fr,Audio\na,un,[sound:a.mp3]\n"))
}

func TestRun_AnkiExport(t *testing.T) {
	dir := t.TempDir()
	csvPath := testutil.WriteCSV(t, dir, "words.csv", "en,fr", "hello,bonjour", "cat,chat")
	outDir := filepath.Join(dir, "out")

	stub := testutil.NewStubProvider("mp3")
	stub.Errors["fr:chat"] = errors.New("quota exceeded")

	p, err := New(Options{
		CSVFile:   csvPath,
		OutputDir: outDir,
		KeepGoing: true,
		Anki:      true,
		Backend:   stub,
		Limiter:   ratelimit.New(50),
	})
	require.NoError(t, err)

	summary, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrPartialFailure)

	assert.Equal(t, filepath.Join(outDir, "anki_import.csv"), summary.AnkiFile)
	testutil.AssertFileContent(t, summary.AnkiFile, []byte("en,fr,Audio\nhello,bonjour,[sound:hello.mp3]\n"))
}

type closingStore struct {
	err error
}

func (s *closingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *closingStore) Put(ctx context.Context, key string, data []byte) error {
	return nil
}

func (s *closingStore) Close() error {
	return s.err
}

func TestClose_ReportsStoreError(t *testing.T) {
	closeErr := errors.New("database is locked")
	p, err := New(Options{
		CSVFile:   "words.csv",
		OutputDir: t.TempDir(),
		Backend:   testutil.NewStubProvider("mp3"),
		Store:     &closingStore{err: closeErr},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, p.Close(), closeErr)
}
