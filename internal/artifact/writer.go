// Package artifact persists row bundles as one audio file per row, named
// after the row's source-language word.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/snonux/wordaudio/internal"
	"codeberg.org/snonux/wordaudio/internal/audio"
)

// InvalidNameError reports a word that does not sanitize to a usable filename
type InvalidNameError struct {
	Word string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("word %q does not yield a usable filename", e.Word)
}

// WriteError reports a failure to persist an artifact
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer writes artifacts into one output directory
type Writer struct {
	dir string
	ext string
}

// NewWriter creates a writer for dir using the file extension ext
func NewWriter(dir, ext string) *Writer {
	return &Writer{dir: dir, ext: strings.TrimPrefix(ext, ".")}
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// EnsureDir creates the output directory if needed
func (w *Writer) EnsureDir() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return &WriteError{Path: w.dir, Err: err}
	}
	return nil
}

// FileName returns the artifact file name for word
func (w *Writer) FileName(word string) (string, error) {
	name := internal.SanitizeFilename(word)
	if name == "" {
		return "", &InvalidNameError{Word: word}
	}
	if w.ext == "" {
		return name, nil
	}
	// Keep the full name within the filesystem limit
	name = internal.TruncateFilename(name, internal.MaxFilenameBytes-len(w.ext)-1)
	if name == "" {
		return "", &InvalidNameError{Word: word}
	}
	return name + "." + w.ext, nil
}

// PathFor returns the artifact path for word
func (w *Writer) PathFor(word string) (string, error) {
	name, err := w.FileName(word)
	if err != nil {
		return "", err
	}
	return filepath.Join(w.dir, name), nil
}

// Write concatenates fragments in order and stores them under the word's
// path, replacing an existing file. The file appears atomically.
func (w *Writer) Write(word string, fragments []audio.Fragment) (string, error) {
	path, err := w.PathFor(word)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(w.dir, ".wordaudio-*")
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	for _, fragment := range fragments {
		if _, err := tmp.Write(fragment); err != nil {
			tmp.Close()
			return "", &WriteError{Path: path, Err: err}
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	return path, nil
}
