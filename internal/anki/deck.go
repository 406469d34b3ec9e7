// Package anki exports the audio files of a run as an Anki import file.
// Each note holds the row's words and a sound reference to its file, so the
// output directory can be copied into Anki's collection.media folder.
package anki

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultFileName is the import file written into the output directory
const DefaultFileName = "anki_import.csv"

// AudioColumn is the header of the sound field
const AudioColumn = "Audio"

// Note is one Anki note: a word per language and its audio file
type Note struct {
	Fields []string
	Audio  string // Path of the audio file, empty when none was written
}

// Deck collects notes for one import file. Columns name the language fields
// and become the header row.
type Deck struct {
	columns []string
	notes   []Note
}

// NewDeck creates an empty deck for the given language columns
func NewDeck(columns []string) *Deck {
	return &Deck{columns: columns}
}

// Add appends a note. A note with more or fewer fields than the deck has
// columns is rejected.
func (d *Deck) Add(fields []string, audio string) error {
	if len(fields) != len(d.columns) {
		return fmt.Errorf("note has %d fields, deck has %d columns", len(fields), len(d.columns))
	}
	d.notes = append(d.notes, Note{Fields: fields, Audio: audio})
	return nil
}

// Len returns the number of notes
func (d *Deck) Len() int {
	return len(d.notes)
}

// WriteTo writes the header and one record per note as CSV
func (d *Deck) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	writer := csv.NewWriter(cw)

	header := append(append([]string{}, d.columns...), AudioColumn)
	if err := writer.Write(header); err != nil {
		return cw.n, fmt.Errorf("failed to write header: %w", err)
	}
	for _, note := range d.notes {
		record := append(append([]string{}, note.Fields...), SoundField(note.Audio))
		if err := writer.Write(record); err != nil {
			return cw.n, fmt.Errorf("failed to write note: %w", err)
		}
	}

	writer.Flush()
	return cw.n, writer.Error()
}

// WriteFile writes the deck to path, replacing an existing file
func (d *Deck) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := d.WriteTo(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SoundField formats an Anki sound reference. Anki resolves it against the
// media folder, so only the base name is kept.
func SoundField(path string) string {
	if path == "" {
		return ""
	}
	return fmt.Sprintf("[sound:%s]", filepath.Base(path))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
