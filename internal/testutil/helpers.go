package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// CreateTestDirectory returns a temporary working directory holding an empty
// "output" directory, the default artifact location
func CreateTestDirectory(t *testing.T) string {
	t.Helper()

	tempDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tempDir, "output"), 0755); err != nil {
		t.Fatalf("Failed to create test output directory: %v", err)
	}
	return tempDir
}

// CreateTestFile creates a test file with content
func CreateTestFile(t *testing.T, path string, content []byte) {
	t.Helper()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create directory for test file: %v", err)
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("Failed to create test file %s: %v", path, err)
	}
}

// WriteCSV writes lines joined by newlines to dir/name and returns the path
func WriteCSV(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	CreateTestFile(t, path, []byte(strings.Join(lines, "\n")+"\n"))
	return path
}

// AssertFileExists fails the test unless path exists
func AssertFileExists(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Expected file to exist: %s", path)
	}
}

// AssertFileNotExists fails the test if path exists
func AssertFileNotExists(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); err == nil {
		t.Errorf("Expected file to not exist: %s", path)
	}
}

// AssertFileContent compares a file's bytes with expected
func AssertFileContent(t *testing.T, path string, expected []byte) {
	t.Helper()

	actual, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}

	if !bytes.Equal(actual, expected) {
		t.Errorf("File content mismatch in %s\nExpected: %q\nActual: %q", path, expected, actual)
	}
}

// ListFiles returns the sorted names of the regular files in dir. A missing
// directory yields no files.
func ListFiles(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("Failed to read directory %s: %v", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

// AssertSameFiles checks that two directories hold the same file names with
// identical content
func AssertSameFiles(t *testing.T, want, got string) {
	t.Helper()

	wantNames, gotNames := ListFiles(t, want), ListFiles(t, got)
	if strings.Join(wantNames, "\n") != strings.Join(gotNames, "\n") {
		t.Fatalf("Files differ: %s has %v, %s has %v", want, wantNames, got, gotNames)
	}

	for _, name := range wantNames {
		expected, err := os.ReadFile(filepath.Join(want, name))
		if err != nil {
			t.Fatalf("Failed to read %s: %v", name, err)
		}
		AssertFileContent(t, filepath.Join(got, name), expected)
	}
}
