// Package scripts discovers script files in a directory and loads their text.
package scripts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrDirectoryNotFound is returned by [List] when the scripts directory is
// missing or is not a directory.
var ErrDirectoryNotFound = errors.New("scripts directory not found")

// Record is a loaded script: its path and normalized source text.
type Record struct {
	Path   string
	Source string
}

// ReadError reports a script that could not be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string { return fmt.Sprintf("read script %s: %v", e.Path, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// List returns the regular files directly inside dir, sorted by name.
// Subdirectories and other non-regular entries are skipped, as are files
// that cannot be opened for reading. An empty ext accepts every file;
// otherwise names must end in ext (case-insensitive).
func List(dir, ext string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	ext = strings.ToLower(ext)

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if ext != "" && !strings.HasSuffix(strings.ToLower(name), ext) {
			continue
		}

		path := filepath.Join(dir, name)
		if !readableFile(path) {
			continue
		}
		paths = append(paths, path)
	}

	sort.Strings(paths)
	return paths, nil
}

// readableFile follows symlinks.
func readableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Load reads a script as text. A leading byte-order mark selects the
// encoding (UTF-8 otherwise) and is dropped. Line endings become "\n" and
// non-empty text always ends with one.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}

	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}

	return Normalize(decoded), nil
}

// Normalize converts CRLF and lone CR line endings to LF and terminates the
// last line.
func Normalize(src []byte) string {
	if len(src) == 0 {
		return ""
	}
	src = bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	src = bytes.ReplaceAll(src, []byte("\r"), []byte("\n"))
	if src[len(src)-1] != '\n' {
		src = append(src, '\n')
	}
	return string(src)
}

// LoadAll loads paths in order. Unreadable files are skipped and reported in
// the returned errors.
func LoadAll(paths []string) ([]Record, []error) {
	records := make([]Record, 0, len(paths))
	var errs []error
	for _, path := range paths {
		src, err := Load(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, Record{Path: path, Source: src})
	}
	return records, errs
}
