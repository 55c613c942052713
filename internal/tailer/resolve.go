package tailer

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Sentinel errors callers can test with errors.Is to map onto API
// responses.
var (
	// ErrNoMatches - a glob pattern matched no files.
	ErrNoMatches = errors.New("no files match pattern")

	// ErrFileNotFound - a literal path does not exist.
	ErrFileNotFound = errors.New("log file not found")

	// ErrPermissionDenied - the engine cannot read the file.
	ErrPermissionDenied = errors.New("permission denied")
)

// candidate is one file matched by a source pattern.
type candidate struct {
	Path    string
	ModTime time.Time
	Size    int64
}

func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// resolve expands a source pattern into candidate files ranked
// most-recently-modified first, capped at maxFiles. A literal path
// resolves to exactly one candidate or a sentinel error.
func resolve(pattern string, maxFiles int) ([]candidate, error) {
	if !hasGlobMeta(pattern) {
		info, err := os.Stat(pattern)
		if err != nil {
			switch {
			case errors.Is(err, fs.ErrNotExist):
				return nil, fmt.Errorf("%w: %s", ErrFileNotFound, pattern)
			case errors.Is(err, fs.ErrPermission):
				return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, pattern)
			}
			return nil, fmt.Errorf("stat %s: %w", pattern, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrFileNotFound, pattern)
		}
		return []candidate{{Path: pattern, ModTime: info.ModTime(), Size: info.Size()}}, nil
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	candidates := make([]candidate, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			// A match that vanished between glob and stat, or a
			// directory caught by the pattern. Not this source's file.
			continue
		}
		candidates = append(candidates, candidate{
			Path:    path,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatches, pattern)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].ModTime.Equal(candidates[j].ModTime) {
			return candidates[i].ModTime.After(candidates[j].ModTime)
		}
		return candidates[i].Path < candidates[j].Path
	})
	if maxFiles > 0 && len(candidates) > maxFiles {
		candidates = candidates[:maxFiles]
	}
	return candidates, nil
}

// tailChunk is the backward read step when locating the initial batch.
const tailChunk = 32 * 1024

// tailLines returns the last n complete lines of the file and the
// offset the live follow should continue from. A trailing partial line
// with no newline yet is left unread so the completed line is
// delivered exactly once later.
func tailLines(f *os.File, n int) ([]string, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat: %w", err)
	}
	size := info.Size()
	if n <= 0 || size == 0 {
		return nil, size, nil
	}

	var buf []byte
	off := size
	for off > 0 && bytes.Count(buf, []byte{'\n'}) <= n {
		step := int64(tailChunk)
		if step > off {
			step = off
		}
		off -= step
		chunk := make([]byte, step)
		if _, err := f.ReadAt(chunk, off); err != nil {
			return nil, 0, fmt.Errorf("read at %d: %w", off, err)
		}
		buf = append(chunk, buf...)
	}

	end := size
	if len(buf) > 0 && buf[len(buf)-1] != '\n' {
		i := bytes.LastIndexByte(buf, '\n')
		end -= int64(len(buf) - (i + 1))
		buf = buf[:i+1]
	}
	if len(buf) == 0 {
		return nil, end, nil
	}

	lines := strings.Split(strings.TrimSuffix(string(buf), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, end, nil
}

// splitLines appends data to the carry buffer and returns all complete
// lines, keeping any trailing partial line in the carry.
func splitLines(carry, data []byte) ([]string, []byte) {
	carry = append(carry, data...)
	i := bytes.LastIndexByte(carry, '\n')
	if i < 0 {
		return nil, carry
	}
	complete := carry[:i]
	rest := append([]byte(nil), carry[i+1:]...)

	var lines []string
	if len(complete) > 0 {
		lines = strings.Split(string(complete), "\n")
	} else {
		lines = []string{""}
	}
	return lines, rest
}
