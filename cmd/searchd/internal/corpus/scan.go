package corpus

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime/debug"

	"golang.org/x/sys/unix"

	"github.com/hasirciogluhq/xsearch/cmd/searchd/internal/config"
)

var errNotRegular = errors.New("not a regular file")

// ScanFile memory-maps path read-only and looks for query in the raw bytes.
// With config.MatchLine the query must equal a whole trimmed line; with
// config.MatchSubstring any occurrence counts, including one that spans a
// line terminator. An empty file never matches.
func ScanFile(path string, query []byte, mode config.MatchMode) (found bool, err error) {
	if len(query) == 0 {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, fmt.Errorf("%s: %w", path, errNotRegular)
	}
	size := info.Size()
	if size == 0 {
		return false, nil
	}
	if size > math.MaxInt {
		return false, fmt.Errorf("%s: file too large to map (%d bytes)", path, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return false, fmt.Errorf("memory-mapping %s: %w", path, err)
	}
	defer unix.Munmap(data)

	// A file truncated underneath the mapping raises SIGBUS on access.
	// Turn that into a recoverable error instead of a crash.
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		if r := recover(); r != nil {
			found = false
			err = fmt.Errorf("fault while scanning %s: %v", path, r)
		}
	}()

	if mode == config.MatchSubstring {
		return bytes.Contains(data, query), nil
	}
	return containsLine(data, query), nil
}

// containsLine reports whether some line of data, trimmed of surrounding
// whitespace, equals query.
func containsLine(data, query []byte) bool {
	if !bytes.Contains(data, query) {
		return false
	}
	for len(data) > 0 {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		if bytes.Equal(bytes.TrimSpace(line), query) {
			return true
		}
	}
	return false
}
