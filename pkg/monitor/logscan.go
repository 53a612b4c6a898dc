package monitor

import (
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
)

// errLine matches the lines worth waking an admin for.
var errLine = regexp.MustCompile(`(?i)\b(error|fail(ed|ure)?|crit(ical)?|panic|fatal|segfault)\b`)

const (
	maxScanBytes   = 256 * 1024
	maxReportLines = 10
)

// LogScanner tails a set of log files incrementally. It remembers a byte
// offset per file so each line is examined once; a shrunken file means
// rotation and resets the cursor.
type LogScanner struct {
	mu      sync.Mutex
	offsets map[string]int64
}

func NewLogScanner() *LogScanner {
	return &LogScanner{offsets: make(map[string]int64)}
}

// Scan reads the new portion of the file and returns matching error lines,
// capped at maxReportLines. A missing file is not an error, just empty.
func (s *LogScanner) Scan(path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	off := s.offsets[path]
	if size < off {
		off = 0
	}
	if size == off {
		s.offsets[path] = size
		return nil, nil
	}
	// bound the read on a runaway log; skip ahead and scan only the tail
	if size-off > maxScanBytes {
		off = size - maxScanBytes
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(f, maxScanBytes))
	if err != nil {
		return nil, err
	}
	s.offsets[path] = off + int64(len(data))

	var hits []string
	for _, ln := range strings.Split(string(data), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || !errLine.MatchString(ln) {
			continue
		}
		hits = append(hits, ln)
		if len(hits) >= maxReportLines {
			break
		}
	}
	return hits, nil
}

// Prime records the current size of each file without reporting anything,
// so startup does not replay historical errors.
func (s *LogScanner) Prime(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil {
			s.offsets[p] = fi.Size()
		}
	}
}
