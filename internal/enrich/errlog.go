package enrich

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrorLog is the append-only sink for per-coordinate lookup failures.
// Each failure becomes one "lat,lon,message" line. The file is truncated
// when the log is opened, so every run starts from a clean slate.
type ErrorLog struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	entries atomic.Int64
}

// OpenErrorLog creates (or truncates) the error log at path.
func OpenErrorLog(path string) (*ErrorLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: open error log")
	}
	return &ErrorLog{f: f, path: path}, nil
}

// Record appends one lat,lon,message line. Safe for concurrent use from
// worker goroutines; lines from concurrent writers may land in any order
// but each line is written whole. Commas inside the message are kept as-is.
func (l *ErrorLog) Record(lat, lon float64, msg string) {
	line := strconv.FormatFloat(lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(lon, 'f', -1, 64) + "," + msg + "\n"

	l.entries.Add(1)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.WriteString(line); err != nil {
		zap.L().Warn("error log write failed",
			zap.String("path", l.path),
			zap.Error(err),
		)
	}
}

// Count returns the number of failures recorded so far.
func (l *ErrorLog) Count() int64 {
	return l.entries.Load()
}

// Path returns the log file location.
func (l *ErrorLog) Path() string {
	return l.path
}

// Close closes the underlying file.
func (l *ErrorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Close(); err != nil {
		return eris.Wrap(err, "enrich: close error log")
	}
	return nil
}
