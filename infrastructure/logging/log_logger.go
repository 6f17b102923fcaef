package logging

import (
	"fmt"
	"io"
	"log"
	"os"

	"carbonvpn/application/logging"
)

// LogLogger backs the Logger port with the standard log package, writing to
// the tty, a log file, or both. Debug lines are gated on the debug flag.
type LogLogger struct {
	logger *log.Logger
	debug  bool
	file   *os.File
}

// NewLogLogger opens the log sink. An empty path logs to stderr only
// (config `log = false`).
func NewLogLogger(path string, debug bool) (*LogLogger, error) {
	l := &LogLogger{debug: debug}

	var sink io.Writer = os.Stderr
	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
		}
		l.file = file
		sink = io.MultiWriter(os.Stderr, file)
	}

	l.logger = log.New(sink, "", log.LstdFlags)
	return l, nil
}

// Quiet drops the tty sink, keeping only the log file. The daemonized
// process has no useful stderr.
func (l *LogLogger) Quiet() {
	if l.file != nil {
		l.logger.SetOutput(l.file)
	} else {
		l.logger.SetOutput(io.Discard)
	}
}

func (l *LogLogger) Printf(format string, v ...any) {
	l.logger.Printf(format, v...)
}

func (l *LogLogger) Debugf(format string, v ...any) {
	if l.debug {
		l.logger.Printf("[dbug] "+format, v...)
	}
}

func (l *LogLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

var _ logging.Debugger = (*LogLogger)(nil)
