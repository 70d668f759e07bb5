package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// TimeFormat is the timestamp layout of every activity line.
const TimeFormat = "2006-01-02 15:04:05"

// Logger writes "<timestamp> - <message>" lines to an append-only file and
// mirrors them to a terminal writer. It never returns errors to callers.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	out      io.Writer
	color    bool
	styles   map[Level]lipgloss.Style
	now      func() time.Time
	degraded bool
}

type Option func(*Logger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithColor forces coloured level labels on or off for the mirror output.
func WithColor(on bool) Option {
	return func(l *Logger) { l.color = on }
}

// New opens path for appending (creating parent directories) and mirrors to
// out. An empty path disables the file sink. If the file cannot be opened the
// logger stays usable and tells the operator once on out.
func New(path string, out io.Writer, opts ...Option) *Logger {
	if out == nil {
		out = os.Stdout
	}
	l := &Logger{path: path, out: out, now: time.Now}
	if f, ok := out.(*os.File); ok {
		l.color = term.IsTerminal(int(f.Fd()))
	}
	for _, o := range opts {
		o(l)
	}
	if l.color {
		// Pin the profile: the renderer would otherwise re-detect from out
		// and drop colour for non-terminal writers forced on by WithColor.
		r := lipgloss.NewRenderer(out, termenv.WithProfile(termenv.ANSI))
		r.SetColorProfile(termenv.ANSI)
		l.styles = map[Level]lipgloss.Style{
			LevelWarn:  r.NewStyle().Foreground(lipgloss.Color("3")),
			LevelError: r.NewStyle().Foreground(lipgloss.Color("1")),
		}
	}
	if path == "" {
		return l
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		l.degradeLocked(err)
		return l
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		l.degradeLocked(err)
		return l
	}
	l.file = f
	return l
}

// Persisting reports whether lines are still reaching the log file.
func (l *Logger) Persisting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

func (l *Logger) log(lvl Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	line := l.now().Format(TimeFormat) + " - " + msg + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if _, err := l.file.WriteString(line); err != nil {
			_ = l.file.Close()
			l.file = nil
			l.degradeLocked(err)
		}
	}

	style, ok := l.styles[lvl]
	if !ok {
		_, _ = io.WriteString(l.out, line)
		return
	}
	_, _ = io.WriteString(l.out, style.Render(line[:len(line)-1])+"\n")
}

// degradeLocked reports the loss of persisted history a single time.
func (l *Logger) degradeLocked(err error) {
	if l.degraded {
		return
	}
	l.degraded = true
	fmt.Fprintf(l.out, "%s - WARNING: activity log %s is unavailable (%v); events are shown here only\n",
		l.now().Format(TimeFormat), l.path, err)
}
