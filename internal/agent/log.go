package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zgeoff/decree/internal/domain"
)

// SessionLogger creates per-session log files under a configured
// directory (§4.H step 9, §6 "Session log files"). A nil *SessionLogger
// disables logging entirely; Open always returns a non-nil error in that
// case so callers treat it uniformly.
type SessionLogger struct {
	dir string
	now func() time.Time
}

// NewSessionLogger returns a SessionLogger writing under dir. now is
// injected for deterministic tests; pass time.Now in production.
func NewSessionLogger(dir string, now func() time.Time) *SessionLogger {
	return &SessionLogger{dir: dir, now: now}
}

type sessionLogWriter struct {
	f    *os.File
	path string
}

// Open creates a new log file named <epochMs>-<role>[-<workItemID>].log.
func (s *SessionLogger) Open(role domain.AgentRole, sessionID, workItemID string) (*sessionLogWriter, error) {
	if s == nil {
		return nil, fmt.Errorf("session logging disabled")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	name := fmt.Sprintf("%d-%s", s.now().UnixMilli(), role)
	if workItemID != "" {
		name += "-" + workItemID
	}
	name += ".log"
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create session log %s: %w", path, err)
	}
	return &sessionLogWriter{f: f, path: path}, nil
}

func (w *sessionLogWriter) Path() string { return w.path }

func (w *sessionLogWriter) Header(role domain.AgentRole, sessionID string) {
	fmt.Fprintf(w.f, "=== session %s role=%s ===\n", sessionID, role)
}

func (w *sessionLogWriter) Entry(msg SessionMessage) {
	switch msg.Kind {
	case MessageText:
		fmt.Fprintf(w.f, "[text] %s\n", msg.Text)
	case MessageToolUse:
		fmt.Fprintf(w.f, "[tool_use] %s\n", msg.ToolName)
	case MessageToolProgress:
		fmt.Fprintf(w.f, "[tool_progress] %s\n", msg.ToolName)
	case MessageSystemInit:
		fmt.Fprintf(w.f, "[system_init]\n")
	case MessageStructuredOut:
		fmt.Fprintf(w.f, "[structured_output] %s\n", string(msg.StructuredOutput))
	}
}

func (w *sessionLogWriter) Footer(outcome string) {
	fmt.Fprintf(w.f, "=== outcome=%s ===\n", outcome)
}

func (w *sessionLogWriter) Close() error {
	return w.f.Close()
}
