// Package feedback defines the user-facing surfaces the store talks to:
// transient toasts and blocking confirmation prompts. Both are injected so
// business logic never reaches into ambient UI state.
package feedback

import (
	"sync"

	"github.com/jwalitptl/notify-hub/pkg/logger"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

type Toast struct {
	Level   Level
	Message string
}

// Toaster receives transient user-facing messages. Dismissal timing is the
// renderer's concern, not the caller's.
type Toaster interface {
	Toast(level Level, message string)
}

// Confirmer gates destructive actions behind a blocking yes/no prompt.
type Confirmer interface {
	Confirm(prompt string) bool
}

// LogToaster renders toasts to the log, for headless use.
type LogToaster struct {
	Logger *logger.Logger
}

func (t *LogToaster) Toast(level Level, message string) {
	switch level {
	case LevelError:
		t.Logger.Error(nil, message)
	case LevelWarning:
		t.Logger.Warn(message)
	default:
		t.Logger.Info(message)
	}
}

// Recorder captures toasts for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *Recorder) Toast(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, Toast{Level: level, Message: message})
}

func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Toast, len(r.toasts))
	copy(out, r.toasts)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = nil
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// AutoConfirm answers every prompt with the given value.
func AutoConfirm(answer bool) Confirmer {
	return ConfirmFunc(func(string) bool { return answer })
}
