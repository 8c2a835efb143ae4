package app

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// ErrAlreadyRunning is returned by Start on a running App.
var ErrAlreadyRunning = errors.New("app: already running")

// InitError describes a component that failed to initialize.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// logNotifier surfaces supervisor notifications through the logger.
// The original client popped dialogs; a headless client logs.
type logNotifier struct {
	logger *log.Logger
}

func (n *logNotifier) Error(msg string) {
	n.logger.Error(msg)
}

func (n *logNotifier) Info(msg string) {
	n.logger.Info(msg)
}
