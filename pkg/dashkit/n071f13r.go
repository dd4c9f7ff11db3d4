package dashkit

import (
	"errors"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Severity classifies a notification and drives its styling.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// ErrNoMessageArea is returned by a Toaster when the host provides no place to display messages.
var ErrNoMessageArea = errors.New("message area missing")

// StatusMessage is a transient message shown to the operator.
type StatusMessage struct {
	Text     string
	Severity Severity
}

func (m StatusMessage) MarshalZerologObject(e *zerolog.Event) {
	e.
		Str("text", m.Text).
		Str("severity", string(m.Severity))
}

// Toaster is the UI effect displaying a message. Auto-dismissal, if any, is its own business.
type Toaster interface {
	Show(msg StatusMessage) error
}

// ToasterFunc turns a function into a Toaster.
type ToasterFunc func(msg StatusMessage) error

func (f ToasterFunc) Show(msg StatusMessage) error { return f(msg) }

// MultiToaster shows every message on all the given toasters. It fails with ErrNoMessageArea
// only when none of them could display it.
func MultiToaster(toasters ...Toaster) Toaster {
	return ToasterFunc(func(msg StatusMessage) error {
		shown := false
		for _, t := range toasters {
			if t == nil {
				continue
			}
			if err := t.Show(msg); err == nil {
				shown = true
			}
		}
		if !shown {
			return ErrNoMessageArea
		}
		return nil
	})
}

// Notifier displays short-lived status messages through a Toaster.
type Notifier struct {
	toaster Toaster
}

func NewNotifier(toaster Toaster) *Notifier {
	return &Notifier{toaster: toaster}
}

// Notify shows message with the given severity, SeveritySuccess when empty.
// It never fails: a missing message area is only logged.
func (n *Notifier) Notify(message string, severity Severity) {
	if severity == "" {
		severity = SeveritySuccess
	}

	msg := StatusMessage{Text: message, Severity: severity}

	if n == nil || n.toaster == nil {
		log.Warn().Object("message", msg).Msg("🍞 toast elements missing")
		return
	}

	if err := n.toaster.Show(msg); err != nil {
		log.Warn().Err(err).Object("message", msg).Msg("🍞 toast not shown")
	}
}

// MessageArea is an in-memory message area holding the last message shown.
type MessageArea struct {
	mu      sync.Mutex
	current StatusMessage
	visible bool
	shown   int
}

func NewMessageArea() *MessageArea {
	return &MessageArea{}
}

func (a *MessageArea) Show(msg StatusMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.current = msg
	a.visible = true
	a.shown++

	return nil
}

// Current returns the visible message, if any.
func (a *MessageArea) Current() (StatusMessage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.current, a.visible
}

// Shown counts the messages displayed since creation.
func (a *MessageArea) Shown() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.shown
}

// Dismiss hides the current message.
func (a *MessageArea) Dismiss() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.current = StatusMessage{}
	a.visible = false
}

// ConsoleToaster prints messages on a terminal, colored by severity.
type ConsoleToaster struct {
	Out io.Writer
}

var severityColors = map[Severity]*color.Color{
	SeveritySuccess: color.New(color.FgGreen),
	SeverityWarning: color.New(color.FgYellow),
	SeverityDanger:  color.New(color.FgRed, color.Bold),
}

func (t ConsoleToaster) Show(msg StatusMessage) error {
	if t.Out == nil {
		return ErrNoMessageArea
	}

	c, ok := severityColors[msg.Severity]
	if !ok {
		c = color.New(color.Reset)
	}

	_, err := c.Fprintln(t.Out, msg.Text)

	return err
}
