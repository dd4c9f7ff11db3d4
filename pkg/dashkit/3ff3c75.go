package dashkit

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"sync"
)

// Navigator sends the operator to another location, the login page typically.
type Navigator interface {
	Navigate(location string)
}

type NavigatorFunc func(location string)

func (f NavigatorFunc) Navigate(location string) { f(location) }

// RecordingNavigator remembers every visited location.
type RecordingNavigator struct {
	mu        sync.Mutex
	locations []string
}

func (n *RecordingNavigator) Navigate(location string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.locations = append(n.locations, location)
}

func (n *RecordingNavigator) Locations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.locations...)
}

// Prompter asks the operator to confirm a destructive action.
type Prompter interface {
	Confirm(question string) bool
}

type PrompterFunc func(question string) bool

func (f PrompterFunc) Confirm(question string) bool { return f(question) }

// AlwaysConfirm accepts every question.
var AlwaysConfirm = PrompterFunc(func(string) bool { return true })

// LinePrompter asks on Out and reads the answer, one line, on In. Only "y" and "yes" confirm.
type LinePrompter struct {
	In  io.Reader
	Out io.Writer

	once   sync.Once
	reader *bufio.Reader
}

func (p *LinePrompter) Confirm(question string) bool {
	p.once.Do(func() { p.reader = bufio.NewReader(p.In) })

	_, _ = fmt.Fprintf(p.Out, "%s [y/N] ", question)

	answer, err := p.reader.ReadString('\n')
	if err != nil && answer == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

var ErrNoClipboard = errors.New("no clipboard available")

// Clipboard receives copied text.
type Clipboard interface {
	WriteText(text string) error
}

type ClipboardFunc func(text string) error

func (f ClipboardFunc) WriteText(text string) error { return f(text) }

// MemoryClipboard keeps the last copied text.
type MemoryClipboard struct {
	mu   sync.Mutex
	text string
}

func (c *MemoryClipboard) WriteText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.text = text

	return nil
}

func (c *MemoryClipboard) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.text
}

var clipboardCommands = [][]string{
	{"pbcopy"},
	{"wl-copy"},
	{"xclip", "-selection", "clipboard"},
	{"xsel", "--clipboard", "--input"},
	{"clip"},
}

// CommandClipboard pipes the text into the first clipboard tool found on the system and, when
// none is installed, falls back to an OSC 52 escape sequence written on Fallback.
type CommandClipboard struct {
	Fallback io.Writer
	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

func (c CommandClipboard) WriteText(text string) error {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	for _, command := range clipboardCommands {
		path, err := lookPath(command[0])
		if err != nil {
			continue
		}

		cmd := exec.Command(path, command[1:]...)
		cmd.Stdin = strings.NewReader(text)
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s: %w", command[0], err)
		}

		return nil
	}

	if c.Fallback == nil {
		return ErrNoClipboard
	}

	_, err := fmt.Fprintf(c.Fallback, "\x1b]52;c;%s\a", base64.StdEncoding.EncodeToString([]byte(text)))

	return err
}

// View is the page the actions update.
type View interface {
	KeyText(keyID string) (string, bool)
	RemoveKeyRow(keyID string) bool
	SetUserAdmin(userID, username string, isAdmin bool) bool
	RemoveUserRow(userID string) bool
	ShowResetLink(message, link string)
	ResetLink() (string, bool)
}

type UserRow struct {
	ID       string
	Username string
	IsAdmin  bool
}

// AdminMark is the mark displayed in the admin column.
func (u UserRow) AdminMark() string {
	if u.IsAdmin {
		return "✅"
	}
	return "❌"
}

// ToggleLabel is the label of the button toggling the admin flag.
func (u UserRow) ToggleLabel() string {
	if u.IsAdmin {
		return "Demote"
	}
	return "Promote"
}

// Page is an in-memory View.
type Page struct {
	mu           sync.Mutex
	keys         map[string]string
	users        map[string]UserRow
	resetMessage string
	resetLink    string
	resetShown   bool
}

func NewPage() *Page {
	return &Page{
		keys:  map[string]string{},
		users: map[string]UserRow{},
	}
}

func (p *Page) AddKey(keyID, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys[keyID] = text
}

func (p *Page) AddUser(row UserRow) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.users[row.ID] = row
}

// Keys returns the ids of the key rows, sorted.
func (p *Page) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.keys))
	for id := range p.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

func (p *Page) User(userID string) (UserRow, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	row, ok := p.users[userID]

	return row, ok
}

// ResetDialog returns the content of the reset dialog and whether it is shown.
func (p *Page) ResetDialog() (message, link string, shown bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.resetMessage, p.resetLink, p.resetShown
}

func (p *Page) KeyText(keyID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	text, ok := p.keys[keyID]

	return text, ok
}

func (p *Page) RemoveKeyRow(keyID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.keys[keyID]
	delete(p.keys, keyID)

	return ok
}

// SetUserAdmin updates the admin flag of the row. A row missing from the page is created.
func (p *Page) SetUserAdmin(userID, username string, isAdmin bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	row, ok := p.users[userID]
	if !ok {
		row = UserRow{ID: userID}
	}
	if username != "" {
		row.Username = username
	}
	row.IsAdmin = isAdmin
	p.users[userID] = row

	return ok
}

func (p *Page) RemoveUserRow(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.users[userID]
	delete(p.users, userID)

	return ok
}

func (p *Page) ShowResetLink(message, link string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetMessage = message
	p.resetLink = link
	p.resetShown = true
}

func (p *Page) ResetLink() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.resetLink, p.resetShown
}
