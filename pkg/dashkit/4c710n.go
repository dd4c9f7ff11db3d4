package dashkit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Actions bound by the dashboard pages.
const (
	ActionCopyKey       = "copy-key"
	ActionDeleteKey     = "delete-key"
	ActionToggleAdmin   = "toggle-admin"
	ActionDeleteUser    = "delete"
	ActionResetPassword = "reset"
	ActionCopyResetLink = "copy-reset-link"
)

var ErrUnknownAction = errors.New("unknown action")

// Command is an action triggered on a target.
type Command struct {
	Action   string
	TargetID string
	// Username is the name displayed for user targets.
	Username string
}

func (c Command) MarshalZerologObject(e *zerolog.Event) {
	e.
		Str("action", c.Action).
		Str("target", c.TargetID).
		Str("username", c.Username)
}

// Handler performs a command. Failures are reported to the operator, never returned.
type Handler func(ctx context.Context, cmd Command)

// Requester performs the JSON requests of the actions.
type Requester interface {
	EndpointURL(key EndpointKey, id string) (string, error)
	RequestJSON(ctx context.Context, target string, req Request) (interface{}, bool)
}

// Dispatcher maps actions to their handler.
type Dispatcher struct {
	requester Requester
	notifier  *Notifier
	view      View
	prompter  Prompter
	clipboard Clipboard
	handlers  map[string]Handler
}

type DispatcherOption func(*Dispatcher)

func WithView(v View) DispatcherOption {
	return func(d *Dispatcher) { d.view = v }
}

func WithPrompter(p Prompter) DispatcherOption {
	return func(d *Dispatcher) { d.prompter = p }
}

func WithClipboard(c Clipboard) DispatcherOption {
	return func(d *Dispatcher) { d.clipboard = c }
}

func NewDispatcher(requester Requester, notifier *Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		requester: requester,
		notifier:  notifier,
		view:      NewPage(),
		prompter:  AlwaysConfirm,
		clipboard: &MemoryClipboard{},
	}

	for _, opt := range opts {
		opt(d)
	}

	d.handlers = map[string]Handler{
		ActionCopyKey:       d.copyKey,
		ActionDeleteKey:     d.deleteKey,
		ActionToggleAdmin:   d.toggleAdmin,
		ActionDeleteUser:    d.deleteUser,
		ActionResetPassword: d.requestReset,
		ActionCopyResetLink: d.copyResetLink,
	}

	return d
}

// Handle binds (or rebinds) an action.
func (d *Dispatcher) Handle(action string, h Handler) {
	d.handlers[action] = h
}

// Actions lists the bound actions, sorted.
func (d *Dispatcher) Actions() []string {
	actions := make([]string, 0, len(d.handlers))
	for action := range d.handlers {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	return actions
}

// Dispatch runs the handler bound to the command action.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) error {
	h, ok := d.handlers[cmd.Action]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, cmd.Action)
	}

	log.Ctx(ctx).Debug().Object("command", cmd).Msg("⚙️ dispatching")
	h(ctx, cmd)

	return nil
}

func (d *Dispatcher) post(ctx context.Context, key EndpointKey, id string) (map[string]interface{}, bool) {
	target, err := d.requester.EndpointURL(key, id)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("endpoint", string(key)).Msg("❌ endpoint unavailable")
		d.notifier.Notify(err.Error(), SeverityDanger)
		return nil, false
	}

	data, ok := d.requester.RequestJSON(ctx, target, Request{Method: http.MethodPost})
	if !ok || data == nil {
		return nil, false
	}

	payload, _ := data.(map[string]interface{})
	if payload == nil {
		payload = map[string]interface{}{}
	}

	return payload, true
}

func (d *Dispatcher) copyKey(ctx context.Context, cmd Command) {
	text, ok := d.view.KeyText(cmd.TargetID)
	if !ok {
		log.Ctx(ctx).Error().Str("key", cmd.TargetID).Msg("❌ no such key on page")
		d.notifier.Notify("Failed to copy API key", SeverityDanger)
		return
	}

	if err := d.clipboard.WriteText(text); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("❌ copy failed")
		d.notifier.Notify("Failed to copy API key", SeverityDanger)
		return
	}

	d.notifier.Notify("API key copied to clipboard!", SeveritySuccess)
}

func (d *Dispatcher) deleteKey(ctx context.Context, cmd Command) {
	if !d.prompter.Confirm("Delete this API key?") {
		return
	}

	if _, ok := d.post(ctx, EndpointDeleteAPIKey, cmd.TargetID); !ok {
		return
	}

	d.view.RemoveKeyRow(cmd.TargetID)
	d.notifier.Notify("API key deleted", SeveritySuccess)
}

func (d *Dispatcher) toggleAdmin(ctx context.Context, cmd Command) {
	data, ok := d.post(ctx, EndpointToggleAdmin, cmd.TargetID)
	if !ok || !truthy(data["success"]) {
		return
	}

	isAdmin := truthy(data["is_admin"])
	username, _ := data["username"].(string)

	d.view.SetUserAdmin(cmd.TargetID, username, isAdmin)

	role := "User"
	if isAdmin {
		role = "Admin"
	}
	d.notifier.Notify(fmt.Sprintf("User %s is now %s", username, role), SeveritySuccess)
}

func (d *Dispatcher) deleteUser(ctx context.Context, cmd Command) {
	if !d.prompter.Confirm(fmt.Sprintf("Delete user %s?", cmd.Username)) {
		return
	}

	data, ok := d.post(ctx, EndpointDeleteUser, cmd.TargetID)
	if !ok || !truthy(data["success"]) {
		return
	}

	d.view.RemoveUserRow(cmd.TargetID)
	d.notifier.Notify(fmt.Sprintf("User %s deleted", cmd.Username), SeveritySuccess)
}

func (d *Dispatcher) requestReset(ctx context.Context, cmd Command) {
	data, ok := d.post(ctx, EndpointResetUser, cmd.TargetID)
	if !ok {
		return
	}

	link, _ := data["reset_url"].(string)
	if link == "" {
		return
	}

	d.view.ShowResetLink(fmt.Sprintf("Share this reset link with %s:", cmd.Username), link)
}

func (d *Dispatcher) copyResetLink(ctx context.Context, _ Command) {
	link, ok := d.view.ResetLink()
	if !ok {
		log.Ctx(ctx).Debug().Msg("no reset link shown")
		return
	}

	if err := d.clipboard.WriteText(link); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("❌ copy failed")
		d.notifier.Notify("Failed to copy reset link", SeverityDanger)
		return
	}

	d.notifier.Notify("Reset link copied to clipboard!", SeveritySuccess)
}

// truthy mirrors how a JSON value reads as a condition.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
