package dashkit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/ccamel/dashkit/internal/dashtest"
	. "github.com/smartystreets/goconvey/convey"
)

type dispatchEnv struct {
	dashboard *dashtest.Dashboard
	area      *MessageArea
	navigator *RecordingNavigator
	page      *Page
	clipboard *MemoryClipboard
	questions []string
	answer    bool
}

func (e *dispatchEnv) confirm(question string) bool {
	e.questions = append(e.questions, question)
	return e.answer
}

// arrangeDispatcher returns a dispatcher bound to a fake dashboard, logged in when login is set.
func arrangeDispatcher(login bool) (*Dispatcher, *dispatchEnv, func()) {
	dashboard, config, closer := arrangeDashboard()

	env := &dispatchEnv{
		dashboard: dashboard,
		area:      NewMessageArea(),
		navigator: &RecordingNavigator{},
		page:      NewPage(),
		clipboard: &MemoryClipboard{},
		answer:    true,
	}

	notifier := NewNotifier(env.area)
	client, err := NewClient(config, WithNotifier(notifier), WithNavigator(env.navigator))
	So(err, ShouldBeNil)

	if login {
		So(client.Login(context.Background(), "admin", "adminpass"), ShouldBeNil)
	}

	d := NewDispatcher(client, notifier,
		WithView(env.page),
		WithPrompter(PrompterFunc(env.confirm)),
		WithClipboard(env.clipboard))

	return d, env, closer
}

func TestDispatchKeys(t *testing.T) {
	Convey("Considering a dispatcher on the API keys page", t, func(c C) {
		d, env, closer := arrangeDispatcher(true)
		defer closer()

		keyID, key := env.dashboard.AddKey()
		id := strconv.Itoa(keyID)
		env.page.AddKey(id, key)

		Convey("When copying a key", func(c C) {
			So(d.Dispatch(context.Background(), Command{Action: ActionCopyKey, TargetID: id}), ShouldBeNil)

			Convey("Then the key shall be in the clipboard", func(c C) {
				So(env.clipboard.Text(), ShouldEqual, key)

				msg, _ := env.area.Current()
				So(msg, ShouldResemble, StatusMessage{Text: "API key copied to clipboard!", Severity: SeveritySuccess})
			})
		})

		Convey("When copying a key while the clipboard fails", func(c C) {
			WithClipboard(ClipboardFunc(func(string) error { return ErrNoClipboard }))(d)
			So(d.Dispatch(context.Background(), Command{Action: ActionCopyKey, TargetID: id}), ShouldBeNil)

			Convey("Then the failure shall be notified", func(c C) {
				msg, _ := env.area.Current()
				So(msg, ShouldResemble, StatusMessage{Text: "Failed to copy API key", Severity: SeverityDanger})
			})
		})

		Convey("When copying a key absent from the page", func(c C) {
			So(d.Dispatch(context.Background(), Command{Action: ActionCopyKey, TargetID: "404"}), ShouldBeNil)

			Convey("Then the failure shall be notified", func(c C) {
				So(env.clipboard.Text(), ShouldEqual, "")

				msg, _ := env.area.Current()
				So(msg.Severity, ShouldEqual, SeverityDanger)
			})
		})

		Convey("When deleting a key", func(c C) {
			So(d.Dispatch(context.Background(), Command{Action: ActionDeleteKey, TargetID: id}), ShouldBeNil)

			Convey("Then it shall be gone from the dashboard and the page", func(c C) {
				So(env.questions, ShouldResemble, []string{"Delete this API key?"})
				So(env.dashboard.HasKey(keyID), ShouldBeFalse)
				So(env.page.Keys(), ShouldBeEmpty)

				msg, _ := env.area.Current()
				So(msg, ShouldResemble, StatusMessage{Text: "API key deleted", Severity: SeveritySuccess})
			})
		})

		Convey("When the deletion is not confirmed", func(c C) {
			env.answer = false
			So(d.Dispatch(context.Background(), Command{Action: ActionDeleteKey, TargetID: id}), ShouldBeNil)

			Convey("Then nothing shall happen", func(c C) {
				So(env.dashboard.HasKey(keyID), ShouldBeTrue)
				So(env.page.Keys(), ShouldResemble, []string{id})
				So(env.area.Shown(), ShouldEqual, 0)
			})
		})

		Convey("When deleting a key unknown to the dashboard", func(c C) {
			env.page.AddKey("999", "stale")
			So(d.Dispatch(context.Background(), Command{Action: ActionDeleteKey, TargetID: "999"}), ShouldBeNil)

			Convey("Then the page shall be left untouched", func(c C) {
				So(env.page.Keys(), ShouldContain, "999")

				msg, _ := env.area.Current()
				So(msg, ShouldResemble, StatusMessage{Text: "API key not found", Severity: SeverityDanger})
			})
		})
	})
}

func TestDispatchUsers(t *testing.T) {
	Convey("Considering a dispatcher on the users page", t, func(c C) {
		d, env, closer := arrangeDispatcher(true)
		defer closer()

		userID := env.dashboard.AddUser("bob", "bobpass", false)
		id := strconv.Itoa(userID)
		env.page.AddUser(UserRow{ID: id, Username: "bob"})

		Convey("When toggling the admin flag", func(c C) {
			So(d.Dispatch(context.Background(), Command{Action: ActionToggleAdmin, TargetID: id}), ShouldBeNil)

			Convey("Then the user shall be promoted", func(c C) {
				u, _ := env.dashboard.User(userID)
				So(u.IsAdmin, ShouldBeTrue)

				row, _ := env.page.User(id)
				So(row.IsAdmin, ShouldBeTrue)
				So(row.AdminMark(), ShouldEqual, "✅")
				So(row.ToggleLabel(), ShouldEqual, "Demote")

				msg, _ := env.area.Current()
				So(msg, ShouldResemble, StatusMessage{Text: "User bob is now Admin", Severity: SeveritySuccess})
			})

			Convey("And toggling again shall demote the user", func(c C) {
				So(d.Dispatch(context.Background(), Command{Action: ActionToggleAdmin, TargetID: id}), ShouldBeNil)

				row, _ := env.page.User(id)
				So(row.IsAdmin, ShouldBeFalse)
				So(row.ToggleLabel(), ShouldEqual, "Promote")

				msg, _ := env.area.Current()
				So(msg.Text, ShouldEqual, "User bob is now User")
			})
		})

		Convey("When deleting the user", func(c C) {
			So(d.Dispatch(context.Background(), Command{Action: ActionDeleteUser, TargetID: id, Username: "bob"}), ShouldBeNil)

			Convey("Then the user shall be gone", func(c C) {
				So(env.questions, ShouldResemble, []string{"Delete user bob?"})

				_, exists := env.dashboard.User(userID)
				So(exists, ShouldBeFalse)

				_, shown := env.page.User(id)
				So(shown, ShouldBeFalse)

				msg, _ := env.area.Current()
				So(msg, ShouldResemble, StatusMessage{Text: "User bob deleted", Severity: SeveritySuccess})
			})
		})

		Convey("When deleting oneself", func(c C) {
			env.page.AddUser(UserRow{ID: "1", Username: "admin", IsAdmin: true})
			So(d.Dispatch(context.Background(), Command{Action: ActionDeleteUser, TargetID: "1", Username: "admin"}), ShouldBeNil)

			Convey("Then the refusal shall be notified and the row kept", func(c C) {
				_, shown := env.page.User("1")
				So(shown, ShouldBeTrue)

				msg, _ := env.area.Current()
				So(msg, ShouldResemble, StatusMessage{Text: "You cannot delete yourself", Severity: SeverityDanger})
			})
		})

		Convey("When requesting a password reset", func(c C) {
			So(d.Dispatch(context.Background(), Command{Action: ActionResetPassword, TargetID: id, Username: "bob"}), ShouldBeNil)

			Convey("Then the reset link shall be shown", func(c C) {
				message, link, shown := env.page.ResetDialog()
				So(shown, ShouldBeTrue)
				So(message, ShouldEqual, "Share this reset link with bob:")
				So(link, ShouldStartWith, env.dashboard.URL()+"/reset/")

				username, ok := env.dashboard.ResetFor(strings.TrimPrefix(link, env.dashboard.URL()+"/reset/"))
				So(ok, ShouldBeTrue)
				So(username, ShouldEqual, "bob")
			})

			Convey("And copying the link shall put it in the clipboard", func(c C) {
				So(d.Dispatch(context.Background(), Command{Action: ActionCopyResetLink}), ShouldBeNil)

				_, link, _ := env.page.ResetDialog()
				So(env.clipboard.Text(), ShouldEqual, link)

				msg, _ := env.area.Current()
				So(msg, ShouldResemble, StatusMessage{Text: "Reset link copied to clipboard!", Severity: SeveritySuccess})
			})
		})

		Convey("When copying the reset link before any reset", func(c C) {
			So(d.Dispatch(context.Background(), Command{Action: ActionCopyResetLink}), ShouldBeNil)

			Convey("Then nothing shall happen", func(c C) {
				So(env.clipboard.Text(), ShouldEqual, "")
				So(env.area.Shown(), ShouldEqual, 0)
			})
		})
	})
}

func TestDispatchWithoutSession(t *testing.T) {
	Convey("Considering a dispatcher whose client is not logged in", t, func(c C) {
		d, env, closer := arrangeDispatcher(false)
		defer closer()

		userID := env.dashboard.AddUser("carol", "carolpass", false)
		id := strconv.Itoa(userID)
		env.page.AddUser(UserRow{ID: id, Username: "carol"})

		for _, action := range []string{ActionToggleAdmin, ActionDeleteUser, ActionResetPassword} {
			Convey(fmt.Sprintf("When dispatching %s", action), func(c C) {
				So(d.Dispatch(context.Background(), Command{Action: action, TargetID: id, Username: "carol"}), ShouldBeNil)

				Convey("Then the page shall be left untouched and the operator sent to login", func(c C) {
					row, shown := env.page.User(id)
					So(shown, ShouldBeTrue)
					So(row.IsAdmin, ShouldBeFalse)

					_, _, dialog := env.page.ResetDialog()
					So(dialog, ShouldBeFalse)

					msg, _ := env.area.Current()
					So(msg, ShouldResemble, StatusMessage{Text: MessageLoginRequired, Severity: SeverityWarning})
					So(env.navigator.Locations(), ShouldResemble, []string{env.dashboard.URL() + "/login"})
				})
			})
		}
	})
}

func TestDispatcher(t *testing.T) {
	Convey("Considering a dispatcher", t, func(c C) {
		client, err := NewClient(DefaultConfig())
		So(err, ShouldBeNil)

		d := NewDispatcher(client, client.Notifier())

		Convey("When listing the actions", func(c C) {
			Convey("Then every page action shall be bound", func(c C) {
				So(d.Actions(), ShouldResemble, []string{
					ActionCopyKey, ActionCopyResetLink, ActionDeleteUser, ActionDeleteKey, ActionResetPassword, ActionToggleAdmin,
				})
			})
		})

		Convey("When dispatching an unknown action", func(c C) {
			err := d.Dispatch(context.Background(), Command{Action: "explode"})

			Convey("Then the action shall be reported unknown", func(c C) {
				So(errors.Is(err, ErrUnknownAction), ShouldBeTrue)
			})
		})

		Convey("When binding a new action", func(c C) {
			var got Command
			d.Handle("ping", func(_ context.Context, cmd Command) { got = cmd })

			So(d.Dispatch(context.Background(), Command{Action: "ping", TargetID: "7"}), ShouldBeNil)

			Convey("Then its handler shall be called", func(c C) {
				So(got.TargetID, ShouldEqual, "7")
				So(d.Actions(), ShouldContain, "ping")
			})
		})
	})
}

type stubRequester struct {
	data interface{}
	ok   bool
}

func (r stubRequester) EndpointURL(key EndpointKey, id string) (string, error) {
	return DefaultConfig().Endpoints.Render(key, id)
}

func (r stubRequester) RequestJSON(context.Context, string, Request) (interface{}, bool) {
	return r.data, r.ok
}

func TestDispatchEmptyPayload(t *testing.T) {
	Convey("Considering a dispatcher whose requests answer a null body", t, func(c C) {
		area := NewMessageArea()
		page := NewPage()
		page.AddKey("5", "c0ffee")
		page.AddUser(UserRow{ID: "7", Username: "bob"})

		d := NewDispatcher(stubRequester{data: nil, ok: true}, NewNotifier(area), WithView(page))

		for _, cmd := range []Command{
			{Action: ActionDeleteKey, TargetID: "5"},
			{Action: ActionToggleAdmin, TargetID: "7"},
			{Action: ActionDeleteUser, TargetID: "7", Username: "bob"},
			{Action: ActionResetPassword, TargetID: "7", Username: "bob"},
		} {
			Convey(fmt.Sprintf("When dispatching %s", cmd.Action), func(c C) {
				So(d.Dispatch(context.Background(), cmd), ShouldBeNil)

				Convey("Then neither the page nor the message area shall change", func(c C) {
					So(page.Keys(), ShouldResemble, []string{"5"})

					user, found := page.User("7")
					So(found, ShouldBeTrue)
					So(user.IsAdmin, ShouldBeFalse)

					_, shown := page.ResetLink()
					So(shown, ShouldBeFalse)
					So(area.Shown(), ShouldEqual, 0)
				})
			})
		}
	})
}

func TestTruthy(t *testing.T) {
	Convey("Considering the truthy() function", t, func(c C) {
		cases := []struct {
			value    interface{}
			expected bool
		}{
			{nil, false},
			{false, false},
			{true, true},
			{"", false},
			{"yes", true},
			{float64(0), false},
			{float64(3), true},
			{map[string]interface{}{}, true},
		}

		for n, tc := range cases {
			Convey(fmt.Sprintf("When evaluating %#v (case %d)", tc.value, n), func(c C) {
				So(truthy(tc.value), ShouldEqual, tc.expected)
			})
		}
	})
}
