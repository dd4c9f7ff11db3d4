package main

import (
	"fmt"
	"io"

	"github.com/ccamel/dashkit/pkg/dashkit"
)

type consoleNavigator struct {
	out io.Writer
}

func (n *consoleNavigator) Navigate(location string) {
	_, _ = fmt.Fprintf(n.out, "Session required: run `dashctl login <username>` (login page: %s)\n", location)
}

// consoleView is a page echoing the changes worth showing on a terminal.
type consoleView struct {
	*dashkit.Page
	out io.Writer
}

func newConsoleView(out io.Writer) *consoleView {
	return &consoleView{Page: dashkit.NewPage(), out: out}
}

func (v *consoleView) SetUserAdmin(userID, username string, isAdmin bool) bool {
	existed := v.Page.SetUserAdmin(userID, username, isAdmin)

	row, _ := v.Page.User(userID)
	_, _ = fmt.Fprintf(v.out, "%s %s (admin: %s)\n", row.ID, row.Username, row.AdminMark())

	return existed
}

func (v *consoleView) ShowResetLink(message, link string) {
	v.Page.ShowResetLink(message, link)

	_, _ = fmt.Fprintf(v.out, "%s\n%s\n", message, link)
}
