// Package dashtest serves a fake dashboard reproducing the HTTP contract of the real one:
// form login with a session cookie, HTML login page for anonymous requests, JSON answers for
// the administrative actions.
package dashtest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/ccamel/dashkit/internal/util"
	"github.com/justinas/alice"
	"github.com/phayes/freeport"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const sessionCookie = "session"

const loginPage = `<!doctype html>
<html><head><title>Sign in</title></head>
<body><form method="post" action="/login">%s
<input name="username"><input name="password" type="password">
<button type="submit">Login</button></form></body></html>`

type User struct {
	ID       int
	Username string
	Password string
	IsAdmin  bool
}

// Dashboard is a running fake dashboard.
type Dashboard struct {
	mu       sync.Mutex
	listener net.Listener
	url      string
	nextID   int
	users    map[int]*User
	keys     map[int]string
	sessions map[string]int
	resets   map[string]string
	requests []*http.Request
}

// Start serves a new dashboard on a free local port. It knows a single admin, "admin" with
// password "adminpass", whose id is 1.
func Start() (*Dashboard, error) {
	port, err := freeport.GetFreePort()
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		listener: listener,
		url:      fmt.Sprintf("http://127.0.0.1:%d", port),
		users:    map[int]*User{},
		keys:     map[int]string{},
		sessions: map[string]int{},
		resets:   map[string]string{},
	}
	d.AddUser("admin", "adminpass", true)

	go func() {
		_ = http.Serve(listener, d.Handler())
	}()

	return d, nil
}

func (d *Dashboard) URL() string { return d.url }

func (d *Dashboard) Close() error { return d.listener.Close() }

// Handler is the dashboard handler chain.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", d.login)
	mux.HandleFunc("/logout", d.logout)
	mux.Handle("/dashboard", d.guarded(http.HandlerFunc(d.dashboard)))
	mux.Handle("/apikeys/delete/", d.guarded(d.action(d.deleteKey)))
	mux.Handle("/users/toggle/", d.guarded(d.action(d.toggleAdmin)))
	mux.Handle("/users/delete/", d.guarded(d.action(d.deleteUser)))
	mux.Handle("/users/reset/", d.guarded(d.action(d.resetPassword)))

	return alice.
		New(
			hlog.NewHandler(log.Logger.With().Str("component", "dashtest").Logger()),
			hlog.RequestIDHandler("req-id", "Request-Id"),
			d.recordHandler,
		).
		Then(mux)
}

func (d *Dashboard) AddUser(username, password string, isAdmin bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	d.users[d.nextID] = &User{ID: d.nextID, Username: username, Password: password, IsAdmin: isAdmin}

	return d.nextID
}

// AddKey registers a new API key and returns its id and value.
func (d *Dashboard) AddKey() (int, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	key := token()
	d.keys[d.nextID] = key

	return d.nextID, key
}

func (d *Dashboard) User(id int) (User, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[id]
	if !ok {
		return User{}, false
	}

	return *u, true
}

func (d *Dashboard) HasKey(id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.keys[id]

	return ok
}

// ResetFor returns the username a reset token was issued for.
func (d *Dashboard) ResetFor(tok string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	username, ok := d.resets[tok]

	return username, ok
}

// Requests returns the requests received so far.
func (d *Dashboard) Requests() []*http.Request {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*http.Request(nil), d.requests...)
}

func (d *Dashboard) recordHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.requests = append(d.requests, r.Clone(r.Context()))
		d.mu.Unlock()

		hlog.FromRequest(r).Debug().Object("request", util.RequestToLogObjectMarshaller(r)).Msg("⚙️ received")

		next.ServeHTTP(w, r)
	})
}

func (d *Dashboard) currentUser(r *http.Request) (*User, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.sessions[cookie.Value]
	if !ok {
		return nil, false
	}

	u, ok := d.users[id]

	return u, ok
}

// guarded sends anonymous requests to the login page.
func (d *Dashboard) guarded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := d.currentUser(r); !ok {
			http.Redirect(w, r, "/login?next="+r.URL.Path, http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// action checks the method and the admin flag, then hands the trailing id to h.
func (d *Dashboard) action(h func(w http.ResponseWriter, r *http.Request, current *User, id int)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{"error": "Method not allowed"})
			return
		}

		current, _ := d.currentUser(r)
		if !current.IsAdmin {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{"error": "Forbidden"})
			return
		}

		id, err := strconv.Atoi(r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		if err != nil {
			http.NotFound(w, r)
			return
		}

		h(w, r, current, id)
	})
}

func (d *Dashboard) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeHTML(w, http.StatusOK, fmt.Sprintf(loginPage, ""))
		return
	}

	username, password := r.PostFormValue("username"), r.PostFormValue("password")

	d.mu.Lock()
	var found *User
	for _, u := range d.users {
		if u.Username == username && u.Password == password {
			found = u
		}
	}
	var session string
	if found != nil {
		session = token()
		d.sessions[session] = found.ID
	}
	d.mu.Unlock()

	if found == nil {
		writeHTML(w, http.StatusOK, fmt.Sprintf(loginPage, "<p>Invalid credentials</p>"))
		return
	}

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: session, Path: "/", HttpOnly: true})
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (d *Dashboard) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		d.mu.Lock()
		delete(d.sessions, cookie.Value)
		d.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (d *Dashboard) dashboard(w http.ResponseWriter, r *http.Request) {
	current, _ := d.currentUser(r)
	if !current.IsAdmin {
		writeHTML(w, http.StatusForbidden, "Forbidden")
		return
	}

	writeHTML(w, http.StatusOK, "<!doctype html><html><body><h1>API keys</h1></body></html>")
}

func (d *Dashboard) deleteKey(w http.ResponseWriter, _ *http.Request, _ *User, id int) {
	d.mu.Lock()
	_, ok := d.keys[id]
	delete(d.keys, id)
	d.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "API key not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": id})
}

func (d *Dashboard) toggleAdmin(w http.ResponseWriter, _ *http.Request, _ *User, id int) {
	d.mu.Lock()
	var toggled User
	u, ok := d.users[id]
	if ok {
		u.IsAdmin = !u.IsAdmin
		toggled = *u
	}
	d.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "User not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "username": toggled.Username, "is_admin": toggled.IsAdmin})
}

func (d *Dashboard) deleteUser(w http.ResponseWriter, _ *http.Request, current *User, id int) {
	d.mu.Lock()
	_, ok := d.users[id]
	self := id == current.ID
	if ok && !self {
		delete(d.users, id)
	}
	d.mu.Unlock()

	switch {
	case !ok:
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "User not found"})
	case self:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "You cannot delete yourself"})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

func (d *Dashboard) resetPassword(w http.ResponseWriter, _ *http.Request, _ *User, id int) {
	d.mu.Lock()
	u, ok := d.users[id]
	tok := token()
	if ok {
		d.resets[tok] = u.Username
	}
	d.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "User not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"reset_url": d.url + "/reset/" + tok})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set(util.HeaderContentType, util.MediaTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set(util.HeaderContentType, util.MediaTypeTextHTML)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func token() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}

	return hex.EncodeToString(b)
}
