package dashkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/antonmedv/expr/vm"
	"github.com/ccamel/dashkit/internal/util"
	"github.com/motemen/go-loghttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-httpstat"
)

const (
	MessageLoginRequired    = "⚠️ You must log in first"
	MessageUnexpectedFormat = "Unexpected non-JSON response"
	MessageNetworkError     = "Network error"
)

// loginMarker is looked up, case-insensitively, in non-JSON bodies to recognize a login page.
const loginMarker = "login"

var (
	// ErrLoginRequired reports a response looking like a login page.
	ErrLoginRequired = errors.New("login required")
	// ErrNonJSONResponse reports a response which is neither JSON nor a login page.
	ErrNonJSONResponse = errors.New("unexpected non-JSON response")
)

// RequestError is an application-level failure reported by the dashboard.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string { return e.Message }

func newRequestError(statusCode int, body interface{}) *RequestError {
	if m, ok := body.(map[string]interface{}); ok {
		if msg, ok := m["error"].(string); ok && msg != "" {
			return &RequestError{StatusCode: statusCode, Message: msg}
		}
	}

	return &RequestError{StatusCode: statusCode, Message: fmt.Sprintf("Request failed with %d", statusCode)}
}

// Request describes one JSON request. Method defaults to GET.
type Request struct {
	Method  string
	Headers map[string]string
	Body    string
}

func (r Request) MarshalZerologObject(e *zerolog.Event) {
	e.
		Str("method", r.Method).
		Object("headers", util.MapToLogObjectMarshaller(r.Headers))
}

// Client performs authenticated JSON requests against the dashboard and reports every failure
// through its Notifier.
type Client struct {
	config    Config
	base      *url.URL
	success   *vm.Program
	jar       http.CookieJar
	transport http.RoundTripper
	notifier  *Notifier
	navigator Navigator
	store     SessionStore
	logger    zerolog.Logger
}

type Option func(*Client)

func WithNotifier(n *Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithNavigator sets where the operator is sent when a session is required. nil is ignored.
func WithNavigator(n Navigator) Option {
	return func(c *Client) {
		if n != nil {
			c.navigator = n
		}
	}
}

// WithTransport sets the transport used underneath the logging one.
func WithTransport(t http.RoundTripper) Option {
	return func(c *Client) { c.transport = t }
}

// WithSessionStore makes the session survive the client.
func WithSessionStore(s SessionStore) Option {
	return func(c *Client) { c.store = s }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(config Config, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	success, err := util.CompilePredicateExpression(config.SuccessCondition)
	if err != nil {
		return nil, fmt.Errorf("invalid success condition: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:    config,
		base:      base,
		success:   success,
		jar:       jar,
		notifier:  NewNotifier(nil),
		navigator: NavigatorFunc(func(string) {}),
		logger:    log.Logger.With().Str("component", "dashkit").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.store != nil {
		cookies, err := c.store.Load()
		if err != nil {
			return nil, err
		}
		c.jar.SetCookies(c.base, withRootPath(cookies))
	}

	c.logger.Debug().Object("configuration", config).Msg("🗒 client configured")

	return c, nil
}

// Notifier returns the notifier failures are reported to.
func (c *Client) Notifier() *Notifier { return c.notifier }

// LoginLocation is the absolute location of the login page.
func (c *Client) LoginLocation() string {
	return c.resolve(c.config.Endpoints.Login).String()
}

// EndpointURL returns the absolute URL of the given endpoint for the given target id.
func (c *Client) EndpointURL(key EndpointKey, id string) (string, error) {
	target, err := c.config.Endpoints.Render(key, id)
	if err != nil {
		return "", err
	}

	return c.resolve(target).String(), nil
}

// RequestJSON performs one request and returns the decoded JSON body. The outcome is empty
// (false) whenever the request did not complete; the reason has then already been notified.
// A response looking like a login page additionally navigates to the login location.
func (c *Client) RequestJSON(ctx context.Context, target string, req Request) (interface{}, bool) {
	requestLogger := c.logger.With().Str("target", target).Logger()
	ctx = requestLogger.WithContext(ctx)
	logger := log.Ctx(ctx)

	data, err := c.requestJSON(ctx, target, req)

	switch {
	case err == nil:
		logger.Info().Msg("👍 request succeeded")
		return data, true
	case errors.Is(err, ErrLoginRequired):
		logger.Warn().Msg("🔑 session required")
		c.notifier.Notify(MessageLoginRequired, SeverityWarning)
		c.navigator.Navigate(c.LoginLocation())
	default:
		logger.Error().Err(err).Msg("❌ request failed")
		c.notifier.Notify(failureMessage(err), SeverityDanger)
	}

	return nil, false
}

func failureMessage(err error) string {
	var requestErr *RequestError

	switch {
	case errors.As(err, &requestErr):
		return requestErr.Message
	case errors.Is(err, ErrNonJSONResponse):
		return MessageUnexpectedFormat
	case err.Error() == "":
		return MessageNetworkError
	default:
		return err.Error()
	}
}

func (c *Client) requestJSON(ctx context.Context, target string, req Request) (interface{}, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.resolve(target).String(), body)
	if err != nil {
		return nil, err
	}

	for k, v := range req.Headers {
		request.Header.Set(k, v)
	}
	request.Header.Set(util.HeaderRequestedWith, util.XMLHttpRequest)

	response, err := c.send(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if !isJSON(response.Header.Get(util.HeaderContentType)) {
		text, err := io.ReadAll(response.Body)
		if err != nil {
			return nil, err
		}

		if looksLikeLoginPage(string(text)) {
			return nil, ErrLoginRequired
		}

		return nil, ErrNonJSONResponse
	}

	var data interface{}
	if err := json.NewDecoder(response.Body).Decode(&data); err != nil {
		return nil, err
	}

	succeeded, err := util.EvaluatePredicateExpression(c.success, map[string]interface{}{"response": response})
	if err != nil {
		return nil, err
	}

	if !succeeded {
		return nil, newRequestError(response.StatusCode, data)
	}

	return data, nil
}

// send performs the exchange through a logging transport, keeping the session cookies.
func (c *Client) send(request *http.Request) (*http.Response, error) {
	var result httpstat.Result

	defer func() {
		result.End(time.Now())
	}()

	request = request.WithContext(httpstat.WithHTTPStat(request.Context(), &result))

	client := http.Client{
		Jar: c.jar,
		Transport: &loghttp.Transport{
			LogRequest:  util.HTTPRequestLogger(),
			LogResponse: util.HTTPResponseLogger(&result),
			Transport:   c.transport,
		},
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}

	if len(response.Cookies()) > 0 {
		c.persist(request.Context())
	}

	return response, nil
}

func (c *Client) persist(ctx context.Context) {
	if c.store == nil {
		return
	}

	if err := c.store.Save(c.jar.Cookies(c.base)); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("📓 session not saved")
	}
}

func (c *Client) resolve(target string) *url.URL {
	ref, err := url.Parse(target)
	if err != nil {
		return c.base.ResolveReference(&url.URL{Path: target})
	}

	return c.base.ResolveReference(ref)
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), util.MediaTypeJSON)
}

func looksLikeLoginPage(text string) bool {
	return strings.Contains(strings.ToLower(text), loginMarker)
}

func withRootPath(cookies []*http.Cookie) []*http.Cookie {
	for _, cookie := range cookies {
		if cookie.Path == "" {
			cookie.Path = "/"
		}
	}

	return cookies
}
