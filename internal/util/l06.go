package util

import (
	"net/http"
	"time"

	"github.com/motemen/go-loghttp"
	"github.com/motemen/go-nuts/roundtime"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tcnksm/go-httpstat"
)

const (
	HeaderContentType   = "Content-Type"
	HeaderRequestedWith = "X-Requested-With"
	HeaderCookie        = "Cookie"
	HeaderSetCookie     = "Set-Cookie"

	MediaTypeJSON           = "application/json"
	MediaTypeTextPlain      = "text/plain"
	MediaTypeTextHTML       = "text/html; charset=utf-8"
	MediaTypeFormURLEncoded = "application/x-www-form-urlencoded"

	// XMLHttpRequest is the marker value sent by script-initiated requests.
	XMLHttpRequest = "XMLHttpRequest"
)

const redacted = "<redacted>"

// LoggerFunc turns a function into an a zerolog marshaller.
type LoggerFunc func(e *zerolog.Event)

// MarshalZerologObject makes the LoggerFunc type a LogObjectMarshaler.
func (f LoggerFunc) MarshalZerologObject(e *zerolog.Event) {
	f(e)
}

func ResultToLogObjectMarshaller(result *httpstat.Result) zerolog.LogObjectMarshaler {
	return LoggerFunc(func(e *zerolog.Event) {
		e.
			Dur("dns-lookup", result.DNSLookup).
			Dur("tcp-connection", result.TCPConnection).
			Dur("server-processing", result.ServerProcessing).
			Dur("connect", result.Connect).
			Dur("start-transfer", result.StartTransfer)
	})
}

// HTTPHeaderToLogObjectMarshaller logs the given headers, session material excepted.
func HTTPHeaderToLogObjectMarshaller(h http.Header) zerolog.LogObjectMarshaler {
	return LoggerFunc(func(e *zerolog.Event) {
		for k, v := range h {
			switch http.CanonicalHeaderKey(k) {
			case HeaderCookie, HeaderSetCookie:
				e.Str(k, redacted)
			default:
				e.Strs(k, v)
			}
		}
	})
}

func RequestToLogObjectMarshaller(req *http.Request) zerolog.LogObjectMarshaler {
	return LoggerFunc(func(e *zerolog.Event) {
		if req != nil {
			e.
				Str("url", req.URL.String()).
				Str("method", req.Method).
				Bool("programmatic", req.Header.Get(HeaderRequestedWith) == XMLHttpRequest).
				Object("headers", HTTPHeaderToLogObjectMarshaller(req.Header))
		}
	})
}

func ResponseToLogObjectMarshaller(resp *http.Response) zerolog.LogObjectMarshaler {
	return LoggerFunc(func(e *zerolog.Event) {
		if resp != nil {
			e.
				Int64("content-length", resp.ContentLength).
				Int("status-code", resp.StatusCode).
				Str("content-type", resp.Header.Get(HeaderContentType)).
				Object("headers", HTTPHeaderToLogObjectMarshaller(resp.Header))

			if resp.Request != nil {
				if start, ok := resp.Request.Context().Value(loghttp.ContextKeyRequestStart).(time.Time); ok {
					e.Dur("duration", roundtime.Duration(time.Since(start), 2))
				}
			}
		}
	})
}

func MapToLogObjectMarshaller(m map[string]string) zerolog.LogObjectMarshaler {
	return LoggerFunc(func(e *zerolog.Event) {
		for k, v := range m {
			e.Str(k, v)
		}
	})
}

// HTTPRequestLogger is a convenient higher-order function which returns a function ready to be used as
// parameter for LogRequest field of loghttp.Transport.
func HTTPRequestLogger() func(request *http.Request) {
	return func(request *http.Request) {
		log.
			Ctx(request.Context()).
			Debug().
			Object("request", RequestToLogObjectMarshaller(request)).
			Msgf("📤 %s %s", request.Method, request.URL)
	}
}

// HTTPResponseLogger is a convenient higher-order function which returns a function ready to be used as
// parameter for LogResponse field of loghttp.Transport.
func HTTPResponseLogger(result *httpstat.Result) func(response *http.Response) {
	return func(response *http.Response) {
		log.Ctx(response.Request.Context()).
			Debug().
			Object("response", ResponseToLogObjectMarshaller(response)).
			Object("stats", ResultToLogObjectMarshaller(result)).
			Msgf("📥 %d %s", response.StatusCode, response.Request.URL)
	}
}
