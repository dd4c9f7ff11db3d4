package dashkit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ccamel/dashkit/internal/util"
	"github.com/rs/zerolog"
)

// EndpointKey names an endpoint the dashboard exposes.
type EndpointKey string

const (
	EndpointLogin        EndpointKey = "login"
	EndpointLogout       EndpointKey = "logout"
	EndpointDeleteAPIKey EndpointKey = "deleteApiKey"
	EndpointToggleAdmin  EndpointKey = "toggleAdmin"
	EndpointDeleteUser   EndpointKey = "deleteUser"
	EndpointResetUser    EndpointKey = "resetUser"
)

// IDPlaceholder is the token substituted by the target id in endpoint targets.
const IDPlaceholder = "__ID__"

var ErrUnknownEndpoint = errors.New("unknown endpoint")

// Endpoints enumerates the recognized endpoints and their targets. Targets are relative to the
// base URL and may reference the target id either with IDPlaceholder or with `{{ .id }}`.
type Endpoints struct {
	Login        string `yaml:"login" validate:"required"`
	Logout       string `yaml:"logout"`
	DeleteAPIKey string `yaml:"deleteApiKey" validate:"required"`
	ToggleAdmin  string `yaml:"toggleAdmin" validate:"required"`
	DeleteUser   string `yaml:"deleteUser" validate:"required"`
	ResetUser    string `yaml:"resetUser" validate:"required"`
}

// Target returns the raw target of the given endpoint.
func (e Endpoints) Target(key EndpointKey) (string, bool) {
	var target string

	switch key {
	case EndpointLogin:
		target = e.Login
	case EndpointLogout:
		target = e.Logout
	case EndpointDeleteAPIKey:
		target = e.DeleteAPIKey
	case EndpointToggleAdmin:
		target = e.ToggleAdmin
	case EndpointDeleteUser:
		target = e.DeleteUser
	case EndpointResetUser:
		target = e.ResetUser
	}

	return target, target != ""
}

// Render returns the target of the given endpoint for the given id.
func (e Endpoints) Render(key EndpointKey, id string) (string, error) {
	target, ok := e.Target(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEndpoint, key)
	}

	target = strings.ReplaceAll(target, IDPlaceholder, "{{ urlPathEscape .id }}")

	out, err := util.RenderString(string(key), target, map[string]interface{}{"id": id})
	if err != nil {
		return "", fmt.Errorf("rendering endpoint %s: %w", key, err)
	}

	return out, nil
}

func (e Endpoints) MarshalZerologObject(ev *zerolog.Event) {
	ev.Object("targets", util.MapToLogObjectMarshaller(map[string]string{
		string(EndpointLogin):        e.Login,
		string(EndpointLogout):       e.Logout,
		string(EndpointDeleteAPIKey): e.DeleteAPIKey,
		string(EndpointToggleAdmin):  e.ToggleAdmin,
		string(EndpointDeleteUser):   e.DeleteUser,
		string(EndpointResetUser):    e.ResetUser,
	}))
}
