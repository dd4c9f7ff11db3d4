package dashkit

import (
	"errors"
	"fmt"

	"github.com/ccamel/dashkit/internal/util"
	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ConfigFileName is the name of the configuration file looked up in the configuration folder.
const ConfigFileName = "dashctl.yml"

// DefaultSuccessCondition considers a status code 2xx to be successful.
const DefaultSuccessCondition = "response.StatusCode >= 200 and response.StatusCode < 300"

var ErrNoConfiguration = errors.New("no configuration file found")

type Config struct {
	// BaseURL is the origin of the dashboard. Relative endpoint targets are resolved against it.
	BaseURL   string    `yaml:"baseURL" validate:"required,uri,scheme=http|scheme=https"`
	Endpoints Endpoints `yaml:"endpoints"`
	// SuccessCondition is the expression deciding whether a response reports a success.
	SuccessCondition string `yaml:"successCondition" validate:"required"`
	// Session is the path of the file keeping the session cookies. Empty means no persistence.
	Session string `yaml:"session"`
}

type ConfigFactory func() Config

// DefaultConfig targets a dashboard served locally with its stock routes.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:5000",
		Endpoints: Endpoints{
			Login:        "/login",
			Logout:       "/logout",
			DeleteAPIKey: "/apikeys/delete/" + IDPlaceholder,
			ToggleAdmin:  "/users/toggle/" + IDPlaceholder,
			DeleteUser:   "/users/delete/" + IDPlaceholder,
			ResetUser:    "/users/reset/" + IDPlaceholder,
		},
		SuccessCondition: DefaultSuccessCondition,
	}
}

// Validate checks a configuration built in code.
func (c Config) Validate() error {
	return NewValidator().Struct(c)
}

func (c Config) MarshalZerologObject(e *zerolog.Event) {
	e.
		Str("baseURL", c.BaseURL).
		Object("endpoints", c.Endpoints).
		Str("successCondition", c.SuccessCondition).
		Str("session", c.Session)
}

// LoadConfig looks for ConfigFileName in folder and decodes it over the defaults provided by
// configFactory.
func LoadConfig(fs afero.Fs, folder string, configFactory ConfigFactory) (Config, error) {
	in, err := util.OpenResource(fs, folder, ConfigFileName)
	defer func() {
		if in != nil {
			_ = in.Close()
		}
	}()

	if err != nil {
		return Config{}, err
	}

	if in == nil {
		return Config{}, fmt.Errorf("%w: %s in %s", ErrNoConfiguration, ConfigFileName, folder)
	}

	c := configFactory()
	if err := yaml.NewDecoder(in, yaml.Validator(NewValidator())).Decode(&c); err != nil {
		return Config{}, err
	}

	return c, nil
}
