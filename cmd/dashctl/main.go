// Command dashctl performs the administrative actions of the auth-service dashboard from a
// terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/ccamel/dashkit/pkg/dashkit"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	exitOK = iota
	exitFailure
	exitUsage
)

const usageText = `Usage: dashctl [flags] <command> [arguments]

Commands:
  login <username>         open a session (password from -password or DASHCTL_PASSWORD)
  logout                   close the session
  copy-key <id>            copy the API key given with -text
  delete-key <id>          delete an API key
  toggle-admin <id>        promote or demote a user
  delete <id> <username>   delete a user
  reset <id> <username>    request a password reset link (-copy to copy it)
  actions                  list the dispatchable actions

Flags:
`

// host gathers what the command reads from and writes to.
type host struct {
	fs        afero.Fs
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	getenv    func(string) string
	clipboard dashkit.Clipboard
}

type options struct {
	configDir string
	baseURL   string
	session   string
	password  string
	text      string
	debug     bool
	yes       bool
	copy      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, host{
		fs:        afero.NewOsFs(),
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		getenv:    os.Getenv,
		clipboard: dashkit.CommandClipboard{Fallback: os.Stdout},
	}, os.Args[1:])
	stop()
	os.Exit(code)
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}

	return filepath.Join(dir, "dashctl")
}

func parseFlags(h host, args []string) (options, []string, error) {
	var opts options

	flags := flag.NewFlagSet("dashctl", flag.ContinueOnError)
	flags.SetOutput(h.stderr)
	flags.Usage = func() {
		_, _ = fmt.Fprint(h.stderr, usageText)
		flags.PrintDefaults()
	}

	flags.StringVar(&opts.configDir, "config", defaultConfigDir(), "Folder holding "+dashkit.ConfigFileName)
	flags.StringVar(&opts.baseURL, "url", "", "Dashboard base URL, overrides the configuration")
	flags.StringVar(&opts.session, "session", "", "Session file, overrides the configuration")
	flags.StringVar(&opts.password, "password", "", "Password used by login")
	flags.StringVar(&opts.text, "text", "", "Key text used by copy-key")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&opts.yes, "yes", false, "Do not ask for confirmation")
	flags.BoolVar(&opts.copy, "copy", false, "Copy the reset link requested by reset")

	if err := flags.Parse(args); err != nil {
		return opts, nil, err
	}

	if flags.NArg() == 0 {
		flags.Usage()
		return opts, nil, flag.ErrHelp
	}

	return opts, flags.Args(), nil
}

func loadConfig(h host, opts options, logger zerolog.Logger) (dashkit.Config, error) {
	config, err := dashkit.LoadConfig(h.fs, opts.configDir, dashkit.DefaultConfig)
	if errors.Is(err, dashkit.ErrNoConfiguration) {
		logger.Debug().Str("folder", opts.configDir).Msg("🗒 no configuration found, using defaults")
		config, err = dashkit.DefaultConfig(), nil
	}
	if err != nil {
		return config, err
	}

	if opts.baseURL != "" {
		config.BaseURL = opts.baseURL
	}

	switch {
	case opts.session != "":
		config.Session = opts.session
	case config.Session == "":
		config.Session = filepath.Join(opts.configDir, "session.yml")
	}

	logger.Debug().Object("configuration", config).Msg("🗒 configuration loaded")

	return config, nil
}

func run(ctx context.Context, h host, args []string) int {
	opts, rest, err := parseFlags(h, args)
	if err != nil {
		return exitUsage
	}

	level := zerolog.InfoLevel
	if opts.debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: h.stderr}).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	ctx = logger.WithContext(ctx)

	config, err := loadConfig(h, opts, logger)
	if err != nil {
		logger.Error().Err(err).Msg("❌ invalid configuration")
		return exitFailure
	}

	area := dashkit.NewMessageArea()
	notifier := dashkit.NewNotifier(dashkit.MultiToaster(area, dashkit.ConsoleToaster{Out: h.stdout}))
	navigator := &consoleNavigator{out: h.stdout}

	client, err := dashkit.NewClient(config,
		dashkit.WithLogger(logger),
		dashkit.WithNotifier(notifier),
		dashkit.WithNavigator(navigator),
		dashkit.WithSessionStore(dashkit.NewFileSessionStore(h.fs, config.Session)))
	if err != nil {
		logger.Error().Err(err).Msg("❌ client unavailable")
		return exitFailure
	}

	var prompter dashkit.Prompter = &dashkit.LinePrompter{In: h.stdin, Out: h.stdout}
	if opts.yes {
		prompter = dashkit.AlwaysConfirm
	}

	view := newConsoleView(h.stdout)
	dispatcher := dashkit.NewDispatcher(client, notifier,
		dashkit.WithView(view),
		dashkit.WithPrompter(prompter),
		dashkit.WithClipboard(h.clipboard))

	command, arguments := rest[0], rest[1:]

	switch command {
	case "login":
		return login(ctx, h, client, opts, arguments)
	case "logout":
		if err := client.Logout(ctx); err != nil {
			logger.Error().Err(err).Msg("❌ logout failed")
			return exitFailure
		}
		return exitOK
	case "actions":
		for _, action := range dispatcher.Actions() {
			_, _ = fmt.Fprintln(h.stdout, action)
		}
		return exitOK
	}

	cmd := dashkit.Command{Action: command}
	if len(arguments) > 0 {
		cmd.TargetID = arguments[0]
	}
	if len(arguments) > 1 {
		cmd.Username = arguments[1]
	}
	if command == dashkit.ActionCopyKey {
		view.AddKey(cmd.TargetID, opts.text)
	}

	if err := dispatcher.Dispatch(ctx, cmd); err != nil {
		logger.Error().Err(err).Msg("❌ cannot dispatch")
		return exitUsage
	}

	if command == dashkit.ActionResetPassword && opts.copy {
		_ = dispatcher.Dispatch(ctx, dashkit.Command{Action: dashkit.ActionCopyResetLink})
	}

	return exitCode(area)
}

func login(ctx context.Context, h host, client *dashkit.Client, opts options, arguments []string) int {
	if len(arguments) != 1 {
		_, _ = fmt.Fprintln(h.stderr, "login expects a username")
		return exitUsage
	}

	password := opts.password
	if password == "" {
		password = h.getenv("DASHCTL_PASSWORD")
	}

	if err := client.Login(ctx, arguments[0], password); err != nil {
		client.Notifier().Notify(err.Error(), dashkit.SeverityDanger)
		return exitFailure
	}

	client.Notifier().Notify(fmt.Sprintf("Logged in as %s", arguments[0]), dashkit.SeveritySuccess)

	return exitOK
}

// exitCode reflects the last message shown: anything but a success is a failure.
func exitCode(area *dashkit.MessageArea) int {
	msg, visible := area.Current()
	if visible && msg.Severity != dashkit.SeveritySuccess {
		return exitFailure
	}

	return exitOK
}
