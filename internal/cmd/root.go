// Package cmd provides the CLI commands for wirechat.
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wirechat/wirechat/client"
	"github.com/wirechat/wirechat/internal/appdir"
	"github.com/wirechat/wirechat/internal/config"
	"github.com/wirechat/wirechat/internal/logging"
	"github.com/wirechat/wirechat/internal/secrets"
)

var (
	// Global flags
	configPath    string
	email         string
	debug         bool
	logLevel      string // --log-level flag (debug, info, warn, error)
	logFile       string
	logComponents string
	sessionFile   string

	// Loaded configuration
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wirechat",
	Short: "Wirechat - a terminal client for Messenger chat",
	Long: `Wirechat is a command-line client for Messenger chat.

It emulates a browser session against the chat service, so it works
with a regular account: log in once, then send messages, browse
threads, and stream incoming events from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help and completion commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		// Ensure the wirechat directory exists before anything writes to it
		if err := appdir.EnsureDir(); err != nil {
			return fmt.Errorf("failed to create wirechat directory: %w", err)
		}

		path := configPath
		if path == "" {
			var pathErr error
			path, pathErr = appdir.ConfigPath()
			if pathErr != nil {
				return fmt.Errorf("failed to resolve config path: %w", pathErr)
			}
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration from %s: %w", path, err)
		}

		// Priority: --log-level flag > --debug flag > config > default (info)
		effectiveLogLevel := cfg.Log.Level
		if logLevel != "" {
			effectiveLogLevel = logLevel
		} else if debug {
			effectiveLogLevel = "debug"
		}
		effectiveLogFile := cfg.Log.File
		if logFile != "" {
			effectiveLogFile = logFile
		}
		components := cfg.Log.Components
		if logComponents != "" {
			components = nil
			for _, c := range strings.Split(logComponents, ",") {
				c = strings.TrimSpace(c)
				if c != "" {
					components = append(components, c)
				}
			}
		}
		logCfg := logging.Config{
			Level:      effectiveLogLevel,
			JSON:       cfg.Log.JSON,
			Components: components,
		}
		if effectiveLogFile != "" {
			logCfg.FileLog = &logging.FileLogConfig{Path: effectiveLogFile}
		}
		if err := logging.Initialize(logCfg); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		// Clean up logging resources
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (defaults to the wirechat directory)")
	rootCmd.PersistentFlags().StringVarP(&email, "email", "e", "", "Account email (required for login, optional once a session is saved)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path (logs are also written to console)")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g., 'auth,channel,event'). Empty means all components.")
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session", "", "Session file path (defaults to the wirechat directory)")
}

// resolveSessionPath returns the session file location, honoring the
// --session flag and the configuration override in that order.
func resolveSessionPath() string {
	if sessionFile != "" {
		return sessionFile
	}
	if cfg != nil && cfg.SessionFile != "" {
		return cfg.SessionFile
	}
	path, err := appdir.SessionPath()
	if err != nil {
		return appdir.SessionFileName
	}
	return path
}

// newClient builds a client from the loaded configuration. The code
// supplier prompts the terminal, so a verification challenge during
// login asks the operator for the code.
func newClient() (*client.Client, error) {
	opts := []client.Option{
		client.WithCodeSupplier(promptCode),
	}
	if cfg != nil {
		opts = append(opts, client.WithUserAgent(cfg.PickUserAgent()))
		if cfg.Timeout > 0 {
			opts = append(opts, client.WithTimeout(cfg.Timeout))
		}
		opts = append(opts, client.WithMaxLoginAttempts(cfg.MaxLoginAttempts))
	}
	return client.New(opts...)
}

// connect restores the saved session, or falls back to a credential
// login when no usable session exists.
func connect(cmd *cobra.Command) (*client.Client, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}

	path := resolveSessionPath()
	if err := c.RestoreSession(cmd.Context(), path); err == nil {
		return c, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Saved session is stale, logging in again.")
	}

	if email == "" {
		return nil, fmt.Errorf("no usable saved session; run \"wirechat login --email <email>\" first")
	}
	if err := c.Login(cmd.Context(), email, lookupPassword(cmd, email)); err != nil {
		return nil, err
	}
	if err := c.SaveSession(path); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return c, nil
}

// lookupPassword fetches the account password from the system secret
// store, prompting the terminal when the store has no entry.
func lookupPassword(cmd *cobra.Command, account string) string {
	if account == "" {
		return ""
	}
	if password, err := secrets.GetPassword(account); err == nil {
		return password
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", account)
	return readLine(cmd)
}

func promptCode() (string, error) {
	fmt.Fprint(os.Stderr, "Verification code: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func readLine(cmd *cobra.Command) string {
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimSpace(line)
}

// formatTimestamp renders a millisecond epoch string for table output.
func formatTimestamp(ms string) string {
	var epoch int64
	if _, err := fmt.Sscan(ms, &epoch); err != nil || epoch == 0 {
		return ""
	}
	return time.UnixMilli(epoch).Format("2006-01-02 15:04")
}
