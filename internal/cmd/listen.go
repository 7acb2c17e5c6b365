package cmd

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wirechat/wirechat/event"
	"github.com/wirechat/wirechat/internal/appdir"
	"github.com/wirechat/wirechat/internal/config"
	"github.com/wirechat/wirechat/internal/logging"
)

var (
	markAlive bool

	authorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	threadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream incoming chat events to the terminal",
	Long: `Listen connects to the chat event channel and prints incoming
messages and thread activity until interrupted with Ctrl-C.

Configuration changes are picked up live: editing the config file
while listening adjusts the log level without a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		c.Subscribe(event.KindMessage, func(ev event.Event) {
			msg := ev.(event.MessageReceived)
			target := msg.AuthorID
			if msg.Recipient == event.RecipientGroup {
				target = msg.AuthorID + " in " + msg.RecipientID
			}
			fmt.Fprintf(out, "%s %s\n", authorStyle.Render(target+":"), msg.Body)
		})
		c.Subscribe(event.KindTitleChange, func(ev event.Event) {
			change := ev.(event.TitleChanged)
			fmt.Fprintln(out, systemStyle.Render(fmt.Sprintf(
				"%s renamed %s to %q", change.AuthorID,
				threadStyle.Render(change.ThreadID), change.NewTitle)))
		})
		c.Subscribe(event.KindColorChange, func(ev event.Event) {
			change := ev.(event.ColorChanged)
			fmt.Fprintln(out, systemStyle.Render(fmt.Sprintf(
				"%s changed the chat color to %s", change.AuthorID, change.NewColor)))
		})
		c.Subscribe(event.KindPeopleAdded, func(ev event.Event) {
			added := ev.(event.ParticipantsAdded)
			fmt.Fprintln(out, systemStyle.Render(fmt.Sprintf(
				"%s added %s to %s", added.AuthorID,
				strings.Join(added.AddedIDs, ", "),
				threadStyle.Render(added.ThreadID))))
		})
		c.Subscribe(event.KindPersonRemoved, func(ev event.Event) {
			removed := ev.(event.ParticipantRemoved)
			fmt.Fprintln(out, systemStyle.Render(fmt.Sprintf(
				"%s left %s", removed.RemovedID,
				threadStyle.Render(removed.ThreadID))))
		})
		c.Subscribe(event.KindSeen, func(ev event.Event) {
			seen := ev.(event.SeenReceipt)
			fmt.Fprintln(out, systemStyle.Render(fmt.Sprintf(
				"%s saw %s", seen.SeenBy, threadStyle.Render(seen.ThreadID))))
		})

		// Reload logging settings when the config file changes under us.
		watchPath := configPath
		if watchPath == "" {
			watchPath, err = appdir.ConfigPath()
			if err != nil {
				return err
			}
		}
		watcher, err := config.NewWatcher(watchPath, func(updated *config.Config) {
			logCfg := logging.Config{
				Level:      updated.Log.Level,
				JSON:       updated.Log.JSON,
				Components: updated.Log.Components,
			}
			if updated.Log.File != "" {
				logCfg.FileLog = &logging.FileLogConfig{Path: updated.Log.File}
			}
			if err := logging.Initialize(logCfg); err != nil {
				logging.Get().Warn("config reload failed", "error", err)
			}
		}, logging.Get())
		if err != nil {
			logging.Get().Warn("config watcher unavailable", "error", err)
		} else {
			watcher.Start()
			defer watcher.Close()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Fprintln(out, systemStyle.Render("Listening, press Ctrl-C to stop."))
		return c.Listen(ctx, markAlive)
	},
}

func init() {
	listenCmd.Flags().BoolVar(&markAlive, "mark-alive", true, "Report presence while listening")
	rootCmd.AddCommand(listenCmd)
}
