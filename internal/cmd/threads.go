package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wirechat/wirechat/client"
)

var (
	threadsOffset int
	threadsLimit  int
	historyGroup  bool
	historyLimit  int

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	unreadStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List conversation threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		threads, err := c.Threads(cmd.Context(), threadsOffset, threadsLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, headerStyle.Render("ID")+"\t"+
			headerStyle.Render("NAME")+"\t"+
			headerStyle.Render("UNREAD")+"\t"+
			headerStyle.Render("LAST ACTIVITY")+"\t"+
			headerStyle.Render("SNIPPET"))
		for _, thread := range threads {
			name := thread.Name
			if thread.IsGroup {
				name = name + " (group)"
			}
			unread := ""
			if thread.UnreadCount > 0 {
				unread = unreadStyle.Render(fmt.Sprintf("%d", thread.UnreadCount))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				idStyle.Render(thread.ID),
				nameStyle.Render(name),
				unread,
				dateStyle.Render(formatTimestamp(thread.Timestamp)),
				thread.Snippet)
		}
		return w.Flush()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "Show recent messages of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		thread := client.UserThread(args[0])
		if historyGroup {
			thread = client.GroupThread(args[0])
		}
		messages, err := c.ThreadHistory(cmd.Context(), thread, 0, historyLimit)
		if err != nil {
			return err
		}
		for _, msg := range messages {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
				dateStyle.Render(formatTimestamp(msg.Timestamp)),
				authorStyle.Render(msg.AuthorID+":"),
				msg.Body)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Search for people by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		users, err := c.SearchUsers(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, headerStyle.Render("ID")+"\t"+headerStyle.Render("NAME"))
		for _, user := range users {
			fmt.Fprintf(w, "%s\t%s\n",
				idStyle.Render(user.ID), nameStyle.Render(user.Name))
		}
		return w.Flush()
	},
}

func init() {
	threadsCmd.Flags().IntVar(&threadsOffset, "offset", 0, "Thread list offset")
	threadsCmd.Flags().IntVar(&threadsLimit, "limit", 20, "Maximum threads to list")
	historyCmd.Flags().BoolVarP(&historyGroup, "group", "g", false, "Treat the thread id as a group thread")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum messages to show")
	threadsCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(searchCmd)
}
