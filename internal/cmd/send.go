package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wirechat/wirechat/client"
)

var (
	sendToGroup bool
	sendImage   string
	sendLike    string
)

var sendCmd = &cobra.Command{
	Use:   "send <thread-id> [text...]",
	Short: "Send a message to a user or group thread",
	Long: `Send a text message, an image, or a thumbs-up to a thread.

The thread id is the other person's user id, or the group thread id
when --group is given. Use "wirechat threads" to find thread ids.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}

		thread := client.UserThread(args[0])
		if sendToGroup {
			thread = client.GroupThread(args[0])
		}
		body := strings.Join(args[1:], " ")

		var messageID string
		switch {
		case sendLike != "":
			messageID, err = c.SendLike(cmd.Context(), thread, client.LikeSize(sendLike))
		case sendImage != "" && strings.Contains(sendImage, "://"):
			messageID, err = c.SendRemoteImage(cmd.Context(), thread, sendImage, body)
		case sendImage != "":
			messageID, err = c.SendLocalImage(cmd.Context(), thread, sendImage, body)
		case body != "":
			messageID, err = c.SendText(cmd.Context(), thread, body)
		default:
			return fmt.Errorf("nothing to send: give message text, --image, or --like")
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", messageID)
		return nil
	},
}

func init() {
	sendCmd.Flags().BoolVarP(&sendToGroup, "group", "g", false, "Treat the thread id as a group thread")
	sendCmd.Flags().StringVar(&sendImage, "image", "", "Image to attach: a local path or an http(s) URL")
	sendCmd.Flags().StringVar(&sendLike, "like", "", "Send a thumbs-up instead of text: small, medium, or large")
	rootCmd.AddCommand(sendCmd)
}
