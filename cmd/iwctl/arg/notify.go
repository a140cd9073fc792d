package arg

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(notifyCmd)
}

var notifyCmd = &cobra.Command{
	Use:   "notify <username> <message>",
	Short: "Send a notification to a user",
	Long:  "Show a custom message in every open console tab of a user",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]
		// If more than 2 args, join them as the message
		message := strings.Join(args[1:], " ")

		if err := call("SendNotification", nil, username, message); err != nil {
			return err
		}
		fmt.Printf("Notification sent to %s: %s\n", username, message)
		return nil
	},
}
