package arg

import (
	"fmt"

	"github.com/spf13/cobra"
)

var expireCmd = &cobra.Command{
	Use:   "expire <session-id>",
	Short: "Expire a live console session",
	Long:  "Sign the tab out immediately, as if its inactivity timer had run out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call("ExpireSession", nil, args[0]); err != nil {
			return err
		}
		fmt.Printf("Session %s expired\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(expireCmd)
}
