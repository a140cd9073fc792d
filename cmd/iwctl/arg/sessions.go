package arg

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/IdleWarden/internal/gateway"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List live console sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var jsonResult string
		if err := call("ListSessions", []interface{}{&jsonResult}); err != nil {
			return err
		}

		var infos []gateway.SessionInfo
		if err := json.Unmarshal([]byte(jsonResult), &infos); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		printSessions(os.Stdout, infos, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func printSessions(out io.Writer, infos []gateway.SessionInfo, now time.Time) {
	if len(infos) == 0 {
		fmt.Fprintln(out, "No live sessions")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tROUTE\tSTATE\tEXPIRES IN")
	for _, info := range infos {
		expires := "-"
		if info.Monitor.State.Armed() {
			expires = formatDuration(info.Monitor.ExpiryAt.Sub(now))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", info.ID, info.User, info.Monitor.Route, info.Monitor.State, expires)
	}
	w.Flush()
}
