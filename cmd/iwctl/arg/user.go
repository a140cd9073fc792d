package arg

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SoarinFerret/IdleWarden/internal/ipc"
)

var userCmd = &cobra.Command{
	Use:   "user <username>",
	Short: "Show detailed status for a user",
	Long:  `Display live console tabs, recent session history and expiry counts for a user`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var jsonResult string
		if err := call("GetUserStatus", []interface{}{&jsonResult}, args[0]); err != nil {
			return err
		}

		var status ipc.UserStatus
		if err := json.Unmarshal([]byte(jsonResult), &status); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		printUserStatus(os.Stdout, status, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
}

func printUserStatus(out io.Writer, status ipc.UserStatus, now time.Time) {
	fmt.Fprintf(out, "User: %s\n", status.User)
	fmt.Fprintln(out, "="+strings.Repeat("=", len(status.User)+5))
	fmt.Fprintf(out, "Connected tabs: %d\n", status.Connected)
	fmt.Fprintf(out, "Expiries in the last 24h: %d\n", status.Expiries24)

	if len(status.Live) > 0 {
		fmt.Fprintf(out, "\nLive Sessions (%d):\n", len(status.Live))
		printSessions(out, status.Live, now)
	} else {
		fmt.Fprintln(out, "\nNo live sessions")
	}

	if len(status.Sessions) == 0 {
		return
	}
	fmt.Fprintf(out, "\nHistory (%d):\n", len(status.Sessions))
	for _, rec := range status.Sessions {
		fmt.Fprintf(out, "  Session: %s\n", rec.SessionId)
		fmt.Fprintf(out, "    Started: %s\n", rec.StartTime.Local().Format("2006-01-02 15:04:05"))
		if rec.IsActive() {
			fmt.Fprintln(out, "    Status: Connected")
		} else {
			fmt.Fprintf(out, "    Ended: %s (%s)\n", rec.EndTime.Local().Format("2006-01-02 15:04:05"), rec.EndReason)
		}
		fmt.Fprintf(out, "    Armed time: %s\n", formatDuration(rec.ArmedDuration(now)))
		if rec.Warnings > 0 || rec.Extensions > 0 {
			fmt.Fprintf(out, "    Warnings: %d, stayed signed in: %d\n", rec.Warnings, rec.Extensions)
		}
		if rec.Expired {
			fmt.Fprintln(out, "    Expired for inactivity")
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	} else if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
