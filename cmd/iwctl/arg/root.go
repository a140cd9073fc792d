package arg

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"github.com/SoarinFerret/IdleWarden/internal/ipc"
)

var sessionBus bool

var rootCmd = &cobra.Command{
	Use:   "iwctl",
	Short: "iwctl is the command line tool for IdleWarden",
	Long: `iwctl talks to the IdleWarden daemon over D-Bus.
You can use it to list console sessions, inspect a user's history,
expire a session, or send a message to a user's open tabs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&sessionBus, "session-bus", false, "connect to the session bus instead of the system bus")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// call invokes a daemon method and stores its reply into ret.
func call(method string, ret []interface{}, args ...interface{}) error {
	var (
		conn *dbus.Conn
		err  error
	)
	if sessionBus {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer conn.Close()

	obj := conn.Object(ipc.ServiceName, dbus.ObjectPath(ipc.ObjectPath))
	if err := obj.Call(ipc.InterfaceName+"."+method, 0, args...).Store(ret...); err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	return nil
}
