// rollcage-ctl pokes a running rollcage over its control socket. Bind it to
// global hotkeys in the window manager:
//
//	bindsym $mod+a exec rollcage-ctl auto
//	bindsym $mod+s exec rollcage-ctl chunk
//	bindsym $mod+q exec rollcage-ctl line /leap on
package main

import (
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"rollcage/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath(), "Control socket of the running rollcage")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: rollcage-ctl [--socket PATH] auto|chunk|line TEXT...\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() == 0 {
		cli.Usage()
		os.Exit(2)
	}

	msg := ipc.ControlMessage{
		Cmd:  cli.Arg(0),
		Text: strings.Join(cli.Args()[1:], " "),
	}
	if err := ipc.SendCommand(*socket, msg); err != nil {
		fmt.Fprintln(os.Stderr, "rollcage not running:", err)
		os.Exit(1)
	}
}
