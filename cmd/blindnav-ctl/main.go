package main

import (
	"fmt"
	"os"
	"strings"

	cli "github.com/spf13/pflag"

	"blindnav/internal/ipc"
)

const usage = `usage: blindnav-ctl [--socket path] <command> [arg...]

commands:
  double-tap          toggle assistant, re-read text, or report the currency total
  long-press          toggle reading, leave assistant, or reset the currency ledger
  mode <name>         enter navigation, assistant, reading or currency
  capture             capture a currency note now
  total               speak the currency total
  reset               reset the currency ledger
  utter <text>        handle text as if it had been spoken
  status              print the current mode
`

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Control socket path")
	cli.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	reply, err := ipc.Send(*socket, ipc.ControlMessage{
		Cmd: args[0],
		Arg: strings.Join(args[1:], " "),
	})
	if err != nil {
		fmt.Println("blindnav-daemon not running:", err)
		os.Exit(1)
	}
	if !reply.OK {
		fmt.Println("error:", reply.Error)
		os.Exit(1)
	}
	if reply.Detail != "" {
		fmt.Println(reply.Detail)
	}
}
