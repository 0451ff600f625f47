package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridmesh-go/internal/protocol"
)

// ControllerCommand talks to the cluster controller.
func ControllerCommand() *cli.Command {
	return &cli.Command{
		Name:  "controller",
		Usage: "Controller operations",
		Subcommands: []*cli.Command{
			{
				Name:   "ping",
				Usage:  "Ping the active controller, following failover and reroute",
				Action: runControllerPing,
			},
		},
	}
}

func runControllerPing(c *cli.Context) error {
	client, _, err := newClient(c)
	if err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	rc, err := client.SendRecvControllerRC(c.Context,
		protocol.NewMessage(protocol.RequestPing, nil), flags.Timeout)
	if err != nil {
		return err
	}

	if rc != protocol.RCSuccess {
		fmt.Fprintf(c.App.Writer, "controller answered with code %d\n", rc)
		return cli.Exit("", 1)
	}
	fmt.Fprintln(c.App.Writer, "controller ok")
	return nil
}
