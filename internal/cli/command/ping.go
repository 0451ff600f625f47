package command

import (
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridmesh-go/internal/cli/output"
	"github.com/yndnr/gridmesh-go/internal/protocol"
)

// PingCommand pings a set of nodes through the forwarding tree.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:      "ping",
		Usage:     "Ping nodes through the forwarding tree",
		ArgsUsage: "<hostlist>",
		Description: `Sends a ping to every node in the hostlist expression and reports
per-node results, e.g.:

   gridmesh-cli ping 'gm[001-064]'`,
		Action: runPing,
	}
}

func runPing(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: ping <hostlist>", 2)
	}
	nodelist := c.Args().First()

	client, _, err := newClient(c)
	if err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	entries, err := client.SendRecvNodes(c.Context, nodelist,
		protocol.NewMessage(protocol.RequestPing, nil), flags.Timeout)
	if err != nil {
		return err
	}

	table := &output.Table{Headers: []string{"NODE", "STATUS", "CODE"}}
	failed := 0
	for i := range entries {
		e := &entries[i]
		status := "ok"
		rc := ""
		if !e.OK() {
			status = "failed"
			rc = e.ErrCode
			failed++
		} else if body, err := protocol.DecodeReturnCode(e.Body); err == nil {
			rc = strconv.FormatInt(int64(body.RC), 10)
		}
		table.AddRow(e.Node, status, rc)
	}

	if err := render(c, table); err != nil {
		return err
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d nodes failed\n", failed, len(entries))
		return cli.Exit("", 1)
	}
	return nil
}

// render writes a table in the requested output format.
func render(c *cli.Context, table *output.Table) error {
	f, err := output.New(ParseGlobalFlags(c).Output)
	if err != nil {
		return err
	}
	return f.Format(c.App.Writer, table)
}
