package command

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridmesh-go/pkg/hostlist"
)

// ForwardCommand pushes a data blob to a set of nodes.
func ForwardCommand() *cli.Command {
	return &cli.Command{
		Name:      "forward-data",
		Usage:     "Forward a data blob to nodes through the tree",
		ArgsUsage: "<hostlist> <address>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Read the payload from a file instead of stdin",
			},
		},
		Description: `Reads a payload from stdin (or --file) and delivers it to every node
in the hostlist, tagged with a destination address the receiving relay
hands the payload to, e.g.:

   gridmesh-cli forward-data 'gm[001-064]' /run/grid/epilog.env < payload`,
		Action: runForward,
	}
}

func runForward(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("usage: forward-data <hostlist> <address>", 2)
	}
	nodelist := c.Args().Get(0)
	address := c.Args().Get(1)

	data, err := readPayload(c.String("file"))
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	client, _, err := newClient(c)
	if err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	failed, err := client.ForwardData(c.Context, nodelist, address, data, flags.Timeout)
	if err != nil {
		return err
	}

	total, _ := hostlist.Count(nodelist)
	if failed != "" {
		nfailed, _ := hostlist.Count(failed)
		fmt.Fprintf(c.App.Writer, "delivered to %d of %d nodes, failed: %s\n",
			total-nfailed, total, failed)
		return cli.Exit("", 1)
	}

	fmt.Fprintf(c.App.Writer, "delivered to %d nodes\n", total)
	return nil
}

func readPayload(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
