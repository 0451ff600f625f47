package command

import (
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/gridmesh-go/internal/cli/output"
	"github.com/yndnr/gridmesh-go/internal/config"
	"github.com/yndnr/gridmesh-go/internal/infra/confloader"
	"github.com/yndnr/gridmesh-go/internal/locator"
)

// EndpointsCommand lists the controller endpoints in connection order.
func EndpointsCommand() *cli.Command {
	return &cli.Command{
		Name:   "endpoints",
		Usage:  "List controller endpoints in the order they are tried",
		Action: runEndpoints,
	}
}

func runEndpoints(c *cli.Context) error {
	flags := ParseGlobalFlags(c)

	cfg := config.Default()
	opts := []confloader.Option{}
	if flags.Config != "" {
		opts = append(opts, confloader.WithConfigFile(flags.Config))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return err
	}
	if err := config.Verify(cfg); err != nil {
		return err
	}

	cluster := locator.ClusterFromConfig(&cfg.Controller)
	table := &output.Table{Headers: []string{"ORDER", "HOST", "PORT", "ROLE"}}
	for i, ep := range cluster.Endpoints() {
		role := "backup"
		if i == 0 {
			if cluster.VIP != "" {
				role = "vip"
			} else {
				role = "primary"
			}
		}
		table.AddRow(strconv.Itoa(i), ep.Host, strconv.Itoa(ep.Port), role)
	}

	return render(c, table)
}
