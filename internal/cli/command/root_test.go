package command

import (
	"flag"
	"testing"

	"github.com/urfave/cli/v2"
)

// TestApp verifies the application wires up its commands.
func TestApp(t *testing.T) {
	app := App()

	if app.Name != "gridmesh-cli" {
		t.Errorf("expected app name 'gridmesh-cli', got %q", app.Name)
	}

	want := []string{"ping", "forward-data", "controller", "endpoints"}
	for _, name := range want {
		found := false
		for _, cmd := range app.Commands {
			if cmd.Name == name {
				found = true
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

// TestParseGlobalFlags verifies flag extraction.
func TestParseGlobalFlags(t *testing.T) {
	set := flag.NewFlagSet("test", 0)
	set.String("config", "/etc/gridmesh/config.yaml", "")
	set.String("output", "json", "")
	set.Duration("timeout", 0, "")
	set.Bool("verbose", true, "")

	ctx := cli.NewContext(App(), set, nil)
	flags := ParseGlobalFlags(ctx)

	if flags.Config != "/etc/gridmesh/config.yaml" {
		t.Errorf("unexpected config path: %q", flags.Config)
	}
	if flags.Output != "json" {
		t.Errorf("unexpected output format: %q", flags.Output)
	}
	if !flags.Verbose {
		t.Error("expected verbose to be set")
	}
}

// TestHelpDoesNotError verifies help output renders.
func TestHelpDoesNotError(t *testing.T) {
	app := App()
	app.Writer = discard{}
	if err := app.Run([]string{"gridmesh-cli", "--help"}); err != nil {
		t.Errorf("help failed: %v", err)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
