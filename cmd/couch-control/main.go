// couch-control streams this desktop to a phone or tablet browser on the
// LAN and injects the pointer and keyboard commands sent back.
//
//	couch-control start [--config F] [-p port] [-q quality] [-f fps] [-s scale] [--pin P]
//	couch-control stop | status | ip | config | version
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const defaultPIDFile = "/tmp/couch-control.pid"

// exitError carries a non-zero exit status without an error message.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func (e exitError) ExitCode() int { return int(e) }

type command struct {
	name    string
	summary string
	run     func(env *env, args []string) error
}

// env is what commands print to, replaceable in tests.
type env struct {
	stdout io.Writer
	stderr io.Writer
}

func commands() []command {
	return []command{
		{"start", "Start the server", runStart},
		{"stop", "Stop the running server", runStop},
		{"status", "Report whether the server is running", runStatus},
		{"ip", "Show the LAN address clients should open", runIP},
		{"config", "Show config search paths and effective settings", runConfig},
		{"version", "Print the version", runVersion},
	}
}

func main() {
	if err := run(&env{stdout: os.Stdout, stderr: os.Stderr}, os.Args[1:]); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(e *env, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(e.stdout)
		return nil
	}
	if args[0] == "--version" {
		return runVersion(e, nil)
	}
	for _, c := range commands() {
		if c.name == args[0] {
			if err := c.run(e, args[1:]); !errors.Is(err, errHelpShown) {
				return err
			}
			return nil
		}
	}
	printUsage(e.stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

// parseFlags parses a command's flags. --help prints the flag usage and
// yields errHelpShown, which run turns into a clean exit.
func parseFlags(e *env, fs *pflag.FlagSet, args []string) error {
	fs.SetOutput(e.stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelpShown
		}
		return err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return nil
}

var errHelpShown = errors.New("help shown")

func printUsage(w io.Writer) {
	fmt.Fprint(w, `couch-control - lightweight remote desktop control for the couch

Usage:
  couch-control <command> [flags]

Commands:
`)
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprint(w, `
Examples:
  couch-control start              # start with the configured settings
  couch-control start --port 9090  # start on another port
  couch-control start --pin 1234   # require a PIN
  couch-control stop
  couch-control ip
`)
}
