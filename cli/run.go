package cli

import (
	"bytes"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

// Config is the environment of an embedded goxq command.
type Config struct {
	// Stdin is read when no input file is given; nil reads nothing.
	Stdin io.Reader
	// Stdout and Stderr receive the results and the diagnostics; nil
	// discards them.
	Stdout io.Writer
	Stderr io.Writer
	// Registerer, when set, receives the evaluation metrics of the run.
	Registerer prometheus.Registerer
}

// Run runs the command with args, which exclude the program name, and
// returns the exit code.
func (cfg *Config) Run(args []string) int {
	cli := &cli{
		inStream:   cfg.Stdin,
		outStream:  cfg.Stdout,
		errStream:  cfg.Stderr,
		registerer: cfg.Registerer,
	}
	if cli.inStream == nil {
		cli.inStream = bytes.NewReader(nil)
	}
	if cli.outStream == nil {
		cli.outStream = io.Discard
	}
	if cli.errStream == nil {
		cli.errStream = io.Discard
	}
	return cli.run(args)
}

// Run runs the command with the process arguments and standard streams.
func Run() int {
	return (&Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}).Run(os.Args[1:])
}
