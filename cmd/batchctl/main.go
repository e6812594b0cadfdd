// Command batchctl sends SQL scripts to a batch server.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "batchctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	app := &cli.Command{
		Name:    "batchctl",
		Usage:   "Run SQL scripts against a batch server",
		Version: Version,
		Reader:  stdin,
		Writer:  stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "encoding",
				Usage:   "payload encoding the server expects (plain or deflate)",
				Sources: cli.EnvVars("BATCH_ENCODING"),
				Value:   "plain",
			},
			&cli.StringFlag{
				Name:    "markers",
				Usage:   "marker protocol the server expects (v1 or v2)",
				Sources: cli.EnvVars("BATCH_MARKER_PROTOCOL"),
				Value:   "v1",
			},
			&cli.BoolFlag{
				Name:  "encode-markers",
				Usage: "replace semicolons and newlines inside literals with markers",
			},
			&cli.BoolFlag{
				Name:  "deflate",
				Usage: "shorthand for --encoding deflate",
			},
		},
		Commands: []*cli.Command{
			runCmd(),
			encodeCmd(),
		},
	}
	return app.Run(ctx, args)
}
