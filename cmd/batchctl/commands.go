package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ekaya-inc/ekaya-batch/pkg/client"
	batchsql "github.com/ekaya-inc/ekaya-batch/pkg/sql"
)

func runCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Send a script and print the result of its last successful statement",
		ArgsUsage: "[script.sql|-]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Aliases: []string{"u"},
				Usage:   "base URL of the batch server",
				Sources: cli.EnvVars("BATCH_URL"),
				Value:   "http://127.0.0.1:8055",
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "query endpoint path",
				Value: client.DefaultPath,
			},
			&cli.StringFlag{
				Name:    "token",
				Aliases: []string{"t"},
				Usage:   "bearer token",
				Sources: cli.EnvVars("BATCH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "params",
				Aliases: []string{"p"},
				Usage:   "JSON file holding an object or array of parameters",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "request timeout",
				Value: 5 * time.Minute,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := clientConfig(cmd)
			if err != nil {
				return err
			}
			cfg.BaseURL = cmd.String("url")
			cfg.Path = cmd.String("path")
			cfg.Token = cmd.String("token")
			cfg.Timeout = cmd.Duration("timeout")

			script, err := readScript(cmd)
			if err != nil {
				return err
			}
			params, err := readParams(cmd.String("params"))
			if err != nil {
				return err
			}

			data, err := client.New(cfg).RunRaw(ctx, script, params)
			if err != nil {
				return err
			}
			return printJSON(cmd.Root().Writer, data)
		},
	}
}

func encodeCmd() *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "Print the query field that run would send",
		ArgsUsage: "[script.sql|-]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := clientConfig(cmd)
			if err != nil {
				return err
			}
			script, err := readScript(cmd)
			if err != nil {
				return err
			}
			out, err := client.New(cfg).Prepare(script)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, out)
			return err
		},
	}
}

func clientConfig(cmd *cli.Command) (client.Config, error) {
	encodingName := cmd.String("encoding")
	if cmd.Bool("deflate") {
		encodingName = string(batchsql.EncodingDeflate)
	}
	enc, err := batchsql.ParseEncoding(encodingName)
	if err != nil {
		return client.Config{}, err
	}
	markers, err := batchsql.ParseMarkerProtocol(cmd.String("markers"))
	if err != nil {
		return client.Config{}, err
	}
	return client.Config{
		Encoding:      enc,
		Markers:       markers,
		EncodeMarkers: cmd.Bool("encode-markers"),
	}, nil
}

// readScript reads the file named by the first argument, or stdin when it
// is missing or "-".
func readScript(cmd *cli.Command) (string, error) {
	name := cmd.Args().First()
	if name == "" || name == "-" {
		data, err := io.ReadAll(cmd.Root().Reader)
		if err != nil {
			return "", fmt.Errorf("failed to read script from stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(data), nil
}

func readParams(path string) (batchsql.Parameters, error) {
	var params batchsql.Parameters
	if path == "" {
		return params, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("failed to read parameters: %w", err)
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return params, nil
}

func printJSON(w io.Writer, data json.RawMessage) error {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
