package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/itsneelabh/docrouter/agents"
	"github.com/itsneelabh/docrouter/core"
	"github.com/itsneelabh/docrouter/router"
)

type classifyOptions struct {
	metadata string
	threadID string
	compact  bool
}

func newClassifyCmd(g *globalOptions) *cobra.Command {
	opts := &classifyOptions{}

	cmd := &cobra.Command{
		Use:   "classify <file|->",
		Short: "Run the routing pipeline on a local file",
		Long: `Classifies a file (or stdin when the argument is "-"), runs the matching
extractor and prints the result as JSON. The result is also logged to the
configured memory, so a sqlite or redis provider keeps the history.

Logs go to stderr.`,
		Example: `  docrouter classify invoice.json
  docrouter classify --metadata '{"source":"inbox"}' message.eml
  cat report.pdf | docrouter classify -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata := agents.Metadata{}
			if opts.metadata != "" {
				if err := json.Unmarshal([]byte(opts.metadata), &metadata); err != nil {
					return fmt.Errorf("--metadata must be a JSON object: %w", err)
				}
				if metadata == nil {
					metadata = agents.Metadata{}
				}
			}
			if opts.threadID != "" {
				metadata["thread_id"] = opts.threadID
			}

			filename, data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			toStderr := func(c *core.Config) error {
				c.Logging.Output = "stderr"
				return nil
			}
			cfg, logger, err := setup(cmd, g, toStderr)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			mem, err := openMemory(cmd, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer mem.Close()

			pipeline := router.NewPipeline(mem, router.WithLogger(logger))
			result, err := pipeline.ProcessFile(cmd.Context(), filename, data, metadata)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !opts.compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(result)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.metadata, "metadata", "", "metadata JSON object passed to the agents")
	f.StringVar(&opts.threadID, "thread-id", "", "thread to log the result under")
	f.BoolVar(&opts.compact, "compact", false, "print the result on one line")
	return cmd
}

func readInput(cmd *cobra.Command, arg string) (string, []byte, error) {
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", nil, fmt.Errorf("read stdin: %w", err)
		}
		return "", data, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(arg), data, nil
}
