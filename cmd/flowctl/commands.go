package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	app "github.com/kode4food/flowrun"
	"github.com/kode4food/flowrun/pkg/api"
	"github.com/kode4food/flowrun/pkg/builder"
)

type cli struct {
	out     io.Writer
	server  string
	timeout time.Duration
}

const serverEnv = "FLOWRUN_URL"

var (
	ErrReadFlow      = errors.New("failed to read flow file")
	ErrParseFlow     = errors.New("failed to parse flow file")
	ErrParseInput    = errors.New("invalid input JSON")
	ErrUnknownTasks  = errors.New("tasks not registered on server")
	ErrInputConflict = errors.New("--input and --input-file are exclusive")
)

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "flowctl",
		Short:         "Run and inspect flowrun task graphs",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	server := os.Getenv(serverEnv)
	if server == "" {
		server = builder.DefaultServerURL
	}
	root.PersistentFlags().StringVar(&c.server, "server", server,
		"flowrun server URL (env "+serverEnv+")")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout",
		builder.DefaultTimeout, "request timeout")

	root.AddCommand(
		c.runCmd(),
		c.getCmd(),
		c.listCmd(),
		c.tasksCmd(),
		c.validateCmd(),
	)
	return root
}

func (c *cli) runCmd() *cobra.Command {
	var input, inputFile string
	cmd := &cobra.Command{
		Use:   "run <flow-file>",
		Short: "Execute a flow definition and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loadFlow(args[0])
			if err != nil {
				return err
			}
			in, err := loadInput(input, inputFile)
			if err != nil {
				return err
			}
			summary, err := c.client().RunFlow(cmd.Context(), flow, in)
			if summary != nil {
				if perr := c.print(summary); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&input, "input", "",
		"JSON value handed to the start task")
	cmd.Flags().StringVar(&inputFile, "input-file", "",
		"file containing the JSON start input")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <flow-run-id>",
		Short: "Show a flow run and its task runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := c.client().GetFlowRun(
				cmd.Context(), api.FlowRunID(args[0]),
			)
			if err != nil {
				return err
			}
			return c.print(detail)
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent flow runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := c.client().ListFlowRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return c.print(list)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of runs")
	return cmd
}

func (c *cli) tasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks registered on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := c.client().ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(list)
		},
	}
}

func (c *cli) validateCmd() *cobra.Command {
	var checkTasks bool
	cmd := &cobra.Command{
		Use:   "validate <flow-file>",
		Short: "Check a flow definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loadFlow(args[0])
			if err != nil {
				return err
			}
			if err := flow.Validate(); err != nil {
				return err
			}
			if checkTasks {
				list, err := c.client().ListTasks(cmd.Context())
				if err != nil {
					return err
				}
				var missing []string
				for _, name := range flow.TaskNames() {
					if !slices.Contains(list.Tasks, name) {
						missing = append(missing, string(name))
					}
				}
				if len(missing) > 0 {
					return fmt.Errorf("%w: %s",
						ErrUnknownTasks, strings.Join(missing, ", "))
				}
			}
			_, err = fmt.Fprintf(c.out, "flow %q is valid\n", flow.ID)
			return err
		},
	}
	cmd.Flags().BoolVar(&checkTasks, "check-tasks", false,
		"confirm every task is registered on the server")
	return cmd
}

func (c *cli) client() *builder.Client {
	return builder.NewClient(c.server, c.timeout)
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadFlow reads a JSON or YAML flow definition, either bare or wrapped in
// a run request. YAML is converted to JSON first so both forms share the
// same decoding rules
func loadFlow(path string) (*api.FlowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFlow, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseFlow, err)
		}
	}

	if wrapped := gjson.GetBytes(data, "flow"); wrapped.IsObject() {
		data = []byte(wrapped.Raw)
	}

	var flow api.FlowDefinition
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFlow, err)
	}
	return &flow, nil
}

func loadInput(input, inputFile string) (any, error) {
	if input != "" && inputFile != "" {
		return nil, ErrInputConflict
	}
	data := []byte(input)
	if inputFile != "" {
		var err error
		if data, err = os.ReadFile(inputFile); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseInput, err)
		}
	}
	if len(data) == 0 {
		return nil, nil
	}

	var res any
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseInput, err)
	}
	return res, nil
}
