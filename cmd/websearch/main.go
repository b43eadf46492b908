// Command websearch answers a question from live web search results.
//
//	websearch run "What is new in Go 1.24?" --config websearch.yaml
//	websearch tools --config websearch.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/bububa/atomic-orchestrator/agents"
	"github.com/bububa/atomic-orchestrator/components"
	"github.com/bububa/atomic-orchestrator/config"
	"github.com/bububa/atomic-orchestrator/schema"
)

// AgentFactory builds the agent from the loaded configuration
type AgentFactory func(cfg *config.Config) (*agents.Agent[schema.OutputRecord], error)

// DefaultAgentFactory wires the configured provider and model
func DefaultAgentFactory(cfg *config.Config) (*agents.Agent[schema.OutputRecord], error) {
	return cfg.NewAgent()
}

type rootFlags struct {
	configPath string
	debug      bool
}

type runFlags struct {
	resultLimit int
	date        string
	json        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(DefaultAgentFactory).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(factory AgentFactory) *cobra.Command {
	flags := new(rootFlags)
	root := &cobra.Command{
		Use:          "websearch",
		Short:        "websearch - answer questions from web search results",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "websearch.yaml", "Path to the YAML config file")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	root.AddCommand(newRunCmd(flags, factory), newToolsCmd(flags, factory))
	return root
}

func newRunCmd(root *rootFlags, factory AgentFactory) *cobra.Command {
	flags := new(runFlags)
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run a web search question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, root, flags, factory, strings.Join(args, " "))
		},
	}
	cmd.Flags().IntVarP(&flags.resultLimit, "result-limit", "n", 0, "Maximum results per search call (defaults to run.result_limit)")
	cmd.Flags().StringVar(&flags.date, "date", "", "Reference date YYYY-MM-DD (defaults to today)")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the answer and run report as JSON")
	return cmd
}

func newToolsCmd(root *rootFlags, factory AgentFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools and their input schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			agent, err := factory(cfg)
			if err != nil {
				return fmt.Errorf("create agent: %w", err)
			}
			w := cmd.OutOrStdout()
			for _, spec := range agent.Registry().Specs() {
				fmt.Fprintf(w, "%s: %s\n", spec.Name, spec.Description)
				bs, err := json.MarshalIndent(spec.InputSchema, "  ", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "  %s\n\n", bs)
			}
			return nil
		},
	}
}

func runQuery(cmd *cobra.Command, root *rootFlags, flags *runFlags, factory AgentFactory, query string) error {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}
	var date time.Time
	if flags.date != "" {
		if date, err = components.ParseDate(flags.date); err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	}
	rc, err := cfg.NewRunContext(flags.resultLimit, date)
	if err != nil {
		return err
	}
	agent, err := factory(cfg)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	ctx := logContext(cmd.Context(), cmd.ErrOrStderr(), root.debug)
	out, report, err := agent.RunWithResponse(ctx, query, rc)
	if err != nil {
		if flags.json {
			writeJSON(cmd.OutOrStdout(), map[string]any{"error": err.Error(), "report": summarize(report)})
		}
		return err
	}
	if flags.json {
		return writeJSON(cmd.OutOrStdout(), map[string]any{"answer": out, "report": summarize(report)})
	}
	_, err = io.WriteString(cmd.OutOrStdout(), out.Markdown())
	return err
}

// summarize drops the transcript from the printed report
func summarize(report *agents.RunReport) *agents.RunReport {
	if report == nil {
		return nil
	}
	ret := *report
	ret.Transcript = nil
	return &ret
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func logContext(ctx context.Context, w io.Writer, debug bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	opts := []log.LogOption{log.WithFormat(format), log.WithOutput(w)}
	if debug {
		opts = append(opts, log.WithDebug())
	}
	return log.Context(ctx, opts...)
}
