package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/task"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List tasks, entry points and watch bindings",
	Long: `List the configured pipeline: every task with its inputs and destination,
the entry points with their task order and the watch bindings.

Examples:
  assetpipe list                  # Table output
  assetpipe list -o json          # Output as JSON
  assetpipe list -o yaml          # Output as YAML`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var listFormat string

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "output", "o", "table", "Output format (table|json|yaml)")
	addFlagValidation(listCmd.Flags(), "output", func(v string) error {
		return validateChoice(v, []string{"table", "json", "yaml"})
	})
}

// pipelineListing is the machine readable form of list.
type pipelineListing struct {
	Tasks       []taskListing             `json:"tasks" yaml:"tasks"`
	EntryPoints []config.EntryPointConfig `json:"entry_points" yaml:"entry_points"`
	Bindings    []config.BindingConfig    `json:"bindings" yaml:"bindings"`
}

type taskListing struct {
	Name    string   `json:"name" yaml:"name"`
	Kind    string   `json:"kind" yaml:"kind"`
	Inputs  []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Steps   []string `json:"steps,omitempty" yaml:"steps,omitempty"`
	Dest    string   `json:"dest,omitempty" yaml:"dest,omitempty"`
	OnError string   `json:"on_error,omitempty" yaml:"on_error,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	listing := newListing(cfg)
	out := cmd.OutOrStdout()

	switch listFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(listing)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(listing)
	default:
		return writeListingTable(out, listing)
	}
}

func newListing(cfg *config.Config) pipelineListing {
	listing := pipelineListing{
		EntryPoints: cfg.EntryPoints,
		Bindings:    cfg.Watch.Bindings,
	}
	for _, t := range cfg.Tasks {
		tl := taskListing{Name: t.Name, Kind: t.TaskKind(), Inputs: t.Inputs, Dest: t.Dest}
		for _, s := range t.Steps {
			tl.Steps = append(tl.Steps, s.Use)
		}
		if tl.Kind == config.KindPipeline {
			tl.OnError = t.OnError
			if tl.OnError == "" {
				tl.OnError = string(task.PolicyFatal)
			}
		}
		listing.Tasks = append(listing.Tasks, tl)
	}
	return listing
}

func writeListingTable(out io.Writer, listing pipelineListing) error {
	title := cases.Title(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, title.String("tasks"))
	fmt.Fprintln(w, header(title, "name", "kind", "steps", "dest", "on error"))
	for _, t := range listing.Tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.Name, t.Kind, orDash(strings.Join(t.Steps, " > ")), orDash(t.Dest), orDash(t.OnError))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, title.String("entry points"))
	fmt.Fprintln(w, header(title, "name", "tasks"))
	for _, ep := range listing.EntryPoints {
		fmt.Fprintf(w, "%s\t%s\n", ep.Name, strings.Join(ep.Tasks, " > "))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, title.String("watch bindings"))
	fmt.Fprintln(w, header(title, "pattern", "task"))
	for _, b := range listing.Bindings {
		fmt.Fprintf(w, "%s\t%s\n", b.Pattern, b.Task)
	}

	return w.Flush()
}

func header(c cases.Caser, cols ...string) string {
	titled := make([]string, len(cols))
	for i, col := range cols {
		titled[i] = c.String(col)
	}
	return strings.Join(titled, "\t")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
