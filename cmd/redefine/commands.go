package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/redefine/internal/descriptor"
	"github.com/standardbeagle/redefine/internal/display"
	"github.com/standardbeagle/redefine/internal/fingerprint"
	"github.com/standardbeagle/redefine/internal/redefine"
	"github.com/standardbeagle/redefine/internal/types"
	"github.com/standardbeagle/redefine/pkg/pathutil"
)

// typeSummary is the inspect output of one class file.
type typeSummary struct {
	File        string   `json:"file"`
	Name        string   `json:"name"`
	Synthetic   bool     `json:"synthetic"`
	Enclosing   string   `json:"enclosing,omitempty"`
	Nested      []string `json:"nested,omitempty"`
	Methods     []string `json:"methods"`
	Fields      []string `json:"fields"`
	Super       string   `json:"super,omitempty"`
	Interfaces  []string `json:"interfaces,omitempty"`
	NestedCount int      `json:"nested_count"`
	Digest      string   `json:"digest"`
}

func inspectCommand(c *cli.Context) error {
	defs, err := readClasses(c.Args().Slice())
	if err != nil {
		return err
	}

	summaries := make([]typeSummary, 0, len(defs))
	for i, b := range defs {
		s, err := fingerprint.Summarize(b)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Args().Get(i), err)
		}
		fp := s.Fingerprint
		summaries = append(summaries, typeSummary{
			File:        c.Args().Get(i),
			Name:        s.Name,
			Synthetic:   types.IsSynthetic(s.Name),
			Enclosing:   fp.Enclosing.String(),
			Nested:      s.Nested,
			Methods:     memberStrings(fp.Methods),
			Fields:      memberStrings(fp.Fields),
			Super:       fp.Super,
			Interfaces:  fp.Interfaces,
			NestedCount: fp.NestedCount,
			Digest:      fmt.Sprintf("%016x", fp.Digest()),
		})
	}

	if c.Bool("json") {
		return writeJSON(c.App.Writer, summaries)
	}
	for _, s := range summaries {
		fmt.Fprintf(c.App.Writer, "%s (%s)\n", s.Name, s.File)
		if s.Enclosing != "" {
			fmt.Fprintf(c.App.Writer, "  enclosing: %s\n", s.Enclosing)
		}
		if len(s.Nested) > 0 {
			fmt.Fprintf(c.App.Writer, "  nested:    %s\n", strings.Join(s.Nested, ", "))
		}
		fmt.Fprintf(c.App.Writer, "  methods:   %s\n", strings.Join(s.Methods, ", "))
		fmt.Fprintf(c.App.Writer, "  fields:    %s\n", strings.Join(s.Fields, ", "))
		fmt.Fprintf(c.App.Writer, "  digest:    %s\n", s.Digest)
	}
	return nil
}

func memberStrings(members []fingerprint.Member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.String()
	}
	return out
}

// planOutput is the JSON form of a plan.
type planOutput struct {
	Loader    types.LoaderID   `json:"loader"`
	Committed bool             `json:"committed"`
	Matches   []redefine.Match `json:"matches"`
	Removed   []string         `json:"removed,omitempty"`
	Written   []string         `json:"written,omitempty"`

	tree []*display.Node
}

func planCommand(c *cli.Context) error {
	env, id, reqs, err := prepare(c)
	if err != nil {
		return err
	}
	defer env.Close()

	plan, err := env.engine.Plan(c.Context, reqs)
	if err != nil {
		return err
	}
	return printPlan(c, planOutput{Loader: id, Matches: plan.Matches, Removed: removedNames(plan), tree: display.FromPlan(plan)})
}

func redefineCommand(c *cli.Context) error {
	env, id, reqs, err := prepare(c)
	if err != nil {
		return err
	}
	defer env.Close()

	res, err := env.engine.Redefine(c.Context, reqs, nil)
	if err != nil {
		return err
	}
	if err := res.Apply(env.host); err != nil {
		return err
	}

	out := c.String("out")
	written := make([]string, 0, len(res.Bytes))
	for i, d := range res.Plan.Descriptors {
		path := filepath.Join(out, filepath.FromSlash(types.ResourceName(d.CurrentName())))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, res.Bytes[i], 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}

	return printPlan(c, planOutput{
		Loader:    id,
		Committed: res.Plan.Committed(),
		Matches:   res.Plan.Matches,
		Removed:   removedNames(res.Plan),
		Written:   written,
		tree:      display.FromPlan(res.Plan),
	})
}

// prepare loads the loader's classpath into the host and reads the class
// files named on the command line.
func prepare(c *cli.Context) (*environment, types.LoaderID, []redefine.Request, error) {
	defs, err := readClasses(c.Args().Slice())
	if err != nil {
		return nil, "", nil, err
	}
	env, err := newEnvironment(c, nil)
	if err != nil {
		return nil, "", nil, err
	}
	id, err := env.loaderID(c.String("loader"))
	if err != nil {
		env.Close()
		return nil, "", nil, err
	}
	if err := env.loadBaseline(c.Context, id); err != nil {
		env.Close()
		return nil, "", nil, err
	}

	reqs := make([]redefine.Request, len(defs))
	for i, b := range defs {
		reqs[i] = redefine.Request{Loader: id, Bytes: b}
	}
	return env, id, reqs, nil
}

func removedNames(plan *redefine.Plan) []string {
	var out []string
	for _, r := range plan.Removed {
		r.Walk(func(d *descriptor.TypeDescriptor) bool {
			out = append(out, d.CurrentName())
			return true
		})
	}
	return out
}

func printPlan(c *cli.Context, p planOutput) error {
	if c.Bool("json") {
		return writeJSON(c.App.Writer, p)
	}

	if c.Bool("tree") {
		formatter := display.NewTreeFormatter(display.FormatterOptions{ShowScores: true})
		fmt.Fprintln(c.App.Writer, strings.TrimRight(formatter.Format(p.tree), "\n"))
	} else {
		tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tPREVIOUS\tTARGET\tSCORE")
		for _, m := range p.Matches {
			previous := m.Previous
			if previous == "" {
				previous = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\n", m.Name, previous, m.Target, m.Score, types.MaxScore)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	for _, r := range p.Removed {
		fmt.Fprintf(c.App.Writer, "removed: %s\n", r)
	}
	for _, w := range pathutil.ToRelativeAll(p.Written, cwd()) {
		fmt.Fprintf(c.App.Writer, "wrote: %s\n", w)
	}
	return nil
}

func cwd() string {
	dir, _ := os.Getwd()
	return dir
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
