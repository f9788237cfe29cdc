// Package weightsfile reads and writes the plain-text weights file that is
// the system's durable artifact (spec.md §4.8): one header per run followed
// by one block per tree, each block listing its leaves as a weight and the
// path of cuts that reaches it. The format favors being diffable and
// greppable over compactness, matching the original tool's text output
// rather than adopting a binary codec like the teacher's gob-based
// tree/forest Save/Load.
package weightsfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kgregersen/reweighter/internal/config"
	"github.com/kgregersen/reweighter/internal/errkind"
	"github.com/kgregersen/reweighter/internal/forest"
	"github.com/kgregersen/reweighter/internal/tree"
	"github.com/kgregersen/reweighter/internal/variable"
)

const endMarker = "# End"

// Write serializes ens to w. timestamp is an opaque string stamped verbatim
// into the header (callers pass a formatted time so the codec itself never
// calls time.Now, keeping it deterministic and test-friendly). cfgLines are
// the "key=value" lines echoed under ConfigFile:, letting a weights file be
// traced back to the configuration that produced it.
func Write(w io.Writer, ens *forest.Ensemble, reg *variable.Registry, timestamp string, cfgLines []string) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Time stamp: %s\n", timestamp)
	fmt.Fprintf(bw, "Variables: %s\n", strings.Join(reg.Names(), ","))
	fmt.Fprintf(bw, "Method: %s\n", ens.Method)
	fmt.Fprintln(bw, "ConfigFile:")
	for _, line := range cfgLines {
		fmt.Fprintln(bw, line)
	}

	treeIdx := 0
	for _, f := range ens.Forests {
		for _, t := range f.Trees {
			fmt.Fprintf(bw, "# Decision Tree : %d\n", treeIdx)
			for _, leaf := range t.Paths() {
				if err := writeLeaf(bw, leaf); err != nil {
					return err
				}
			}
			treeIdx++
		}
		fmt.Fprintln(bw, endMarker)
	}

	return bw.Flush()
}

func writeLeaf(w io.Writer, leaf tree.LeafPath) error {
	// Cuts are written leaf-to-root (reverse of LeafPath.Cuts, which is
	// root-to-leaf), matching the original text format; the reader reverses
	// them back.
	parts := make([]string, len(leaf.Cuts))
	for i, c := range leaf.Cuts {
		parts[len(leaf.Cuts)-1-i] = c.String()
	}

	ratio := 0.0
	if leaf.SumSource != 0 {
		ratio = leaf.SumTarget / leaf.SumSource
	}

	_, err := fmt.Fprintf(w, "weight=%v:SumTarget/SumSource=%v/%v=%v:%s\n",
		leaf.Weight, leaf.SumTarget, leaf.SumSource, ratio, strings.Join(parts, "|"))
	return err
}

// ReadResult is a parsed weights file, ready to be turned into a forest
// ensemble once the caller's variable registry is supplied to Read.
type ReadResult struct {
	Timestamp string
	Variables []string
	Method    config.Method
	CfgLines  []string
	Ensemble  *forest.Ensemble
}

// Read parses a weights file written by Write. reg must already have every
// variable named in the file's Variables: line registered; a cut naming an
// unregistered variable is a fatal parse error (spec.md §4.1). Each "# End"
// line closes one forest, so a file with several forests reads back as an
// ensemble of the same forests.
func Read(r io.Reader, reg *variable.Registry) (*ReadResult, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	res := &ReadResult{}
	var forests []*forest.Forest
	var trees []*tree.Tree
	var curLeaves []tree.LeafPath
	inConfig := false
	line := 0

	flushTree := func() {
		if curLeaves != nil {
			trees = append(trees, tree.FromPaths(curLeaves))
			curLeaves = nil
		}
	}
	flushForest := func() {
		flushTree()
		if len(trees) > 0 {
			forests = append(forests, &forest.Forest{Trees: trees, Method: res.Method})
			trees = nil
		}
	}

	for sc.Scan() {
		line++
		text := sc.Text()

		switch {
		case strings.HasPrefix(text, "Time stamp:"):
			res.Timestamp = strings.TrimSpace(strings.TrimPrefix(text, "Time stamp:"))
		case strings.HasPrefix(text, "Variables:"):
			fields := strings.Split(strings.TrimSpace(strings.TrimPrefix(text, "Variables:")), ",")
			res.Variables = fields
		case strings.HasPrefix(text, "Method:"):
			res.Method = config.Method(strings.TrimSpace(strings.TrimPrefix(text, "Method:")))
		case text == "ConfigFile:":
			inConfig = true
		case strings.HasPrefix(text, "# Decision Tree : "):
			flushTree()
			inConfig = false
		case text == endMarker:
			flushForest()
		case strings.HasPrefix(text, "weight="):
			inConfig = false
			leaf, err := parseLeaf(text, reg)
			if err != nil {
				return nil, errkind.Wrap(errkind.Codec, "weightsfile", fmt.Errorf("line %d: %w", line, err))
			}
			curLeaves = append(curLeaves, leaf)
		case inConfig && text != "":
			res.CfgLines = append(res.CfgLines, text)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errkind.Wrap(errkind.Codec, "weightsfile", err)
	}

	flushForest()
	res.Ensemble = &forest.Ensemble{Forests: forests, Method: res.Method}
	return res, nil
}

func parseLeaf(line string, reg *variable.Registry) (tree.LeafPath, error) {
	// weight=W:SumTarget/SumSource=T/S=ratio:cut|cut|...
	rest := strings.TrimPrefix(line, "weight=")
	fields := strings.SplitN(rest, ":", 3)
	if len(fields) != 3 {
		return tree.LeafPath{}, errkind.New(errkind.Codec, "weightsfile", "malformed leaf line %q", line)
	}

	weight, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return tree.LeafPath{}, errkind.Wrap(errkind.Codec, "weightsfile", fmt.Errorf("malformed weight in %q: %w", line, err))
	}

	sums := strings.TrimPrefix(fields[1], "SumTarget/SumSource=")
	sumParts := strings.SplitN(sums, "=", 2)
	if len(sumParts) != 2 {
		return tree.LeafPath{}, errkind.New(errkind.Codec, "weightsfile", "malformed sums in %q", line)
	}
	ratioParts := strings.SplitN(sumParts[0], "/", 2)
	if len(ratioParts) != 2 {
		return tree.LeafPath{}, errkind.New(errkind.Codec, "weightsfile", "malformed sums in %q", line)
	}
	sumTarget, err := strconv.ParseFloat(ratioParts[0], 64)
	if err != nil {
		return tree.LeafPath{}, errkind.Wrap(errkind.Codec, "weightsfile", fmt.Errorf("malformed SumTarget in %q: %w", line, err))
	}
	sumSource, err := strconv.ParseFloat(ratioParts[1], 64)
	if err != nil {
		return tree.LeafPath{}, errkind.Wrap(errkind.Codec, "weightsfile", fmt.Errorf("malformed SumSource in %q: %w", line, err))
	}

	var cuts []tree.Cut
	if fields[2] != "" {
		cutStrs := strings.Split(fields[2], "|")
		leafToRoot := make([]tree.Cut, len(cutStrs))
		for i, cs := range cutStrs {
			c, err := tree.ParseCut(cs, reg)
			if err != nil {
				return tree.LeafPath{}, err
			}
			leafToRoot[i] = c
		}
		// the file stores cuts leaf-to-root; FromPaths wants root-to-leaf.
		cuts = make([]tree.Cut, len(leafToRoot))
		for i, c := range leafToRoot {
			cuts[len(leafToRoot)-1-i] = c
		}
	}

	return tree.LeafPath{Weight: weight, SumSource: sumSource, SumTarget: sumTarget, Cuts: cuts}, nil
}
