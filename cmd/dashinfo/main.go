// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command dashinfo describes a pattern.Pattern from the command line:
// it prints each unit's local block layout, renders a 2-D
// block-ownership diagram as a PNG, and prints the enclosing team's
// hierarchy as a tree. It is a diagnostic tool, not a cluster runtime.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fogleman/gg"
	"github.com/spf13/pflag"
	"github.com/xlab/treeprint"

	"github.com/dashteam/dash/pattern"
)

var (
	extentsFlag = pflag.StringP("extents", "e", "8,8", "comma-separated global extents, one per dimension")
	distFlag    = pflag.StringP("dist", "d", "blocked,blocked", "comma-separated per-dimension distribution: none, blocked, tile:K, blockcyclic:K, cyclic")
	teamFlag    = pflag.StringP("team", "t", "", "comma-separated team grid factorization, one per dimension (default: all units along the first non-NONE dimension)")
	unitsFlag   = pflag.IntP("units", "u", 4, "number of units in the team")
	pngFlag     = pflag.StringP("png", "o", "", "if set, write a block-ownership PNG (rank 2 only) to this path")
)

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: dashinfo [flags]

Command dashinfo describes a distribution pattern: its per-unit block
layout, and optionally a rendering of unit ownership over a rank-2
pattern.

`)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	extents, err := parseInts(*extentsFlag)
	if err != nil {
		fatalf("bad -extents: %v", err)
	}
	dist, err := parseDist(*distFlag)
	if err != nil {
		fatalf("bad -dist: %v", err)
	}
	if len(extents) != len(dist) {
		fatalf("-extents and -dist must name the same number of dimensions (%d vs %d)", len(extents), len(dist))
	}
	team, err := resolveTeamSpec(*teamFlag, dist, *unitsFlag)
	if err != nil {
		fatalf("bad -team: %v", err)
	}

	pat := pattern.New(extents, dist, team)
	if pat.NUnits() != *unitsFlag {
		fatalf("team grid %v factors to %d units, want %d (-units)", team, pat.NUnits(), *unitsFlag)
	}

	printLayout(pat)
	printTeamTree(pat)

	if *pngFlag != "" {
		if pat.Rank() != 2 {
			fatalf("-png requires a rank-2 pattern, got rank %d", pat.Rank())
		}
		if err := renderBlockPNG(pat, *pngFlag); err != nil {
			fatalf("rendering PNG: %v", err)
		}
		fmt.Printf("wrote %s\n", *pngFlag)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "dashinfo: "+format+"\n", args...)
	os.Exit(1)
}

func parseInts(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	out := make([]int64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %v", p, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseDist(s string) ([]pattern.DistSpec, error) {
	parts := strings.Split(s, ",")
	out := make([]pattern.DistSpec, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		name, arg, hasArg := strings.Cut(p, ":")
		switch strings.ToLower(name) {
		case "none":
			out[i] = pattern.NoneDist()
		case "blocked":
			out[i] = pattern.BlockedDist()
		case "cyclic":
			out[i] = pattern.CyclicDist()
		case "tile":
			k, err := tileArg(arg, hasArg)
			if err != nil {
				return nil, err
			}
			out[i] = pattern.TileDist(k)
		case "blockcyclic":
			k, err := tileArg(arg, hasArg)
			if err != nil {
				return nil, err
			}
			out[i] = pattern.BlockCyclicDist(k)
		default:
			return nil, fmt.Errorf("unknown distribution %q", p)
		}
	}
	return out, nil
}

func tileArg(arg string, hasArg bool) (int64, error) {
	if !hasArg {
		return 0, fmt.Errorf("tile/blockcyclic requires a :K tile size")
	}
	return strconv.ParseInt(arg, 10, 64)
}

// resolveTeamSpec factors nunits along the first non-NONE dimension
// when -team isn't given, which covers the common one-dimensional
// team layouts used throughout the test scenarios.
func resolveTeamSpec(s string, dist []pattern.DistSpec, nunits int) ([]int64, error) {
	if s != "" {
		return parseInts(s)
	}
	team := make([]int64, len(dist))
	for i := range team {
		team[i] = 1
	}
	for i, d := range dist {
		if d.Dist != pattern.None {
			team[i] = int64(nunits)
			return team, nil
		}
	}
	if nunits != 1 {
		return nil, fmt.Errorf("no non-NONE dimension to place %d units along; pass -team explicitly", nunits)
	}
	return team, nil
}

func printLayout(pat *pattern.Pattern) {
	fmt.Printf("rank=%d extents=%v size=%d team=%v units=%d\n", pat.Rank(), pat.Extents(), pat.Size(), pat.TeamExtents(), pat.NUnits())
	for u := 0; u < pat.NUnits(); u++ {
		unit := pattern.Unit(u)
		fmt.Printf("  unit %d: local_extents=%v local_size=%d blockspec=%v\n",
			u, pat.LocalExtents(unit), pat.LocalSize(unit), pat.LocalBlockspec(unit))
	}
}

func printTeamTree(pat *pattern.Pattern) {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("team (%d units)", pat.NUnits()))
	for u := 0; u < pat.NUnits(); u++ {
		tree.AddNode(fmt.Sprintf("unit %d: %d local elements", u, pat.LocalSize(pattern.Unit(u))))
	}
	fmt.Println(tree.String())
}

// renderBlockPNG draws each unit's owned region of a rank-2 pattern as
// a distinctly colored rectangle, one cell per element.
func renderBlockPNG(pat *pattern.Pattern, path string) error {
	const cell = 24
	rows, cols := int(pat.Extent(0)), int(pat.Extent(1))
	dc := gg.NewContext(cols*cell, rows*cell)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			u := pat.UnitAt([]int64{int64(r), int64(c)})
			cr, cg, cb := unitColor(u, pat.NUnits())
			dc.SetRGB(cr, cg, cb)
			dc.DrawRectangle(float64(c*cell), float64(r*cell), cell, cell)
			dc.Fill()
		}
	}

	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	for r := 0; r <= rows; r++ {
		dc.DrawLine(0, float64(r*cell), float64(cols*cell), float64(r*cell))
	}
	for c := 0; c <= cols; c++ {
		dc.DrawLine(float64(c*cell), 0, float64(c*cell), float64(rows*cell))
	}
	dc.Stroke()

	return dc.SavePNG(path)
}

// unitColor picks a stable, well-separated color per unit by walking
// evenly around the hue wheel.
func unitColor(u pattern.Unit, nunits int) (r, g, b float64) {
	if nunits <= 0 {
		nunits = 1
	}
	hue := float64(u) / float64(nunits)
	return hsvToRGB(hue, 0.55, 0.95)
}

func hsvToRGB(h, s, v float64) (r, g, b float64) {
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	switch i % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}
