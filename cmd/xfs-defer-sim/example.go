// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/spf13/cobra"
)

func init() {
	subcommands = append(subcommands, subcommand{
		Command: cobra.Command{
			Use:   "example",
			Short: "Print an example scenario to use as a starting point",
			Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			scenario := Scenario{
				Geometry: GeometryConfig{
					AGCount:  4,
					AGBlkLog: 16,
				},
				Budgets: BudgetConfig{
					StepBudget:    4,
					FreeStepLimit: 256,
				},
				Seed: SeedConfig{
					Forks: []SeedFork{{
						Ino:  128,
						Fork: "data",
						Extents: []SeedExtent{
							{Off: 0, Start: 0x1000, Count: 512, Written: true},
						},
					}},
					Attrs: []SeedAttr{
						{Ino: 128, Name: "user.comment", Value: "hello"},
					},
				},
				Chains: []ChainConfig{
					{
						Label: "truncate",
						Ops: []OpConfig{
							{Type: "bmap", Op: "unmap", Ino: 128, Fork: "data", Off: 0, Start: 0x1000, Count: 512, Written: true},
							{Type: "extent-free", Start: 0x1000, Count: 512, Owner: 128},
						},
					},
					{
						Label: "removexattr",
						Ops: []OpConfig{
							{Type: "attr", Op: "remove", Ino: 128, Name: "user.comment", Logged: true},
						},
					},
				},
			}
			return writeJSONFile(os.Stdout, scenario, lowmemjson.ReEncoder{
				Indent:                "\t",
				ForceTrailingNewlines: true,
			})
		},
	})
}
