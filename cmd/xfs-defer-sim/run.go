// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"git.lukeshu.com/go/lowmemjson"
	"github.com/datawire/dlib/dlog"
	"github.com/datawire/ocibuild/pkg/cliutil"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"git.lukeshu.com/xfs-progs-ng/lib/textui"
)

func init() {
	var spewFlag bool
	cmd := subcommand{
		Command: cobra.Command{
			Use:   "run SCENARIO.json",
			Short: "Run a scenario's operation chains and report what the journal and allocator saw",
			Args:  cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			scenario, err := readJSONFile[Scenario](ctx, args[0])
			if err != nil {
				return err
			}
			ctx = dlog.WithField(ctx, "xfs-defer-sim.scenario", args[0])

			fs, report, err := runScenario(ctx, &scenario)
			if err != nil {
				return err
			}
			failed := 0
			for _, chain := range report.Chains {
				if chain.Err != "" {
					failed++
				}
			}
			dlog.Infof(ctx, "ran %v chains, %d roll(s)",
				textui.Portion[int]{N: len(report.Chains) - failed, D: len(report.Chains)},
				report.Rolls)

			if spewFlag {
				cfg := spew.NewDefaultConfig()
				cfg.DisablePointerAddresses = true
				cfg.Fdump(os.Stderr, fs)
			}

			return writeJSONFile(os.Stdout, report, lowmemjson.ReEncoder{
				Indent:                "\t",
				ForceTrailingNewlines: true,
			})
		},
	}
	cmd.Command.Flags().BoolVar(&spewFlag, "spew", false, "dump the final in-memory filesystem state to stderr")
	subcommands = append(subcommands, cmd)
}
