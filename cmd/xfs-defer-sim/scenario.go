// Copyright (C) 2025-2026  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/xfs-progs-ng/lib/containers"
	"git.lukeshu.com/xfs-progs-ng/lib/maps"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsdefer"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfsprim"
	"git.lukeshu.com/xfs-progs-ng/lib/xfs/xfssim"
)

// A Scenario is the JSON input to `xfs-defer-sim run`: a filesystem
// shape, reservation budgets, seeded metadata, and one or more chains
// of deferred operations to run through the engine.
type Scenario struct {
	Geometry GeometryConfig `json:"geometry"`
	Budgets  BudgetConfig   `json:"budgets"`
	Seed     SeedConfig     `json:"seed"`
	Chains   []ChainConfig  `json:"chains"`
}

type GeometryConfig struct {
	AGCount  uint32 `json:"agCount"`
	AGBlkLog uint8  `json:"agBlkLog"`
}

type BudgetConfig struct {
	StepBudget        int    `json:"stepBudget"`
	FreeStepLimit     uint64 `json:"freeStepLimit"`
	RefcountStepLimit uint64 `json:"refcountStepLimit"`
	UnmapStepLimit    uint64 `json:"unmapStepLimit"`
	AttrSteps         int    `json:"attrSteps"`
}

type SeedConfig struct {
	RealtimeInos []uint64       `json:"realtimeInos"`
	Forks        []SeedFork     `json:"forks"`
	Attrs        []SeedAttr     `json:"attrs"`
	Rmaps        []SeedRmap     `json:"rmaps"`
	Refcounts    []SeedRefcount `json:"refcounts"`
}

type SeedFork struct {
	Ino     uint64       `json:"ino"`
	Fork    string       `json:"fork"`
	Extents []SeedExtent `json:"extents"`
}

type SeedExtent struct {
	Off     uint64 `json:"off"`
	Start   uint64 `json:"start"`
	Count   uint64 `json:"count"`
	Written bool   `json:"written"`
}

type SeedAttr struct {
	Ino   uint64 `json:"ino"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type SeedRmap struct {
	Owner  int64      `json:"owner"`
	Fork   string     `json:"fork"`
	Extent SeedExtent `json:"extent"`
}

type SeedRefcount struct {
	Start uint64 `json:"start"`
	Count uint64 `json:"count"`
	Value int64  `json:"value"`
}

type ChainConfig struct {
	Label string     `json:"label"`
	Ops   []OpConfig `json:"ops"`
}

// An OpConfig is one deferred operation.  Type selects the kind;
// which other fields matter depends on it.
type OpConfig struct {
	Type string `json:"type"`          // extent-free | agfl-free | rmap | refcount | bmap | attr | exchange
	Op   string `json:"op,omitempty"`  // sub-operation of the kind, e.g. rmap "map", attr "set"

	Start uint64 `json:"start,omitempty"`
	Count uint64 `json:"count,omitempty"`
	Owner int64  `json:"owner,omitempty"`

	SkipDiscard  bool `json:"skipDiscard,omitempty"`
	AttrForkFlag bool `json:"attrFork,omitempty"`
	BmbtBlock    bool `json:"bmbtBlock,omitempty"`

	Ino     uint64 `json:"ino,omitempty"`
	Ino2    uint64 `json:"ino2,omitempty"`
	Fork    string `json:"fork,omitempty"`
	Off     uint64 `json:"off,omitempty"`
	Off2    uint64 `json:"off2,omitempty"`
	Written bool   `json:"written,omitempty"`

	Name     string   `json:"name,omitempty"`
	Value    string   `json:"value,omitempty"`
	NewValue string   `json:"newValue,omitempty"`
	Filter   []string `json:"filter,omitempty"`
	Logged   bool     `json:"logged,omitempty"`

	ExchAttrForks bool `json:"exchAttrForks,omitempty"`
	ExchSetSizes  bool `json:"exchSetSizes,omitempty"`
}

// A Report is the JSON output of `xfs-defer-sim run`.
type Report struct {
	Chains []ChainReport `json:"chains"`

	Transactions   int `json:"transactions"`
	Rolls          int `json:"rolls"`
	IntentsLive    int `json:"intentsLive"`
	IntentsPaired  int `json:"intentsPaired"`
	IntentsAborted int `json:"intentsAborted"`

	AGs         []AGReport `json:"ags"`
	RmapRecords int        `json:"rmapRecords"`
	OpenCursors int        `json:"openCursors"`
}

type ChainReport struct {
	Label string `json:"label"`
	Ops   int    `json:"ops"`
	Err   string `json:"err,omitempty"`
}

type AGReport struct {
	AG          uint32                          `json:"ag"`
	FreedBlocks uint64                          `json:"freedBlocks"`
	AGFL        containers.Set[xfsprim.AGBlock] `json:"agfl"`
}

func parseEnum[T any](what, s string, vals map[string]T) (T, error) {
	if v, ok := vals[s]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s: %q (must be one of %s)",
		what, s, strings.Join(maps.SortedKeys(vals), ", "))
}

var forkNames = map[string]xfsprim.Fork{
	"data": xfsprim.DataFork,
	"attr": xfsprim.AttrFork,
	"cow":  xfsprim.CowFork,
}

func parseFork(s string) (xfsprim.Fork, error) {
	if s == "" {
		return xfsprim.DataFork, nil
	}
	return parseEnum("fork", s, forkNames)
}

var rmapOpNames = map[string]xfsdefer.RmapOp{
	"map":            xfsdefer.RmapMap,
	"map-shared":     xfsdefer.RmapMapShared,
	"unmap":          xfsdefer.RmapUnmap,
	"unmap-shared":   xfsdefer.RmapUnmapShared,
	"convert":        xfsdefer.RmapConvert,
	"convert-shared": xfsdefer.RmapConvertShared,
	"alloc":          xfsdefer.RmapAlloc,
	"free":           xfsdefer.RmapFree,
}

func parseRmapOp(s string) (xfsdefer.RmapOp, error) {
	return parseEnum("rmap op", s, rmapOpNames)
}

var refcountOpNames = map[string]xfsdefer.RefcountOp{
	"increase":  xfsdefer.RefcountIncrease,
	"decrease":  xfsdefer.RefcountDecrease,
	"alloc-cow": xfsdefer.RefcountAllocCow,
	"free-cow":  xfsdefer.RefcountFreeCow,
}

func parseRefcountOp(s string) (xfsdefer.RefcountOp, error) {
	return parseEnum("refcount op", s, refcountOpNames)
}

var bmapOpNames = map[string]xfsdefer.BmapOp{
	"map":   xfsdefer.BmapMap,
	"unmap": xfsdefer.BmapUnmap,
}

func parseBmapOp(s string) (xfsdefer.BmapOp, error) {
	return parseEnum("bmap op", s, bmapOpNames)
}

var attrOpNames = map[string]xfsdefer.AttrOp{
	"set":     xfsdefer.AttrSet,
	"replace": xfsdefer.AttrReplace,
	"remove":  xfsdefer.AttrRemove,
}

func parseAttrOp(s string) (xfsdefer.AttrOp, error) {
	return parseEnum("attr op", s, attrOpNames)
}

var attrFilterNames = map[string]xfsdefer.AttrFilter{
	"root":   xfsdefer.AttrRoot,
	"secure": xfsdefer.AttrSecure,
	"parent": xfsdefer.AttrParent,
}

func parseAttrFilter(names []string) (xfsdefer.AttrFilter, error) {
	var filter xfsdefer.AttrFilter
	for _, name := range names {
		bit, err := parseEnum("attr filter", name, attrFilterNames)
		if err != nil {
			return 0, err
		}
		filter |= bit
	}
	return filter, nil
}

// buildFS constructs and seeds the simulated filesystem that a
// scenario's chains run against.
func buildFS(scenario *Scenario) (*xfssim.FS, error) {
	fs, err := xfssim.New(xfssim.Options{
		Geometry: xfsprim.Geometry{
			AGCount:  xfsprim.AGNumber(scenario.Geometry.AGCount),
			AGBlkLog: scenario.Geometry.AGBlkLog,
		},
		StepBudget:        scenario.Budgets.StepBudget,
		FreeStepLimit:     xfsprim.BlockCount(scenario.Budgets.FreeStepLimit),
		RefcountStepLimit: xfsprim.BlockCount(scenario.Budgets.RefcountStepLimit),
		UnmapStepLimit:    xfsprim.BlockCount(scenario.Budgets.UnmapStepLimit),
		AttrSteps:         scenario.Budgets.AttrSteps,
	})
	if err != nil {
		return nil, err
	}

	for _, ino := range scenario.Seed.RealtimeInos {
		fs.Mount().RealtimeInode(xfsprim.Ino(ino))
	}
	for _, seed := range scenario.Seed.Forks {
		fork, err := parseFork(seed.Fork)
		if err != nil {
			return nil, err
		}
		exts := make([]xfsprim.FileExtent, len(seed.Extents))
		for i, ext := range seed.Extents {
			exts[i] = xfsprim.FileExtent{
				StartOff:   xfsprim.FileOff(ext.Off),
				StartBlock: xfsprim.FSBlock(ext.Start),
				BlockCount: xfsprim.BlockCount(ext.Count),
				Written:    ext.Written,
			}
		}
		fs.SetForkExtents(xfsprim.Ino(seed.Ino), fork, exts)
	}
	for _, seed := range scenario.Seed.Attrs {
		fs.SetAttr(xfsprim.Ino(seed.Ino), seed.Name, []byte(seed.Value))
	}
	for _, seed := range scenario.Seed.Rmaps {
		fork, err := parseFork(seed.Fork)
		if err != nil {
			return nil, err
		}
		fs.SetRmap(xfsprim.OwnerID(seed.Owner), fork, xfsprim.FileExtent{
			StartOff:   xfsprim.FileOff(seed.Extent.Off),
			StartBlock: xfsprim.FSBlock(seed.Extent.Start),
			BlockCount: xfsprim.BlockCount(seed.Extent.Count),
			Written:    seed.Extent.Written,
		})
	}
	for _, seed := range scenario.Seed.Refcounts {
		fs.SetRefcount(xfsprim.FSBlock(seed.Start), xfsprim.BlockCount(seed.Count), seed.Value)
	}
	return fs, nil
}

// addOp translates one OpConfig into a queued work item on tp.
func addOp(tp xfsdefer.Txn, op OpConfig) error {
	switch op.Type {
	case "extent-free", "agfl-free":
		xefi := xfsdefer.NewExtentFreeItem()
		xefi.StartBlock = xfsprim.FSBlock(op.Start)
		xefi.BlockCount = xfsprim.BlockCount(op.Count)
		xefi.Owner = xfsprim.OwnerID(op.Owner)
		if op.SkipDiscard {
			xefi.Flags |= xfsdefer.EFISkipDiscard
		}
		if op.AttrForkFlag {
			xefi.Flags |= xfsdefer.EFIAttrFork
		}
		if op.BmbtBlock {
			xefi.Flags |= xfsdefer.EFIBmbtBlock
		}
		if op.Type == "agfl-free" {
			xefi.Resv = xfsdefer.AGResvAGFL
		}
		if err := xfsdefer.AddExtentFree(tp, xefi); err != nil {
			xefi.Free()
			return err
		}
		return nil
	case "rmap":
		rop, err := parseRmapOp(op.Op)
		if err != nil {
			return err
		}
		fork, err := parseFork(op.Fork)
		if err != nil {
			return err
		}
		ri := xfsdefer.NewRmapItem()
		ri.Op = rop
		ri.Owner = xfsprim.OwnerID(op.Owner)
		ri.Fork = fork
		ri.Extent = xfsprim.FileExtent{
			StartOff:   xfsprim.FileOff(op.Off),
			StartBlock: xfsprim.FSBlock(op.Start),
			BlockCount: xfsprim.BlockCount(op.Count),
			Written:    op.Written,
		}
		if err := xfsdefer.AddRmap(tp, ri); err != nil {
			ri.Free()
			return err
		}
		return nil
	case "refcount":
		rop, err := parseRefcountOp(op.Op)
		if err != nil {
			return err
		}
		ci := xfsdefer.NewRefcountItem()
		ci.Op = rop
		ci.StartBlock = xfsprim.FSBlock(op.Start)
		ci.BlockCount = xfsprim.BlockCount(op.Count)
		if err := xfsdefer.AddRefcount(tp, ci); err != nil {
			ci.Free()
			return err
		}
		return nil
	case "bmap":
		bop, err := parseBmapOp(op.Op)
		if err != nil {
			return err
		}
		fork, err := parseFork(op.Fork)
		if err != nil {
			return err
		}
		bi := xfsdefer.NewBmapItem()
		bi.Op = bop
		bi.Ino = xfsprim.Ino(op.Ino)
		bi.Fork = fork
		bi.Extent = xfsprim.FileExtent{
			StartOff:   xfsprim.FileOff(op.Off),
			StartBlock: xfsprim.FSBlock(op.Start),
			BlockCount: xfsprim.BlockCount(op.Count),
			Written:    op.Written,
		}
		if err := xfsdefer.AddBmap(tp, bi); err != nil {
			bi.Free()
			return err
		}
		return nil
	case "attr":
		aop, err := parseAttrOp(op.Op)
		if err != nil {
			return err
		}
		filter, err := parseAttrFilter(op.Filter)
		if err != nil {
			return err
		}
		_, err = xfsdefer.AddAttr(tp, &xfsdefer.AttrArgs{
			Ino:      xfsprim.Ino(op.Ino),
			Name:     []byte(op.Name),
			Value:    []byte(op.Value),
			NewValue: []byte(op.NewValue),
			Filter:   filter,
			Logged:   op.Logged,
		}, aop)
		return err
	case "exchange":
		xmi := xfsdefer.NewExchMapsItem()
		xmi.Ino1 = xfsprim.Ino(op.Ino)
		xmi.Ino2 = xfsprim.Ino(op.Ino2)
		xmi.StartOff1 = xfsprim.FileOff(op.Off)
		xmi.StartOff2 = xfsprim.FileOff(op.Off2)
		xmi.BlockCount = xfsprim.BlockCount(op.Count)
		if op.ExchAttrForks {
			xmi.Flags |= xfsdefer.ExchAttrForks
		}
		if op.ExchSetSizes {
			xmi.Flags |= xfsdefer.ExchSetSizes
		}
		if err := xfsdefer.AddExchMaps(tp, xmi); err != nil {
			xmi.Free()
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid op type: %q", op.Type)
	}
}

// runChain runs one chain of operations: queue every op on a fresh
// transaction, finish the deferred work (rolling as needed), and
// commit.
func runChain(ctx context.Context, fs *xfssim.FS, chain ChainConfig) error {
	tp := xfsdefer.Txn(fs.Begin(ctx))
	for _, op := range chain.Ops {
		if err := addOp(tp, op); err != nil {
			tp.Queue().Cancel(ctx)
			tp.Abort(ctx)
			return err
		}
	}
	tp, err := xfsdefer.Finish(ctx, tp)
	if err != nil {
		tp.Abort(ctx)
		return err
	}
	return tp.(*xfssim.Txn).Commit(ctx)
}

func runScenario(ctx context.Context, scenario *Scenario) (*xfssim.FS, *Report, error) {
	fs, err := buildFS(scenario)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{
		Chains: make([]ChainReport, 0, len(scenario.Chains)),
	}
	for i, chain := range scenario.Chains {
		label := chain.Label
		if label == "" {
			label = fmt.Sprintf("chain-%d", i)
		}
		chainCtx := dlog.WithField(ctx, "xfs-defer-sim.chain", label)
		dlog.Infof(chainCtx, "running %d op(s)", len(chain.Ops))
		chainReport := ChainReport{
			Label: label,
			Ops:   len(chain.Ops),
		}
		if err := runChain(chainCtx, fs, chain); err != nil {
			dlog.Errorf(chainCtx, "chain failed: %v", err)
			chainReport.Err = err.Error()
		}
		report.Chains = append(report.Chains, chainReport)
	}

	report.Transactions = fs.Transactions()
	report.Rolls = fs.Rolls()
	report.IntentsLive, report.IntentsPaired, report.IntentsAborted = fs.IntentStats()
	geo := fs.Mount().Geometry()
	for agno := xfsprim.AGNumber(0); agno < geo.AGCount; agno++ {
		agfl := make(containers.Set[xfsprim.AGBlock])
		for _, agbno := range fs.AGFL(agno) {
			agfl.Insert(agbno)
		}
		report.AGs = append(report.AGs, AGReport{
			AG:          uint32(agno),
			FreedBlocks: uint64(fs.FreedBlocks(agno)),
			AGFL:        agfl,
		})
	}
	report.RmapRecords = fs.RmapCount()
	report.OpenCursors = fs.OpenCursors()
	return fs, report, nil
}
