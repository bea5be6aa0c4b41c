package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/config"
	hgio "github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/io"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/logger"
	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg/partitioner"
)

func main() {
	var (
		hypergraphPath = flag.String("hypergraph", "", "path to the input hypergraph (hMetis or Metis format, optionally .bz2)")
		presetFile     = flag.String("preset-file", "", "optional INI configuration file")
		preset         = flag.String("preset", "speed", "preset: deterministic, speed or high_quality")
		k              = flag.Int("k", 2, "number of blocks")
		epsilon        = flag.Float64("epsilon", 0.03, "imbalance tolerance")
		objective      = flag.String("objective", "km1", "objective: cut or km1")
		seed           = flag.Uint64("seed", 0, "random seed")
		threads        = flag.Int("threads", 0, "worker threads (0 = all CPUs)")
		vcycles        = flag.Int("vcycles", 0, "number of v-cycles")
		writeOutput    = flag.Bool("write-partition", false, "write <input>.part<k>.epsilon<eps>")
		verbose        = flag.Bool("verbose", false, "verbose logging")
	)
	flag.Parse()

	if *hypergraphPath == "" {
		fmt.Fprintln(os.Stderr, "missing required -hypergraph argument")
		flag.Usage()
		os.Exit(1)
	}

	log := logger.NewNop()
	if *verbose {
		l, err := logger.NewVerbose()
		if err != nil {
			fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
			os.Exit(1)
		}
		log = l
	}
	defer log.Sync()

	ctx := config.NewContext()
	switch *preset {
	case "deterministic":
		ctx.LoadPreset(config.DETERMINISTIC)
	case "speed":
		ctx.LoadPreset(config.SPEED)
	case "high_quality":
		ctx.LoadPreset(config.HIGH_QUALITY)
	default:
		fmt.Fprintf(os.Stderr, "unknown preset %q\n", *preset)
		os.Exit(1)
	}
	if *presetFile != "" {
		if err := ctx.ConfigureFromFile(*presetFile); err != nil {
			fmt.Fprintf(os.Stderr, "loading %s: %v\n", *presetFile, err)
			os.Exit(1)
		}
	}
	if code := ctx.SetParameter("OBJECTIVE", *objective); code != config.PARAM_OK {
		fmt.Fprintf(os.Stderr, "invalid objective %q\n", *objective)
		os.Exit(1)
	}
	ctx.NumBlocks = *k
	ctx.Epsilon = *epsilon
	ctx.Seed = *seed
	ctx.NumVCycles = *vcycles
	ctx.Verbose = *verbose
	ctx.InitializeThreadPool(*threads, log)

	if err := ctx.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	file, err := hgio.ReadHypergraphFromFile(*hypergraphPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading hypergraph: %v\n", err)
		os.Exit(1)
	}
	hg, err := file.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "building hypergraph: %v\n", err)
		os.Exit(1)
	}

	objectiveValue, assignment, err := partitioner.Partition(hg, ctx, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "partitioning failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s = %d\n", ctx.Objective, objectiveValue)
	if *writeOutput {
		outPath := hgio.PartitionFileName(*hypergraphPath, *k, *epsilon)
		if err := hgio.WritePartition(outPath, assignment); err != nil {
			fmt.Fprintf(os.Stderr, "writing partition: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("partition written to %s\n", outPath)
	}
}
