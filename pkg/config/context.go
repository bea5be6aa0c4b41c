package config

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/lintang-b-s/parallel-hypergraph-partitioner/pkg"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type PresetType uint8

const (
	DETERMINISTIC PresetType = iota
	SPEED
	HIGH_QUALITY
)

func (p PresetType) String() string {
	switch p {
	case DETERMINISTIC:
		return "deterministic"
	case SPEED:
		return "speed"
	case HIGH_QUALITY:
		return "high_quality"
	}
	return "unknown"
}

// SetParameter return codes.
const (
	PARAM_OK                 = 0
	PARAM_UNKNOWN            = 1
	PARAM_INT_PARSE_ERROR    = 2
	PARAM_INVALID_ENUM_VALUE = 3
)

var (
	ErrInvalidNumBlocks = errors.New("number of blocks must be at least 2")
	ErrInvalidEpsilon   = errors.New("imbalance tolerance must be positive")
)

// Context carries every knob of the partitioning pipeline. The core never
// consults globals: one Context is threaded through coarsening, initial
// partitioning and refinement.
type Context struct {
	NumBlocks  int
	Epsilon    float64
	Objective  pkg.Objective
	Seed       uint64
	NumVCycles int
	Verbose    bool

	NumThreads    int
	Deterministic bool
	Preset        PresetType

	// coarsening
	ContractionLimitMultiplier int
	MinimumShrinkFactor        float64
	MaxAllowedWeightFraction   float64 // cap on cluster weight as a fraction of W/(ContractionLimitMultiplier*k)
	UseNLevel                  bool
	UseCommunityDetection      bool

	// label propagation
	LPMaxIterations int

	// FM
	FMEnabled       bool
	FMNumSeeds      int
	FMMoveBudget    int
	FMUnconstrained bool
	// weight slack factor tolerated by unconstrained FM before rebalancing
	FMUnconstrainedUpperBound float64

	// flows
	FlowsEnabled    bool
	FlowRegionScale float64

	// refinement time budget
	TimeLimitFactor float64

	// community detection
	LouvainMaxPasses int
	LouvainMinGain   float64
}

// NewContext returns a context preloaded with the SPEED preset.
func NewContext() *Context {
	ctx := &Context{}
	ctx.LoadPreset(SPEED)
	return ctx
}

// LoadPreset overwrites the algorithmic knobs; user-facing parameters
// (blocks, epsilon, objective, seed, v-cycles, verbose) keep their values.
func (ctx *Context) LoadPreset(preset PresetType) {
	if ctx.NumBlocks == 0 {
		ctx.NumBlocks = 2
	}
	if ctx.Epsilon == 0 {
		ctx.Epsilon = 0.03
	}
	ctx.Preset = preset
	ctx.NumThreads = runtime.GOMAXPROCS(0)
	ctx.ContractionLimitMultiplier = pkg.CONTRACTION_LIMIT_MULTIPLIER
	ctx.MinimumShrinkFactor = pkg.MINIMUM_SHRINK_FACTOR
	ctx.MaxAllowedWeightFraction = 1.0
	ctx.LPMaxIterations = 5
	ctx.FMEnabled = true
	ctx.FMNumSeeds = 25
	ctx.FMMoveBudget = 4000
	ctx.FMUnconstrained = false
	ctx.FMUnconstrainedUpperBound = 1.25
	ctx.FlowRegionScale = pkg.FLOW_REGION_EPS_SCALING
	ctx.TimeLimitFactor = 0.25
	ctx.LouvainMaxPasses = 5
	ctx.LouvainMinGain = 1e-4
	ctx.UseCommunityDetection = true

	switch preset {
	case DETERMINISTIC:
		ctx.Deterministic = true
		// FM searches and flow scheduling are order dependent; deterministic
		// runs refine with synchronous label propagation only
		ctx.FMEnabled = false
		ctx.FlowsEnabled = false
		ctx.UseNLevel = false
	case SPEED:
		ctx.Deterministic = false
		ctx.FlowsEnabled = false
		ctx.UseNLevel = false
		ctx.LPMaxIterations = 3
	case HIGH_QUALITY:
		ctx.Deterministic = false
		ctx.FlowsEnabled = true
		ctx.UseNLevel = true
		ctx.LPMaxIterations = 5
		ctx.FMMoveBudget = 10000
	}
}

// SetParameter sets one of the user-facing parameters from its textual
// value. The return codes are part of the external interface: 0 success,
// 1 unknown parameter, 2 integer parse error, 3 invalid enum value.
func (ctx *Context) SetParameter(name, value string) int {
	switch strings.ToUpper(name) {
	case "NUM_BLOCKS":
		k, err := strconv.Atoi(value)
		if err != nil {
			return PARAM_INT_PARSE_ERROR
		}
		ctx.NumBlocks = k
	case "EPSILON":
		eps, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return PARAM_INT_PARSE_ERROR
		}
		ctx.Epsilon = eps
	case "OBJECTIVE":
		obj, err := pkg.ParseObjective(value)
		if err != nil {
			return PARAM_INVALID_ENUM_VALUE
		}
		ctx.Objective = obj
	case "SEED":
		seed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return PARAM_INT_PARSE_ERROR
		}
		ctx.Seed = seed
	case "NUM_VCYCLES":
		c, err := strconv.Atoi(value)
		if err != nil {
			return PARAM_INT_PARSE_ERROR
		}
		ctx.NumVCycles = c
	case "VERBOSE":
		switch strings.ToLower(value) {
		case "true", "1":
			ctx.Verbose = true
		case "false", "0":
			ctx.Verbose = false
		default:
			return PARAM_INVALID_ENUM_VALUE
		}
	default:
		return PARAM_UNKNOWN
	}
	return PARAM_OK
}

// parameter names accepted in configuration files, lowercase.
var fileParameters = map[string]string{
	"num_blocks":  "NUM_BLOCKS",
	"epsilon":     "EPSILON",
	"objective":   "OBJECTIVE",
	"seed":        "SEED",
	"num_vcycles": "NUM_VCYCLES",
	"verbose":     "VERBOSE",
	"preset":      "",
	"num_threads": "",
}

// ConfigureFromFile loads an INI-style key/value file. Unknown keys fail
// loudly; known keys go through the same validation as SetParameter.
func (ctx *Context) ConfigureFromFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	var errs error
	for _, key := range v.AllKeys() {
		// strip the INI section qualifier
		short := key
		if idx := strings.LastIndex(key, "."); idx >= 0 {
			short = key[idx+1:]
		}
		canonical, known := fileParameters[strings.ToLower(short)]
		if !known {
			errs = multierr.Append(errs, fmt.Errorf("unknown configuration key %q", key))
			continue
		}
		value := v.GetString(key)
		switch strings.ToLower(short) {
		case "preset":
			switch strings.ToLower(value) {
			case "deterministic":
				ctx.LoadPreset(DETERMINISTIC)
			case "speed":
				ctx.LoadPreset(SPEED)
			case "high_quality":
				ctx.LoadPreset(HIGH_QUALITY)
			default:
				errs = multierr.Append(errs, fmt.Errorf("invalid preset %q", value))
			}
		case "num_threads":
			t, err := strconv.Atoi(value)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("num_threads: %w", err))
				continue
			}
			ctx.NumThreads = t
		default:
			switch ctx.SetParameter(canonical, value) {
			case PARAM_INT_PARSE_ERROR:
				errs = multierr.Append(errs, fmt.Errorf("cannot parse value %q for %s", value, canonical))
			case PARAM_INVALID_ENUM_VALUE:
				errs = multierr.Append(errs, fmt.Errorf("invalid value %q for %s", value, canonical))
			}
		}
	}
	return errs
}

// Validate checks the preconditions of a partition call.
func (ctx *Context) Validate() error {
	var errs error
	if ctx.NumBlocks < 2 {
		errs = multierr.Append(errs, ErrInvalidNumBlocks)
	}
	if ctx.Epsilon <= 0 {
		errs = multierr.Append(errs, ErrInvalidEpsilon)
	}
	if ctx.NumVCycles < 0 {
		errs = multierr.Append(errs, fmt.Errorf("negative v-cycle count %d", ctx.NumVCycles))
	}
	return errs
}

// InitializeThreadPool clamps the requested worker count to the available
// CPUs, warning when it had to.
func (ctx *Context) InitializeThreadPool(numThreads int, log *zap.Logger) int {
	maxProcs := runtime.GOMAXPROCS(0)
	if numThreads <= 0 || numThreads > maxProcs {
		if log != nil {
			log.Sugar().Warnf("requested %d threads, clamping to %d available CPUs", numThreads, maxProcs)
		}
		numThreads = maxProcs
	}
	ctx.NumThreads = numThreads
	return numThreads
}
