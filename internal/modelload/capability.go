package modelload

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Model tiers ordered largest to smallest. The chain below a chosen tier
// doubles as the load-fallback list, so a constrained device still ends up
// with some working model.
const (
	ModelTierLarge = "llama3.1:8b"
	ModelTierMid   = "llama3.2:3b"
	ModelTierSmall = "llama3.2:1b"
	ModelTierTiny  = "qwen2.5:0.5b"
)

const (
	gib = 1 << 30

	largeTierMinMemory = 12 * gib
	largeTierMinCPUs   = 8
	midTierMinMemory   = 6 * gib
	midTierMinCPUs     = 4
	smallTierMinMemory = 3 * gib
)

// PickModel selects a model tier for this device from available memory and
// CPU count. Best effort: the choice is a hint, and the chosen model still
// goes through the full load/retry/health-check path.
func PickModel() string {
	return pickModel(totalMemoryBytes(), runtime.NumCPU())
}

// FallbackChain returns the device-appropriate model followed by every
// smaller tier, ordered for LoadAny.
func FallbackChain() []string {
	return fallbackChain(totalMemoryBytes(), runtime.NumCPU())
}

func pickModel(memBytes uint64, cpus int) string {
	switch {
	case memBytes >= largeTierMinMemory && cpus >= largeTierMinCPUs:
		return ModelTierLarge
	case memBytes >= midTierMinMemory && cpus >= midTierMinCPUs:
		return ModelTierMid
	case memBytes >= smallTierMinMemory:
		return ModelTierSmall
	default:
		return ModelTierTiny
	}
}

func fallbackChain(memBytes uint64, cpus int) []string {
	tiers := []string{ModelTierLarge, ModelTierMid, ModelTierSmall, ModelTierTiny}
	pick := pickModel(memBytes, cpus)
	for i, t := range tiers {
		if t == pick {
			return tiers[i:]
		}
	}
	return tiers
}

// totalMemoryBytes reads MemTotal from /proc/meminfo. Returns 0 on
// platforms without it, which routes the device to the smallest tier.
func totalMemoryBytes() uint64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}
