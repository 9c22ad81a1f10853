// Package config loads the ffc configuration file and derives the run-time
// resource budgets (worker count, per-worker RAM, queue capacity) from it.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/fastfilecheck/ffc/internal/types"
)

const (
	DefaultConfigPath = "/etc/ffc.conf"
	DefaultDBPath     = "/var/lib/ffc"
	DefaultLogPath    = "/var/log/ffc"

	defaultDBSizeMB      = 15
	minDBSizeMB          = 5
	defaultRAMPercent    = 70
	minRAMPercent        = 10
	maxRAMPercent        = 90
	defaultMaxDepth      = 10
	maxMaxDepth          = 64
	defaultWatchDebounce = 500
	averagePathLength    = 256
	queueMemoryFactor    = 10
	fallbackAvailableRAM = 1 << 30
)

// ErrNoDirectories is returned when the config names no scan roots.
var ErrNoDirectories = errors.New("config: scanning.directories is required")

// fileConfig mirrors the on-disk TOML layout. Every key is optional; missing
// or out-of-range values fall back to the defaults.
type fileConfig struct {
	Settings struct {
		ThreadsCount    int `toml:"threads_count"`
		RAMUsagePercent int `toml:"ram_usage_percent"`
		WatchDebounceMs int `toml:"watch_debounce_ms"`
	} `toml:"settings"`
	Database struct {
		DBSizeMB   int64  `toml:"db_size_mb"`
		DBPath     string `toml:"db_path"`
		DBNoSync   bool   `toml:"db_nosync"`
		DBNoMeta   bool   `toml:"db_nometasync"`
		DBMapAsync bool   `toml:"db_mapasync"`
		DBWriteMap bool   `toml:"db_writemap"`
	} `toml:"database"`
	Logging struct {
		LogToFileEnabled bool   `toml:"log_to_file_enabled"`
		LogPath          string `toml:"log_path"`
	} `toml:"logging"`
	Scanning struct {
		MaxRecursionDepth int    `toml:"max_recursion_depth"`
		ExcludeHidden     bool   `toml:"exclude_hidden"`
		Directories       string `toml:"directories"`
		ExcludeDirs       string `toml:"exclude_directories"`
		ExcludeExts       string `toml:"exclude_extensions"`
		ExcludePatterns   string `toml:"exclude_patterns"`
	} `toml:"scanning"`
}

// Config is the immutable run configuration. It is built once at startup by
// Load and never mutated afterwards.
type Config struct {
	Mode    types.Mode
	Verbose bool

	// Scan surface.
	Roots           []string
	ExcludeDirs     map[string]struct{}
	ExcludeExts     map[string]struct{}
	ExcludePatterns []string
	ExcludeHidden   bool
	MaxDepth        int

	// Store.
	DBPath    string
	DBMaxSize int64
	// Durability toggles. Each one trades crash safety for throughput:
	// NoSync skips fsync on commit, NoFreelistSync skips freelist syncing,
	// NoGrowSync skips syncing after remapping. Safe only when losing the
	// last few commits on power loss is acceptable.
	DBNoSync         bool
	DBNoFreelistSync bool
	DBNoGrowSync     bool

	// Logging.
	LogToFile bool
	LogPath   string

	// Resource budgets.
	WorkerCount     int
	TotalBudget     uint64
	PerWorkerBudget uint64
	QueueCapacity   int
	WatchDebounceMs int
}

// Load reads the TOML config at path, applies defaults for anything missing
// or out of range, and derives the resource budgets. A missing file is not
// fatal; an unreadable or unparsable one is.
func Load(path string, mode types.Mode, verbose bool, log *zap.SugaredLogger) (*Config, error) {
	var fc fileConfig
	fc.Settings.RAMUsagePercent = defaultRAMPercent
	fc.Settings.WatchDebounceMs = defaultWatchDebounce
	fc.Database.DBSizeMB = defaultDBSizeMB
	fc.Database.DBPath = DefaultDBPath
	fc.Logging.LogPath = DefaultLogPath
	fc.Scanning.MaxRecursionDepth = defaultMaxDepth
	fc.Scanning.ExcludeHidden = true

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Warnf("config file %s not found, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg := &Config{
		Mode:             mode,
		Verbose:          verbose,
		ExcludeHidden:    fc.Scanning.ExcludeHidden,
		DBPath:           fc.Database.DBPath,
		DBNoSync:         fc.Database.DBNoSync,
		DBNoFreelistSync: fc.Database.DBNoMeta,
		DBNoGrowSync:     fc.Database.DBMapAsync,
		LogToFile:        fc.Logging.LogToFileEnabled,
		LogPath:          fc.Logging.LogPath,
		WatchDebounceMs:  fc.Settings.WatchDebounceMs,
	}
	if fc.Database.DBWriteMap {
		log.Warnf("config: db_writemap has no effect with this store backend, ignoring")
	}

	if fc.Database.DBSizeMB < minDBSizeMB {
		if fc.Database.DBSizeMB != defaultDBSizeMB {
			log.Warnf("config: db_size_mb %d below minimum %d, using default %d",
				fc.Database.DBSizeMB, minDBSizeMB, defaultDBSizeMB)
		}
		fc.Database.DBSizeMB = defaultDBSizeMB
	}
	cfg.DBMaxSize = fc.Database.DBSizeMB * 1024 * 1024

	depth := fc.Scanning.MaxRecursionDepth
	if depth < 0 || depth > maxMaxDepth {
		log.Warnf("config: max_recursion_depth %d out of range [0,%d], using default %d",
			depth, maxMaxDepth, defaultMaxDepth)
		depth = defaultMaxDepth
	}
	cfg.MaxDepth = depth

	roots := splitList(fc.Scanning.Directories, ",")
	if len(roots) == 0 {
		return nil, ErrNoDirectories
	}
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("config: resolving root %q: %w", r, err)
		}
		cfg.Roots = append(cfg.Roots, abs)
	}

	cfg.ExcludeDirs = toSet(splitList(fc.Scanning.ExcludeDirs, ";"))
	cfg.ExcludeExts = toSet(splitList(fc.Scanning.ExcludeExts, ";"))
	cfg.ExcludePatterns = splitList(fc.Scanning.ExcludePatterns, ";")

	percent := fc.Settings.RAMUsagePercent
	if percent < minRAMPercent || percent > maxRAMPercent {
		log.Warnf("config: ram_usage_percent %d out of range [%d,%d], using default %d",
			percent, minRAMPercent, maxRAMPercent, defaultRAMPercent)
		percent = defaultRAMPercent
	}

	cfg.WorkerCount = deriveWorkerCount(fc.Settings.ThreadsCount, log)
	cfg.TotalBudget = availableRAM(log) * uint64(percent) / 100
	cfg.PerWorkerBudget = cfg.TotalBudget / uint64(cfg.WorkerCount)
	cfg.QueueCapacity = queueCapacity(cfg.TotalBudget)

	return cfg, nil
}

// deriveWorkerCount caps the configured thread count at the host-derived
// value. Two cores are reserved: one for the scanner and one for the
// dispatcher, with a floor of one worker.
func deriveWorkerCount(configured int, log *zap.SugaredLogger) int {
	hostDerived := runtime.NumCPU() - 2
	if hostDerived < 1 {
		hostDerived = 1
	}
	if configured <= 0 {
		return hostDerived
	}
	if configured > hostDerived {
		log.Warnf("config: threads_count %d exceeds host-derived %d, using %d",
			configured, hostDerived, hostDerived)
		return hostDerived
	}
	return configured
}

// queueCapacity reserves a tenth of the memory budget for queued paths,
// assuming an average path of 256 bytes.
func queueCapacity(totalBudget uint64) int {
	capacity := totalBudget / queueMemoryFactor / averagePathLength
	if capacity > math.MaxInt32 {
		return math.MaxInt32
	}
	if capacity < 1 {
		return 1
	}
	return int(capacity)
}

// availableRAM reports the free physical memory on the host. Falls back to
// a conservative 1 GiB when the syscall is unavailable.
func availableRAM(log *zap.SugaredLogger) uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		log.Warnf("config: sysinfo failed (%v), assuming %d bytes free", err, uint64(fallbackAvailableRAM))
		return fallbackAvailableRAM
	}
	return uint64(info.Freeram) * uint64(info.Unit)
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
