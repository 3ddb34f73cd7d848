package infra

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/eliteGoblin/osmigrate/internal/domain"
)

var (
	// distroPattern captures the distribution name preceding the (optional)
	// "release" word and the version number.
	distroPattern = regexp.MustCompile(`(.+?)\s?(?:release\s?)?\d`)
	// versionPattern captures the two-component version.
	versionPattern = regexp.MustCompile(`.+?(\d+)\.(\d+)\D?`)
)

// HostInfo implements domain.HostInspector against the system-release file.
type HostInfo struct {
	releasePath string
	logger      *zap.Logger
}

// NewHostInfo creates a host inspector.
func NewHostInfo(releasePath string, logger *zap.Logger) *HostInfo {
	return &HostInfo{releasePath: releasePath, logger: logger}
}

// DistroVersion reads and parses the system identity line. A platform
// snapshot is logged alongside for run forensics.
func (h *HostInfo) DistroVersion() (string, string, error) {
	h.logger.Info("checking OS distribution and version ID")
	LogPlatform(h.logger)

	line, err := ReadSystemIdentity(h.releasePath)
	if err != nil {
		return "", "", err
	}
	dist, version := ParseSystemRelease(line)
	h.logger.Info("detected distribution",
		zap.String("distribution", dist),
		zap.String("version", version))
	return dist, version, nil
}

// Ensure HostInfo implements domain.HostInspector.
var _ domain.HostInspector = (*HostInfo)(nil)

// ReadSystemIdentity returns the first line of the system-release file.
func ReadSystemIdentity(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("couldn't read '%s': %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("couldn't read '%s': %w", path, err)
		}
		return "", nil
	}
	return scanner.Text(), nil
}

// ParseSystemRelease extracts a lowercase distribution name and a
// two-component version from a system identity line. Either result may be
// empty when the line does not match.
func ParseSystemRelease(line string) (dist, version string) {
	if m := distroPattern.FindStringSubmatch(line); m != nil {
		dist = strings.ToLower(strings.TrimSpace(m[1]))
	}
	if m := versionPattern.FindStringSubmatch(line); m != nil {
		version = m[1] + "." + m[2]
	}
	return dist, version
}

// LogPlatform logs a best-effort host snapshot for run forensics.
func LogPlatform(logger *zap.Logger) {
	info, err := host.Info()
	if err != nil {
		logger.Warn("failed to read host info", zap.Error(err))
		return
	}
	logger.Info("host platform",
		zap.String("hostname", info.Hostname),
		zap.String("platform", info.Platform),
		zap.String("platform_version", info.PlatformVersion),
		zap.String("kernel", info.KernelVersion))
}

// ProcessScannerImpl implements domain.ProcessScanner using gopsutil.
type ProcessScannerImpl struct{}

// NewProcessScanner creates a process scanner.
func NewProcessScanner() domain.ProcessScanner {
	return &ProcessScannerImpl{}
}

// FindByName returns PIDs of processes whose name matches the pattern
// (case-insensitive), excluding the current process.
func (s *ProcessScannerImpl) FindByName(pattern string) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	self := os.Getpid()
	patternLower := strings.ToLower(pattern)

	var found []int
	for _, p := range procs {
		if int(p.Pid) == self {
			continue
		}
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if strings.Contains(strings.ToLower(name), patternLower) {
			found = append(found, int(p.Pid))
		}
	}
	return found, nil
}

// Ensure ProcessScannerImpl implements domain.ProcessScanner.
var _ domain.ProcessScanner = (*ProcessScannerImpl)(nil)
