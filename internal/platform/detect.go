package platform

import (
	"bufio"
	"context"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/renderhost/chrome-installer/internal/executor"
	"github.com/renderhost/chrome-installer/internal/logging"
)

var log = logging.L("platform")

const probeTimeout = 5 * time.Second

// DefaultOSReleasePaths are read in order; the first existing file wins.
var DefaultOSReleasePaths = []string{"/etc/os-release", "/usr/lib/os-release"}

// DistroDetector is one tier of distro detection.
type DistroDetector interface {
	Name() string
	Detect(ctx context.Context) (Distro, bool)
}

// Detector identifies OS, architecture and distro family. It only reads
// system state and never fails: anything it cannot determine is unknown.
type Detector struct {
	goos           string
	goarch         string
	runner         executor.Runner
	osReleasePaths []string
	hostInfo       func(ctx context.Context) (*host.InfoStat, error)
}

// NewDetector returns a Detector for the running host.
func NewDetector(runner executor.Runner) *Detector {
	return &Detector{
		goos:           runtime.GOOS,
		goarch:         runtime.GOARCH,
		runner:         runner,
		osReleasePaths: DefaultOSReleasePaths,
		hostInfo:       host.InfoWithContext,
	}
}

// WithPlatform overrides the detected OS and architecture.
func (d *Detector) WithPlatform(goos, goarch string) *Detector {
	d.goos = goos
	d.goarch = goarch
	return d
}

// WithOSReleasePaths overrides the os-release files consulted.
func (d *Detector) WithOSReleasePaths(paths ...string) *Detector {
	d.osReleasePaths = paths
	return d
}

// WithHostInfo overrides the gopsutil host lookup.
func (d *Detector) WithHostInfo(fn func(ctx context.Context) (*host.InfoStat, error)) *Detector {
	d.hostInfo = fn
	return d
}

// Detect returns the host environment.
func (d *Detector) Detect(ctx context.Context) Environment {
	env := Environment{OS: d.goos, Arch: d.goarch, Distro: DistroUnknown}

	if d.hostInfo != nil {
		if info, err := d.hostInfo(ctx); err == nil && info != nil {
			env.PlatformName = info.Platform
			env.PlatformVersion = info.PlatformVersion
			env.KernelVersion = info.KernelVersion
		} else if err != nil {
			log.Debug("host info unavailable", logging.KeyError, err)
		}
	}

	if env.IsLinux() {
		env.Distro = DetectDistro(ctx, d.Detectors()...)
	}
	return env
}

// Detectors returns the distro tiers in priority order: os-release first,
// then package-manager probes.
func (d *Detector) Detectors() []DistroDetector {
	return []DistroDetector{
		OSReleaseDetector{Paths: d.osReleasePaths},
		PackageManagerDetector{Binary: "apt", Distro: DistroDebian, Runner: d.runner},
		PackageManagerDetector{Binary: "dnf", Distro: DistroFedora, Runner: d.runner},
		PackageManagerDetector{Binary: "pacman", Distro: DistroArch, Runner: d.runner},
	}
}

// DetectDistro tries each detector in order and returns the first match.
func DetectDistro(ctx context.Context, detectors ...DistroDetector) (distro Distro) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("distro detection panicked", "panic", r)
			distro = DistroUnknown
		}
	}()

	for _, det := range detectors {
		if ctx.Err() != nil {
			break
		}
		if found, ok := det.Detect(ctx); ok {
			log.Debug("distro detected", "detector", det.Name(), "distro", found)
			return found
		}
	}
	return DistroUnknown
}

// OSReleaseDetector classifies the distro from an os-release file.
type OSReleaseDetector struct {
	Paths []string
}

func (o OSReleaseDetector) Name() string { return "os-release" }

func (o OSReleaseDetector) Detect(ctx context.Context) (Distro, bool) {
	for _, path := range o.Paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		fields := ParseOSRelease(f)
		f.Close()
		return ClassifyOSRelease(fields)
	}
	return DistroUnknown, false
}

// ParseOSRelease reads KEY=VALUE lines, dropping comments and quotes.
func ParseOSRelease(r io.Reader) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return fields
}

// familyIDs lists os-release identifiers per family, checked in order.
var familyIDs = []struct {
	distro Distro
	ids    []string
}{
	{DistroDebian, []string{"debian", "ubuntu"}},
	{DistroFedora, []string{"fedora", "rhel", "centos"}},
	{DistroSUSE, []string{"opensuse", "suse", "sles"}},
	{DistroArch, []string{"arch", "manjaro"}},
}

// ClassifyOSRelease maps ID and the ID_LIKE chain onto a distro family.
func ClassifyOSRelease(fields map[string]string) (Distro, bool) {
	tokens := strings.Fields(strings.ToLower(fields["ID_LIKE"]))
	if id := strings.ToLower(fields["ID"]); id != "" {
		tokens = append([]string{id}, tokens...)
	}

	for _, family := range familyIDs {
		for _, token := range tokens {
			for _, id := range family.ids {
				// opensuse-leap, opensuse-tumbleweed, ...
				if token == id || strings.HasPrefix(token, id+"-") {
					return family.distro, true
				}
			}
		}
	}
	return DistroUnknown, false
}

// PackageManagerDetector matches when "<binary> --version" succeeds.
type PackageManagerDetector struct {
	Binary string
	Distro Distro
	Runner executor.Runner
}

func (p PackageManagerDetector) Name() string { return p.Binary }

func (p PackageManagerDetector) Detect(ctx context.Context) (Distro, bool) {
	if p.Runner == nil {
		return DistroUnknown, false
	}
	_, err := p.Runner.Run(ctx, executor.Command{
		Name:    p.Binary,
		Args:    []string{"--version"},
		Timeout: probeTimeout,
	})
	if err != nil {
		return DistroUnknown, false
	}
	return p.Distro, true
}
