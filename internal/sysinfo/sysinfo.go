// Package sysinfo reports host resources and the versions of the workflow
// tooling installed on the host.
package sysinfo

import (
	"context"
	"math"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// NotAvailable is shown for values that could not be determined.
const NotAvailable = "N/A"

const gib = 1 << 30

// Host describes the machine the console runs on. Sizes are in GiB rounded
// to two decimals.
type Host struct {
	CPUCount  int     `json:"cpu_count"`
	CPUModel  string  `json:"cpu_model"`
	RAMTotal  float64 `json:"ram_total"`
	DiskUsed  float64 `json:"disk_used"`
	DiskTotal float64 `json:"disk_total"`
	DiskFree  float64 `json:"disk_free"`
	OSName    string  `json:"os_name"`
	OSVersion string  `json:"os_version"`
}

// Collect gathers host information. Individual probes that fail leave their
// fields at zero or NotAvailable. Disk usage is measured at dir (the home
// directory when empty).
func Collect(ctx context.Context, dir string) Host {
	h := Host{CPUModel: NotAvailable, OSName: NotAvailable, OSVersion: NotAvailable}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		h.CPUCount = n
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		h.CPUModel = infos[0].ModelName
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.RAMTotal = toGiB(vm.Total)
	}
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = home
		} else {
			dir = "/"
		}
	}
	if du, err := disk.UsageWithContext(ctx, dir); err == nil {
		h.DiskUsed = toGiB(du.Used)
		h.DiskTotal = toGiB(du.Total)
		h.DiskFree = toGiB(du.Free)
	}
	if hi, err := host.InfoWithContext(ctx); err == nil {
		if hi.Platform != "" {
			h.OSName = hi.Platform
		}
		if hi.PlatformVersion != "" {
			h.OSVersion = hi.PlatformVersion
		}
	}
	return h
}

func toGiB(b uint64) float64 {
	return math.Round(float64(b)/gib*100) / 100
}

// Software is the detected state of one tool.
type Software struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Version   string `json:"version"`
}

// Status returns "Available" or "Not Available".
func (s Software) Status() string {
	if s.Available {
		return "Available"
	}
	return "Not Available"
}

// Runner runs a command and returns its combined stdout.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// ExecRunner runs commands on the host.
func ExecRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

type probe struct {
	name  string
	cmd   []string
	parse func(out string) string
}

func field(i int) func(string) string {
	return func(out string) string {
		fields := strings.Fields(firstLine(out))
		j := i
		if j < 0 {
			j += len(fields)
		}
		if j < 0 || j >= len(fields) {
			return ""
		}
		return fields[j]
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

var probes = []probe{
	{"AWS CLI", []string{"aws", "--version"}, func(out string) string {
		// aws-cli/2.15.0 Python/3.11.6 ...
		_, v, _ := strings.Cut(field(0)(out), "/")
		return v
	}},
	{"Nextflow", []string{"nextflow", "-v"}, field(-1)},
	{"Java", []string{"java", "--version"}, field(1)},
	{"Docker", []string{"docker", "version", "--format", "{{.Server.Version}}"}, firstLine},
	{"Apptainer", []string{"apptainer", "version"}, firstLine},
	{"Singularity", []string{"singularity", "version"}, firstLine},
}

// ProbeTimeout bounds each version command.
const ProbeTimeout = 5 * time.Second

// Versions detects the workflow tooling. A nil run uses ExecRunner.
func Versions(ctx context.Context, run Runner) []Software {
	if run == nil {
		run = ExecRunner
	}
	out := make([]Software, 0, len(probes))
	for _, p := range probes {
		s := Software{Name: p.name, Version: NotAvailable}
		pctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
		res, err := run(pctx, p.cmd[0], p.cmd[1:]...)
		cancel()
		if err == nil && strings.TrimSpace(res) != "" {
			s.Available = true
			if v := p.parse(res); v != "" {
				s.Version = v
			}
		}
		out = append(out, s)
	}
	return out
}
