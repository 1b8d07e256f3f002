package conversation

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/cpuid/v2"
)

// SystemInfo describes the machine and the pipeline the assistant runs on.
// It is appended to the system prompt so the model can answer questions
// about itself, the date and the time.
type SystemInfo struct {
	OS       string
	Arch     string
	CPU      string
	Cores    int
	Hostname string

	// Components names the pipeline stages, e.g. "whisper speech-to-text".
	Components []string
}

// GatherSystemInfo inspects the running host.
func GatherSystemInfo(components ...string) SystemInfo {
	info := SystemInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPU:        strings.TrimSpace(cpuid.CPU.BrandName),
		Cores:      cpuid.CPU.PhysicalCores,
		Components: components,
	}
	if info.Cores <= 0 {
		info.Cores = runtime.NumCPU()
	}
	if f, err := os.Open("/etc/os-release"); err == nil {
		if name := parseOSRelease(f); name != "" {
			info.OS = name
		}
		_ = f.Close()
	}
	if h, err := os.Hostname(); err == nil {
		info.Hostname = h
	}
	return info
}

// parseOSRelease returns PRETTY_NAME, or NAME and VERSION joined, from an
// os-release file.
func parseOSRelease(r io.Reader) string {
	vals := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		k, v, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok || strings.HasPrefix(k, "#") {
			continue
		}
		vals[k] = strings.Trim(v, `"'`)
	}
	if p := vals["PRETTY_NAME"]; p != "" {
		return p
	}
	return strings.TrimSpace(vals["NAME"] + " " + vals["VERSION"])
}

// Describe renders the information as prompt text, stamped with now.
func (s SystemInfo) Describe(now time.Time) string {
	var b strings.Builder
	b.WriteString("You are a voice assistant made of several components working together")
	if len(s.Components) > 0 {
		b.WriteString(": " + strings.Join(s.Components, ", "))
	}
	b.WriteString(". You are the language model part. ")
	b.WriteString("Here is your system information; keep it brief and friendly when you talk about it.\n")

	fmt.Fprintf(&b, "Current time: %s\n", now.Format("Monday, 2 January 2006 15:04 MST"))
	fmt.Fprintf(&b, "Operating system: %s (%s)\n", s.OS, s.Arch)
	switch {
	case s.CPU != "" && s.Cores > 0:
		fmt.Fprintf(&b, "Processor: %s, %d cores\n", s.CPU, s.Cores)
	case s.Cores > 0:
		fmt.Fprintf(&b, "Processor: %d cores\n", s.Cores)
	}
	if s.Hostname != "" {
		fmt.Fprintf(&b, "Hostname: %s\n", s.Hostname)
	}
	b.WriteString("When asked about the date or time, use the values above, not your training data.")
	return b.String()
}
