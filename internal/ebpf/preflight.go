package ebpf

import (
	"fmt"
	"os"
	"strings"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/btf"
	"github.com/cilium/ebpf/features"

	"github.com/espegro/fact-agent/internal/logger"
	"github.com/espegro/fact-agent/internal/types"
)

// PreflightError names the missing kernel feature so main can print a
// diagnostic and pick the pre-flight exit code.
type PreflightError struct {
	Feature string
	Err     error
}

func (e *PreflightError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kernel feature %q unavailable: %v", e.Feature, e.Err)
	}
	return fmt.Sprintf("kernel feature %q unavailable", e.Feature)
}

func (e *PreflightError) Unwrap() error { return e.Err }

const lsmConfigPath = "/sys/kernel/security/lsm"

// bpfLSMEnabled checks that "bpf" is in the kernel's active LSM list
func bpfLSMEnabled() error {
	data, err := os.ReadFile(lsmConfigPath)
	if err != nil {
		return fmt.Errorf("reading LSM configuration: %w", err)
	}
	for _, lsm := range strings.Split(strings.TrimSpace(string(data)), ",") {
		if lsm == "bpf" {
			return nil
		}
	}
	return fmt.Errorf("\"bpf\" not present in %s (%q)", lsmConfigPath, strings.TrimSpace(string(data)))
}

// Preflight verifies the kernel features the agent cannot run without:
// BPF LSM (configured and loadable), BTF type information, and the
// ring buffer map type. Returns a *PreflightError naming the first
// missing feature.
func Preflight() error {
	if err := bpfLSMEnabled(); err != nil {
		return &PreflightError{Feature: "bpf-lsm", Err: err}
	}

	if err := features.HaveProgramType(ebpf.LSM); err != nil {
		return &PreflightError{Feature: "lsm-program-type", Err: err}
	}

	if _, err := btf.LoadKernelSpec(); err != nil {
		return &PreflightError{Feature: "kernel-btf", Err: err}
	}

	if err := features.HaveMapType(ebpf.RingBuf); err != nil {
		return &PreflightError{Feature: "ringbuf-map-type", Err: err}
	}

	return nil
}

// Features holds the per-hook feature-probe results published into the
// kernel's runtime flags before the main programs attach.
type Features struct {
	DPathSupport [types.HookCount]bool
}

// checkProgramNames maps each hook to its probe program in bpf/checks.c
var checkProgramNames = map[types.HookID]string{
	types.HookFileOpen:   "check_file_open_supports_bpf_d_path",
	types.HookPathUnlink: "check_path_unlink_supports_bpf_d_path",
	types.HookPathChmod:  "check_path_chmod_supports_bpf_d_path",
	types.HookPathChown:  "check_path_chown_supports_bpf_d_path",
}

// probeProgram attempts to load a single probe program; acceptance by
// the verifier is the feature signal, the program is never attached.
func probeProgram(spec *ebpf.CollectionSpec, name string) bool {
	progSpec, ok := spec.Programs[name]
	if !ok {
		return false
	}
	prog, err := ebpf.NewProgram(progSpec)
	if err != nil {
		return false
	}
	prog.Close()
	return true
}

// ProbeFeatures loads the small check programs from bpf/checks.c one
// at a time and records which ones the running kernel's verifier
// accepts.
func ProbeFeatures() (Features, error) {
	var f Features

	spec, err := loadFactAgentChecks()
	if err != nil {
		return f, fmt.Errorf("loading check program spec: %w", err)
	}

	for hook, name := range checkProgramNames {
		f.DPathSupport[hook] = probeProgram(spec, name)
		logger.Debug("bpf_d_path on %s: supported=%v", hook, f.DPathSupport[hook])
	}

	return f, nil
}
