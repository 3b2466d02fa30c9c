package ebpf

// Generates factAgentObjects / loadFactAgentObjects, and the matching
// small check programs used by preflight.go, from the C sources in
// ../../bpf. Requires clang, bpftool, and a kernel BTF dump
// (vmlinux.h) on the machine running `go generate`; the generated
// *_bpfel.go bindings are not checked in, the same way the upstream
// cilium/ebpf examples keep generated eBPF bindings out of version
// control.

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -cc clang -cflags "-O2 -g -Wall" factAgent ../../bpf/main.c -- -I../../bpf
//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -cc clang -cflags "-O2 -g -Wall" factAgentChecks ../../bpf/checks.c -- -I../../bpf
