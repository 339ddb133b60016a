// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/appmgr/lib/iofmt"
	"github.com/bureau-foundation/appmgr/lib/manifest"
	"github.com/bureau-foundation/appmgr/lib/pkgid"
)

// commandRecorder replaces exec.CommandContext with a re-invocation of
// the test binary running TestHelperProcess.
type commandRecorder struct {
	mu          sync.Mutex
	invocations [][]string

	mode     string // "", "echo" or "sleep"
	stdout   string
	stderr   string
	exitCode int
}

func (r *commandRecorder) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	r.mu.Lock()
	r.invocations = append(r.invocations, append([]string{name}, args...))
	r.mu.Unlock()

	helperArgs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
	cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
	cmd.Env = []string{
		"GO_WANT_HELPER_PROCESS=1",
		"GO_HELPER_MODE=" + r.mode,
		"GO_HELPER_STDOUT=" + r.stdout,
		"GO_HELPER_STDERR=" + r.stderr,
		"GO_HELPER_EXIT_CODE=" + strconv.Itoa(r.exitCode),
	}
	return cmd
}

func (r *commandRecorder) last(t *testing.T) []string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.invocations) == 0 {
		t.Fatal("no engine invocations recorded")
	}
	return r.invocations[len(r.invocations)-1]
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("GO_HELPER_MODE") {
	case "echo":
		io.Copy(os.Stdout, os.Stdin)
	case "sleep":
		time.Sleep(time.Minute)
	}
	fmt.Fprint(os.Stdout, os.Getenv("GO_HELPER_STDOUT"))
	fmt.Fprint(os.Stderr, os.Getenv("GO_HELPER_STDERR"))
	code, _ := strconv.Atoi(os.Getenv("GO_HELPER_EXIT_CODE"))
	os.Exit(code)
}

func newTestRuntime(recorder *commandRecorder) *Runtime {
	return New(Podman, "podman", WithExecCommand(recorder.command))
}

func argsContain(args []string, sequence ...string) bool {
	for index := range args {
		if index+len(sequence) <= len(args) && slices.Equal(args[index:index+len(sequence)], sequence) {
			return true
		}
	}
	return false
}

func testAction(format iofmt.Format) Action {
	return Action{
		Package: "hello-world",
		Version: pkgid.MustParseVersion("0.3.0"),
		Name:    "config-get",
		Action: manifest.DockerAction{
			Image:      "main",
			Entrypoint: "config",
			Args:       []string{"get"},
			IOFormat:   format,
			ShmSizeMB:  64,
		},
		Mounts: []Mount{{Source: "/var/lib/appmgr/volumes/hello-world/data/main", Target: "/root"}},
	}
}

func TestMountArg(t *testing.T) {
	mount := Mount{Source: "/a", Target: "/b"}
	if got := mount.Arg(); got != "type=bind,src=/a,dst=/b" {
		t.Errorf("Arg() = %q", got)
	}
	mount.ReadOnly = true
	if got := mount.Arg(); got != "type=bind,src=/a,dst=/b,readonly" {
		t.Errorf("Arg() read-only = %q", got)
	}
}

func TestLoadImageStreamsStdin(t *testing.T) {
	recorder := &commandRecorder{mode: "echo"}
	runtime := newTestRuntime(recorder)

	if err := runtime.LoadImage(context.Background(), strings.NewReader("image tarball")); err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if got := recorder.last(t); !slices.Equal(got, []string{"podman", "load"}) {
		t.Errorf("invocation = %v, want [podman load]", got)
	}
}

func TestExecuteRoundTripsIOFormat(t *testing.T) {
	recorder := &commandRecorder{mode: "echo"}
	runtime := newTestRuntime(recorder)

	input := map[string]any{"rpc-user": "satoshi"}
	output, err := runtime.Execute(context.Background(), testAction(iofmt.YAML), input)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var decoded map[string]string
	if err := output.Decode(&decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded["rpc-user"] != "satoshi" {
		t.Errorf("decoded = %v", decoded)
	}

	args := recorder.last(t)
	for _, want := range [][]string{
		{"run", "--rm", "--name", "hello-world.appmgr_config-get"},
		{"--interactive"},
		{"--entrypoint", "config"},
		{"--mount", "type=bind,src=/var/lib/appmgr/volumes/hello-world/data/main,dst=/root"},
		{"--shm-size", "64m"},
		{"start9/hello-world/main:0.3.0", "get"},
	} {
		if !argsContain(args, want...) {
			t.Errorf("invocation %v missing %v", args, want)
		}
	}
}

func TestExecuteRejectsInputWithoutFormat(t *testing.T) {
	recorder := &commandRecorder{}
	runtime := newTestRuntime(recorder)

	_, err := runtime.Execute(context.Background(), testAction(""), map[string]any{"a": 1})
	if err == nil {
		t.Fatal("Execute succeeded with input and no io-format")
	}
	if len(recorder.invocations) != 0 {
		t.Errorf("engine invoked %d times, want 0", len(recorder.invocations))
	}
}

func TestOutputValueFallsBackToRawString(t *testing.T) {
	recorder := &commandRecorder{stdout: "{not json\n"}
	runtime := newTestRuntime(recorder)

	output, err := runtime.Execute(context.Background(), testAction(iofmt.JSON), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := output.Value(); got != "{not json" {
		t.Errorf("Value() = %#v, want raw string", got)
	}
	if argsContain(recorder.last(t), "--interactive") {
		t.Error("--interactive passed without input")
	}

	recorder.stdout = `{"configured": true}`
	output, err = runtime.Execute(context.Background(), testAction(iofmt.JSON), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	value, ok := output.Value().(map[string]any)
	if !ok || value["configured"] != true {
		t.Errorf("Value() = %#v, want decoded map", output.Value())
	}
}

func TestRuntimeErrorCarriesExitCodeAndStderr(t *testing.T) {
	recorder := &commandRecorder{stderr: "Error: image not known\n", exitCode: 125}
	runtime := newTestRuntime(recorder)

	err := runtime.Start(context.Background(), "hello-world.appmgr")
	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("error = %v, want *RuntimeError", err)
	}
	if runtimeErr.ExitCode != 125 {
		t.Errorf("ExitCode = %d, want 125", runtimeErr.ExitCode)
	}
	if runtimeErr.Stderr != "Error: image not known" {
		t.Errorf("Stderr = %q", runtimeErr.Stderr)
	}
	if runtimeErr.Retryable() {
		t.Error("non-timeout failure reported retryable")
	}
	if !IsRuntimeError(err) {
		t.Error("IsRuntimeError = false")
	}
}

func TestRuntimeErrorTimeout(t *testing.T) {
	recorder := &commandRecorder{mode: "sleep"}
	runtime := newTestRuntime(recorder)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := runtime.LoadImage(ctx, strings.NewReader(""))
	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("error = %v, want *RuntimeError", err)
	}
	if !runtimeErr.TimedOut || !runtimeErr.Retryable() {
		t.Errorf("TimedOut = %v, Retryable = %v, want both true", runtimeErr.TimedOut, runtimeErr.Retryable())
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("timeout error does not wrap context.DeadlineExceeded")
	}
}

func TestLifecycleCommands(t *testing.T) {
	recorder := &commandRecorder{stdout: "4f2a9c\n"}
	runtime := newTestRuntime(recorder)
	ctx := context.Background()
	name := ContainerName("hello-world")

	id, err := runtime.Create(ctx, testAction(""))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "4f2a9c" {
		t.Errorf("Create id = %q", id)
	}
	if !argsContain(recorder.last(t), "create", "--name", name, "--hostname", name) {
		t.Errorf("create invocation = %v", recorder.last(t))
	}

	if err := runtime.Stop(ctx, name, 30*time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !slices.Equal(recorder.last(t), []string{"podman", "stop", "--time", "30", name}) {
		t.Errorf("stop invocation = %v", recorder.last(t))
	}
	if err := runtime.Restart(ctx, name); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if err := runtime.Remove(ctx, name); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !slices.Equal(recorder.last(t), []string{"podman", "rm", "--force", name}) {
		t.Errorf("rm invocation = %v", recorder.last(t))
	}
}

func TestRemoveMissingContainer(t *testing.T) {
	recorder := &commandRecorder{stderr: "Error: no such container hello-world.appmgr", exitCode: 1}
	runtime := newTestRuntime(recorder)

	if err := runtime.Remove(context.Background(), ContainerName("hello-world")); err != nil {
		t.Errorf("Remove of missing container = %v, want nil", err)
	}
}

func TestDetectRejectsUnknownEngine(t *testing.T) {
	if _, err := Detect("lxc"); err == nil {
		t.Error("Detect(lxc) succeeded")
	}
}
