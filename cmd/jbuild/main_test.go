package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexcodex/jbuild/cmd/internal/projectcfg"
)

const fakeJavac = `#!/bin/sh
for a; do last=$a; done
if grep -q BROKEN "$last" 2>/dev/null; then
  echo "$last:1: error: broken source" >&2
  exit 3
fi
echo "compiling $last" >&2
exit 0
`

const fakeJava = `#!/bin/sh
echo "ran $*"
case "$*" in
  *exit7*) exit 7 ;;
esac
exit 0
`

// writeFakeJDK lays out a JDK root whose javac and java are shell scripts.
func writeFakeJDK(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake JDK uses /bin/sh scripts")
	}
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "javac"), []byte(fakeJavac), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "java"), []byte(fakeJava), 0o755))
	return root
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunBareFile(t *testing.T) {
	jdk := writeFakeJDK(t)
	file := writeFile(t, filepath.Join(t.TempDir(), "Hello.java"), "class Hello {}\n")

	stdout, stderr, err := execute(t, "--jdk", jdk, "run", file)
	require.NoError(t, err)
	require.Equal(t, "ran -cp . Hello\n", stdout)
	require.Contains(t, stderr, "compiling "+file)
}

func TestRunSkipsProgramWhenCompileFails(t *testing.T) {
	jdk := writeFakeJDK(t)
	file := writeFile(t, filepath.Join(t.TempDir(), "Broken.java"), "class Broken { BROKEN }\n")

	stdout, stderr, err := execute(t, "--jdk", jdk, "run", file)
	require.Equal(t, exitError{code: 3}, err)
	require.NotContains(t, stdout, "ran")
	require.Contains(t, stderr, "error: broken source")
	require.Contains(t, stderr, "FAIL")
}

func TestRunInBackgroundMode(t *testing.T) {
	jdk := writeFakeJDK(t)
	file := writeFile(t, filepath.Join(t.TempDir(), "Hello.java"), "class Hello {}\n")

	stdout, _, err := execute(t, "--jdk", jdk, "run", "--background", file)
	require.NoError(t, err)
	require.Equal(t, "ran -cp . Hello\n", stdout)
}

func TestProjectWorkflow(t *testing.T) {
	jdk := writeFakeJDK(t)
	root := t.TempDir()

	_, _, err := execute(t, "--project", root, "init")
	require.NoError(t, err)
	meta, found, err := projectcfg.Load(root)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "src", meta.SourcePath)
	require.DirExists(t, filepath.Join(root, "bin"))

	_, _, err = execute(t, "--project", root, "init")
	require.Error(t, err)

	// Registering by source path lands on the key the run step looks up.
	_, _, err = execute(t, "--project", root, "args", "set", filepath.Join("src", "com", "x", "Main.java"), "--program", "ada exit7")
	require.NoError(t, err)
	stdout, _, err := execute(t, "--project", root, "args", "list")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "com/x/Main\tprogram=\"ada exit7\""), stdout)

	file := writeFile(t, filepath.Join(root, "src", "com", "x", "Main.java"), "package com.x;\nclass Main {}\n")
	stdout, _, err = execute(t, "--project", root, "--jdk", jdk, "run", file)
	require.Equal(t, exitError{code: 7}, err)
	require.Equal(t, "ran -cp . com/x/Main ada exit7\n", stdout)

	stdout, _, err = execute(t, "--project", root, "history")
	require.NoError(t, err)
	require.Contains(t, stdout, file)
	require.Contains(t, stdout, "compile_and_run")
	require.Contains(t, stdout, "ran=true")

	_, _, err = execute(t, "--project", root, "args", "delete", file)
	require.NoError(t, err)
	stdout, _, err = execute(t, "--project", root, "args", "list")
	require.NoError(t, err)
	require.Empty(t, stdout)
}

func TestCompileWritesTelemetryAndMetrics(t *testing.T) {
	jdk := writeFakeJDK(t)
	root := t.TempDir()
	_, _, err := execute(t, "--project", root, "init")
	require.NoError(t, err)
	good := writeFile(t, filepath.Join(root, "src", "a", "Good.java"), "package a;\nclass Good {}\n")
	bad := writeFile(t, filepath.Join(root, "src", "a", "Bad.java"), "package a;\nclass Bad { BROKEN }\n")

	metricsFile := filepath.Join(t.TempDir(), "metrics.prom")
	eventsFile := filepath.Join(t.TempDir(), "events.jsonl")
	_, stderr, err := execute(t, "--project", root, "--jdk", jdk,
		"--metrics-file", metricsFile, "--telemetry", eventsFile,
		"compile", "-j", "2", good, bad)
	require.Equal(t, exitError{code: 1}, err)
	require.Contains(t, stderr, "ok "+good)
	require.Contains(t, stderr, "FAIL "+bad)

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	require.Contains(t, string(metrics), `jbuild_tasks_total{mode="compile"} 2`)
	require.Contains(t, string(metrics), `jbuild_compile_exit_total{result="failure"} 1`)

	events, err := os.ReadFile(eventsFile)
	require.NoError(t, err)
	require.Equal(t, 2, bytes.Count(events, []byte(`"type":"task_finish"`)))
}

func TestArgsCommandsTakeExactlyOneTarget(t *testing.T) {
	root := t.TempDir()
	_, _, err := execute(t, "--project", root, "init")
	require.NoError(t, err)

	_, _, err = execute(t, "--project", root, "args", "set", "com/x/Main", "com/x/Other", "--program", "a")
	require.Error(t, err)
	_, _, err = execute(t, "--project", root, "args", "set", "--program", "a")
	require.Error(t, err)
	_, _, err = execute(t, "--project", root, "args", "delete", "com/x/Main", "extra")
	require.Error(t, err)

	stdout, _, err := execute(t, "--project", root, "args", "list")
	require.NoError(t, err)
	require.Empty(t, stdout)

	// A run target that is already a class name is stored unchanged.
	_, _, err = execute(t, "--project", root, "args", "set", "com/x/Main", "--vm", "-Xmx8m")
	require.NoError(t, err)
	stdout, _, err = execute(t, "--project", root, "args", "list")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(stdout, "com/x/Main\tprogram=\"\"\tvm=\"-Xmx8m\""), stdout)
}

func TestProjectCommandsRequireMetadata(t *testing.T) {
	_, _, err := execute(t, "--project", t.TempDir(), "args", "list")
	require.Error(t, err)
	_, _, err = execute(t, "--project", t.TempDir(), "history")
	require.Error(t, err)
}
