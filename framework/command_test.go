package framework

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func linuxBuilder() CommandBuilder {
	return NewCommandBuilder(LookupPlatform("linux"))
}

func TestCommandBuilderCompileArguments(t *testing.T) {
	cfg := NewCompileConfiguration("/jdk/bin/javac", "/proj", "out", "src",
		[]string{"/proj/lib/a.jar", "/proj/lib/b.jar", "/ext/c.jar"}, "src/com/x/Main.java")
	cmd := linuxBuilder().Build(cfg)

	require.Equal(t, "/jdk/bin/javac", cmd.Path)
	require.Equal(t, "/proj", cmd.Dir)
	want := []string{
		"-cp", "/proj/lib/a.jar:/proj/lib/b.jar:/ext/c.jar",
		"-d", "out",
		"-sourcepath", "src",
		"src/com/x/Main.java",
	}
	if diff := cmp.Diff(want, cmd.Args); diff != "" {
		t.Fatalf("compile args mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandBuilderIsDeterministic(t *testing.T) {
	cfg := NewRunConfiguration("java", "/proj/out", []string{"lib/a.jar"}, "com/x/Main", `--name "hello world"`, "-Xmx64m")
	b := linuxBuilder()
	first := b.Build(cfg)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, b.Build(cfg)); diff != "" {
			t.Fatalf("build %d differs:\n%s", i, diff)
		}
	}
	require.Equal(t, first.String(), b.Build(cfg).String())
}

func TestCommandBuilderClasspathOrdering(t *testing.T) {
	ctx, err := NewProjectContext(ProjectConfig{
		Root:              "/proj",
		InternalLibraries: []string{"A.jar", "B.jar"},
		ExternalLibraries: []string{"/ext/C.jar"},
	}, func(ProjectConfig) string { return "" })
	require.NoError(t, err)

	cfg := NewCompileConfiguration("", "/proj", "", "", ctx.Libraries(), "Main.java")

	cmd := linuxBuilder().Build(cfg)
	require.Equal(t, []string{"-cp", "/proj/A.jar:/proj/B.jar:/ext/C.jar", "Main.java"}, cmd.Args)

	win := NewCommandBuilder(LookupPlatform("windows")).Build(cfg)
	require.Equal(t, "javac.exe", win.Path)
	require.Equal(t, []string{"-cp", "/proj/A.jar;/proj/B.jar;/ext/C.jar", "Main.java"}, win.Args)
}

func TestCommandBuilderRunArguments(t *testing.T) {
	cfg := NewRunConfiguration("/jdk/bin/java", "/proj/out",
		[]string{"lib/a.jar", "/opt/b.jar"}, "com/x/Main", `--name "hello world" -v`, "-Xmx64m -ea")
	cmd := linuxBuilder().Build(cfg)

	want := []string{
		"-Xmx64m", "-ea",
		"-cp", "./lib/a.jar:/opt/b.jar:.",
		"com/x/Main",
		"--name", "hello world", "-v",
	}
	if diff := cmp.Diff(want, cmd.Args); diff != "" {
		t.Fatalf("run args mismatch (-want +got):\n%s", diff)
	}

	win := NewCommandBuilder(LookupPlatform("windows")).Build(NewRunConfiguration("", "", []string{"lib/a.jar"}, "Main", "", ""))
	require.Equal(t, []string{"-cp", "./lib/a.jar;.", "Main"}, win.Args)
}

func TestCommandBuilderRunAlwaysIncludesCurrentDirectory(t *testing.T) {
	cmd := linuxBuilder().Build(NewRunConfiguration("", "/tmp", nil, "Main", "", ""))
	require.Equal(t, "java", cmd.Path)
	require.Equal(t, []string{"-cp", ".", "Main"}, cmd.Args)
}

func TestCommandBuilderRunIgnoresCompileOnlyFields(t *testing.T) {
	cfg := ToolConfiguration{
		Tool:            ToolRun,
		OutputDirectory: "out",
		SourcePath:      "src",
		TargetPath:      "Main",
	}
	cmd := linuxBuilder().Build(cfg)
	require.NotContains(t, cmd.Args, "-d")
	require.NotContains(t, cmd.Args, "-sourcepath")
}

func TestCommandBuilderDegradesOnEmptyConfiguration(t *testing.T) {
	cmd := linuxBuilder().Build(ToolConfiguration{Tool: ToolCompile, Libraries: []string{"", "  "}})
	require.Equal(t, "javac", cmd.Path)
	require.Empty(t, cmd.Args)
}

func TestCommandBuilderFallsBackOnUnbalancedQuotes(t *testing.T) {
	cmd := linuxBuilder().Build(NewRunConfiguration("java", "", nil, "Main", `say "hi`, ""))
	require.Equal(t, []string{"-cp", ".", "Main", "say", `"hi`}, cmd.Args)
}

func TestCommandString(t *testing.T) {
	cmd := Command{Path: "java", Args: []string{"-cp", ".", "Main", "hello world"}}
	require.Equal(t, `java -cp . Main "hello world"`, cmd.String())
	require.Equal(t, []string{"java", "-cp", ".", "Main", "hello world"}, cmd.Argv())
}

func TestNormalizeRunTarget(t *testing.T) {
	cases := []struct {
		root, path, want string
	}{
		{"src", "src/com/x/Main.java", "com/x/Main"},
		{"./src", "./src/com/x/Main.java", "com/x/Main"},
		{"src/", "src/Main.java", "Main"},
		{"", "Main.java", "Main"},
		{"src", "test/Other.java", "test/Other"},
		{"src", "com/x/Main", "com/x/Main"},
		{"src", "src/src/Deep.java", "src/Deep"},
	}
	for _, tc := range cases {
		got := NormalizeRunTarget(tc.root, tc.path)
		require.Equal(t, tc.want, got, "root=%q path=%q", tc.root, tc.path)
		require.Equal(t, got, NormalizeRunTarget(tc.root, got), "normalization must be idempotent for %q", tc.path)
	}
}

func TestPlatformToolPath(t *testing.T) {
	linux := LookupPlatform("linux")
	require.Equal(t, filepath.Join("/usr/lib/jvm/jdk", "bin", "javac"), linux.ToolPath("/usr/lib/jvm/jdk", "javac"))
	require.Equal(t, "java", linux.ToolPath("", "java"))
	require.Equal(t, "java", linux.ToolPath("   ", "java"))

	win := LookupPlatform("windows")
	require.Equal(t, filepath.Join("C:/jdk", "bin", "javac.exe"), win.ToolPath("C:/jdk", "javac"))
	require.Equal(t, "java.exe", win.ToolPath("", "java"))

	mac := LookupPlatform("darwin")
	require.Equal(t, filepath.Join("/Library/Java/jdk-21.jdk", "Contents", "Home", "bin", "java"), mac.ToolPath("/Library/Java/jdk-21.jdk", "java"))
	require.Equal(t, filepath.Join("/opt/jdk", "bin", "java"), mac.ToolPath("/opt/jdk", "java"))

	require.Equal(t, "unix", LookupPlatform("plan9").Name)
}

func TestRegisterPlatform(t *testing.T) {
	RegisterPlatform("testos", Platform{BinSubpath: "tools", ListSeparator: "|"})
	defer unregisterPlatform("testos")

	p := LookupPlatform("testos")
	require.Equal(t, "testos", p.Name)
	cmd := NewCommandBuilder(p).Build(NewCompileConfiguration("", "", "", "", []string{"a", "b"}, "X.java"))
	require.Equal(t, []string{"-cp", "a|b", "X.java"}, cmd.Args)
}

func TestRegisterPlatformConcurrentWithLookup(t *testing.T) {
	defer unregisterPlatform("raceos")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			RegisterPlatform("raceos", Platform{BinSubpath: "bin", ListSeparator: ":"})
		}()
		go func() {
			defer wg.Done()
			_ = HostPlatform()
			_ = LookupPlatform("raceos")
		}()
	}
	wg.Wait()
	require.Equal(t, "raceos", LookupPlatform("raceos").Name)
}

func unregisterPlatform(goos string) {
	platformsMu.Lock()
	delete(platforms, goos)
	platformsMu.Unlock()
}
