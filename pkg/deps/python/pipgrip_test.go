package python

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/matzehuels/stackaudit/pkg/deps"
)

const pipgripOutput = `{
  "flask==2.3.3": {
    "werkzeug==3.0.1": {"markupsafe==2.1.3": {}},
    "jinja2==3.1.2": {"markupsafe==2.1.3": {}},
    "itsdangerous==2.1.2": {},
    "click==8.1.7": {},
    "blinker==1.6.2": {}
  }
}`

func TestParseTree(t *testing.T) {
	trees, err := ParseTree(strings.NewReader(pipgripOutput))
	if err != nil {
		t.Fatalf("ParseTree failed: %v", err)
	}
	if len(trees) != 1 {
		t.Fatalf("got %d trees, want 1", len(trees))
	}
	want := "flask@2.3.3(werkzeug@3.0.1(markupsafe@2.1.3) jinja2@3.1.2(markupsafe@2.1.3) itsdangerous@2.1.2 click@8.1.7 blinker@1.6.2)"
	if got := render(trees[0]); got != want {
		t.Errorf("tree = %s\nwant   %s", got, want)
	}
}

func TestParseTree_Errors(t *testing.T) {
	for _, in := range []string{"", "[]", `{"a==1": [1]}`, `{"a==1": {`} {
		if _, err := ParseTree(strings.NewReader(in)); err == nil {
			t.Errorf("ParseTree(%q) should fail", in)
		}
	}
}

func TestSplitPin(t *testing.T) {
	tests := []struct {
		key, name, version string
	}{
		{"Flask==2.3.3", "flask", "2.3.3"},
		{"requests[security]==2.31.0", "requests", "2.31.0"},
		{"zope.interface==6.0 (cyclic)", "zope-interface", "6.0"},
		{"bare", "bare", deps.Unknown},
	}
	for _, tt := range tests {
		name, version := splitPin(tt.key)
		if name != tt.name || version != tt.version {
			t.Errorf("splitPin(%q) = %q, %q; want %q, %q", tt.key, name, version, tt.name, tt.version)
		}
	}
}

func fakePipgrip(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake")
	}
	path := filepath.Join(t.TempDir(), "pipgrip")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPipgripBackend_Resolve(t *testing.T) {
	script := `[ "$1" = "--tree-json-exact" ] || exit 2
[ "$PIP_PREFER_BINARY" = "1" ] || exit 3
cat <<'JSON'
` + pipgripOutput + `
JSON
`
	b := NewPipgripBackend(WithCommand(fakePipgrip(t, script)))

	tree, err := b.Resolve(context.Background(), mustSpec(t, "flask==2.3.3"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if tree.Name != "flask" || tree.Version != "2.3.3" || len(tree.Dependencies) != 5 {
		t.Errorf("tree = %s", render(*tree))
	}
}

func TestPipgripBackend_Failure(t *testing.T) {
	b := NewPipgripBackend(WithCommand(fakePipgrip(t, "echo 'no matching distribution' >&2\nexit 1\n")))

	_, err := b.Resolve(context.Background(), mustSpec(t, "flask"))
	if err == nil || !strings.Contains(err.Error(), "no matching distribution") {
		t.Errorf("error = %v, want stderr in message", err)
	}
}

func TestPipgripBackend_Missing(t *testing.T) {
	b := NewPipgripBackend(WithCommand("stackaudit-test-no-such-pipgrip"))

	if _, err := b.Resolve(context.Background(), mustSpec(t, "flask")); !errors.Is(err, ErrPipgripMissing) {
		t.Errorf("error = %v, want ErrPipgripMissing", err)
	}
}
