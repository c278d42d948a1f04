package python

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackaudit/pkg/deps"
	"github.com/matzehuels/stackaudit/pkg/graph"
	"github.com/matzehuels/stackaudit/pkg/retry"
)

// DefaultPipgrip is the pipgrip executable looked up on PATH.
const DefaultPipgrip = "pipgrip"

// ErrPipgripMissing is returned when the pipgrip executable cannot be found.
var ErrPipgripMissing = errors.New("pipgrip is not available")

// PipgripBackend resolves trees by running pipgrip. The spec has already
// been validated, so it is passed as a single argument and never reaches
// a shell.
type PipgripBackend struct {
	command string
	env     []string
	logger  *log.Logger
}

// PipgripOption configures a PipgripBackend.
type PipgripOption func(*PipgripBackend)

// WithCommand overrides the pipgrip executable.
func WithCommand(path string) PipgripOption {
	return func(b *PipgripBackend) {
		if path != "" {
			b.command = path
		}
	}
}

// WithPipgripLogger sets the logger.
func WithPipgripLogger(l *log.Logger) PipgripOption {
	return func(b *PipgripBackend) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewPipgripBackend creates a backend that shells out to pipgrip.
func NewPipgripBackend(opts ...PipgripOption) *PipgripBackend {
	b := &PipgripBackend{
		command: DefaultPipgrip,
		env:     append(os.Environ(), "PIP_PREFER_BINARY=1", "PIP_DISABLE_PIP_VERSION_CHECK=1"),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements deps.Backend.
func (b *PipgripBackend) Name() string { return "pipgrip" }

// Resolve implements deps.Backend.
func (b *PipgripBackend) Resolve(ctx context.Context, spec deps.Spec) (*graph.RawNode, error) {
	cmd := exec.CommandContext(ctx, b.command, "--tree-json-exact", spec.String())
	cmd.Env = b.env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	b.logger.Debug("running pipgrip", "spec", spec)
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrPipgripMissing, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		return nil, retry.Retryable(fmt.Errorf("pipgrip failed for %s: %w: %s", spec, err, msg))
	}

	trees, err := ParseTree(&stdout)
	if err != nil {
		return nil, fmt.Errorf("parse pipgrip output for %s: %w", spec, err)
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("pipgrip returned no tree for %s", spec)
	}
	for i := range trees {
		if trees[i].Name == spec.Name {
			return &trees[i], nil
		}
	}
	return &trees[0], nil
}

// ParseTree parses pipgrip --tree-json-exact output: nested objects keyed
// by "name==version", in output order.
func ParseTree(r io.Reader) ([]graph.RawNode, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	return parseMembers(dec)
}

// parseValue returns the children encoded by one value. Scalars (pipgrip
// marks some leaves that way) have no children.
func parseValue(dec *json.Decoder) ([]graph.RawNode, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return nil, nil
	}
	if d != '{' {
		return nil, fmt.Errorf("unexpected %v", d)
	}
	return parseMembers(dec)
}

func parseMembers(dec *json.Decoder) ([]graph.RawNode, error) {
	var nodes []graph.RawNode
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected key, got %v", tok)
		}
		children, err := parseValue(dec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		name, version := splitPin(key)
		nodes = append(nodes, graph.RawNode{Name: name, Version: version, Dependencies: children})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return nodes, nil
}

// splitPin splits "Name[extra]==1.0 (cyclic)" into normalized name and
// version. A key without a pin gets version "unknown".
func splitPin(key string) (name, version string) {
	key, _, _ = strings.Cut(strings.TrimSpace(key), " ")
	name, version, ok := strings.Cut(key, "==")
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	version = strings.TrimSpace(version)
	if !ok || version == "" {
		version = deps.Unknown
	}
	return normalize(name), version
}
