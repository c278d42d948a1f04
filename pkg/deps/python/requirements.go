package python

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

var (
	depNameRE = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._]*)`)
	pinRE     = regexp.MustCompile(`^[a-zA-Z0-9][-a-zA-Z0-9._]*(?:\[[^\]]*\])?\s*==\s*([A-Za-z0-9_.-]+)\s*$`)
)

// Requirements parses requirements.txt style files. Exact pins keep their
// version; ranges are reduced to the bare name and left to the resolver.
type Requirements struct{}

func (r *Requirements) Type() string { return "requirements.txt" }

func (r *Requirements) Supports(name string) bool {
	return name == "requirements.txt" ||
		(strings.HasPrefix(name, "requirements") && strings.HasSuffix(name, ".txt"))
}

func (r *Requirements) Parse(in io.Reader) ([]string, error) {
	seen := make(map[string]bool)
	var result []string

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || line[0] == '#' || line[0] == '-' {
			continue
		}
		if strings.Contains(line, "://") || strings.HasPrefix(line, "git+") {
			continue
		}
		spec, _, _ := strings.Cut(line, ";")
		spec = strings.TrimSpace(spec)

		m := depNameRE.FindStringSubmatch(spec)
		if len(m) < 2 {
			continue
		}
		name := normalize(m[1])
		if seen[name] {
			continue
		}
		seen[name] = true
		if pin := pinRE.FindStringSubmatch(spec); len(pin) > 1 {
			result = append(result, name+"=="+pin[1])
			continue
		}
		result = append(result, name)
	}

	return result, scanner.Err()
}
