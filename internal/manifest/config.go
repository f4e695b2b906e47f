package manifest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ParseConfig reads a required-operators config. Blank lines and lines
// starting with '#' are ignored.
func ParseConfig(r io.Reader) (OperatorSet, error) {
	set := make(OperatorSet)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "!") {
			return nil, fmt.Errorf("line %d: unsupported directive %q", lineNo, line)
		}

		if err := parseLine(set, line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return set, nil
}

func parseLine(set OperatorSet, line string) error {
	parts := strings.SplitN(line, ";", 3)
	if len(parts) != 3 {
		return fmt.Errorf("expected domain;opset;operators, got %q", line)
	}

	domain := strings.TrimSpace(parts[0])
	opset, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return fmt.Errorf("bad opset %q: %w", parts[1], err)
	}

	ops, err := splitOperators(parts[2])
	if err != nil {
		return err
	}

	for _, raw := range ops {
		name, ti, err := parseOperator(raw)
		if err != nil {
			return err
		}
		set.Add(domain, opset, name, ti)
	}

	return nil
}

// splitOperators splits on commas outside of type-info braces.
func splitOperators(s string) ([]string, error) {
	var (
		out   []string
		depth int
		start int
	)
	for i, ch := range s {
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced '}' in %q", s)
			}
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced '{' in %q", s)
	}
	out = append(out, s[start:])

	ops := out[:0]
	for _, op := range out {
		if op = strings.TrimSpace(op); op != "" {
			ops = append(ops, op)
		}
	}

	return ops, nil
}

func parseOperator(raw string) (string, *TypeInfo, error) {
	brace := strings.IndexByte(raw, '{')
	if brace < 0 {
		return raw, nil, nil
	}

	name := strings.TrimSpace(raw[:brace])
	if name == "" {
		return "", nil, fmt.Errorf("operator name missing before %q", raw[brace:])
	}

	var ti TypeInfo
	if err := json.Unmarshal([]byte(raw[brace:]), &ti); err != nil {
		return "", nil, fmt.Errorf("type info for %s: %w", name, err)
	}

	return name, &ti, nil
}

// WriteConfig writes set in a deterministic order. Type information is only
// written when typeReduction is set.
func WriteConfig(w io.Writer, set OperatorSet, modelCount int, typeReduction bool) error {
	bw := bufio.NewWriter(w)

	_, _ = fmt.Fprintf(bw, "# Generated by ortconvert from %d model(s).\n", modelCount)

	for _, domain := range set.domains() {
		opsets := make([]int, 0, len(set[domain]))
		for v := range set[domain] {
			opsets = append(opsets, v)
		}
		sort.Ints(opsets)

		for _, opset := range opsets {
			ops := set[domain][opset]
			names := make([]string, 0, len(ops))
			for name := range ops {
				names = append(names, name)
			}
			sort.Strings(names)

			entries := make([]string, 0, len(names))
			for _, name := range names {
				entry := name
				if ti := ops[name]; typeReduction && ti != nil {
					b, err := json.Marshal(ti)
					if err != nil {
						return fmt.Errorf("encode type info for %s: %w", name, err)
					}
					if string(b) != "{}" {
						entry += string(b)
					}
				}
				entries = append(entries, entry)
			}

			_, _ = fmt.Fprintf(bw, "%s;%d;%s\n", domain, opset, strings.Join(entries, ","))
		}
	}

	return bw.Flush()
}
