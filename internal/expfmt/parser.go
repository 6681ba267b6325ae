package expfmt

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Parse tokenizes a single exposition body into its metric families, in
// order of first appearance. Malformed lines are skipped with a warning
// logged via logger (which may be nil); Parse never returns an error because
// a single bad line from an otherwise-healthy exporter must not drop the
// rest of the scrape (spec §4.2, §7).
func Parse(data []byte, logger *zap.SugaredLogger) []*MetricFamily {
	p := &parser{
		byName: make(map[string]*MetricFamily),
		logger: logger,
	}

	for _, line := range splitLines(data) {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if line[0] == '#' {
			p.parseComment(line)
			continue
		}
		p.parseSample(line)
	}

	return p.order
}

type parser struct {
	byName map[string]*MetricFamily
	order  []*MetricFamily
	logger *zap.SugaredLogger
}

func (p *parser) family(name string) *MetricFamily {
	f, ok := p.byName[name]
	if !ok {
		f = &MetricFamily{Name: name, Type: MetricUntyped}
		p.byName[name] = f
		p.order = append(p.order, f)
	}
	return f
}

func (p *parser) warn(msg string, line string) {
	if p.logger != nil {
		p.logger.Warnw(msg, "line", line)
	}
}

// parseComment handles "# HELP name text", "# TYPE name type" and any other
// "# ..." line, which is a plain comment and is ignored.
func (p *parser) parseComment(line string) {
	rest := strings.TrimSpace(line[1:])
	switch {
	case strings.HasPrefix(rest, "HELP "):
		rest = strings.TrimPrefix(rest, "HELP ")
		name, text, ok := cutToken(rest)
		if !ok {
			p.warn("malformed HELP line, skipping", line)
			return
		}
		p.family(name).Help = unescapeHelp(text)
	case strings.HasPrefix(rest, "TYPE "):
		rest = strings.TrimPrefix(rest, "TYPE ")
		name, typ, ok := cutToken(rest)
		if !ok {
			p.warn("malformed TYPE line, skipping", line)
			return
		}
		p.family(name).Type = parseMetricType(strings.TrimSpace(typ))
	default:
		// plain comment, ignore
	}
}

// cutToken splits "token rest..." on the first run of whitespace, returning
// ok=false if there is no second token at all.
func cutToken(s string) (token, rest string, ok bool) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return "", "", false
	}
	return s[:i], strings.TrimLeft(s[i:], " \t"), true
}

// unescapeHelp decodes \\ and \n left-to-right in a single pass, the same
// way parseLabelBlock decodes quoted label values below. A two-pass global
// replace cannot express this correctly: it misreads an escaped literal
// backslash immediately followed by the letter 'n' (wire bytes \, \, n).
func unescapeHelp(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				sb.WriteByte('\\')
			case 'n':
				sb.WriteByte('\n')
			default:
				sb.WriteByte(s[i+1])
			}
			i++
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// parseSample parses "name[{labels}] value [timestamp] [# exemplar]".
func (p *parser) parseSample(line string) {
	rest := line
	i := 0
	for i < len(rest) && rest[i] != '{' && rest[i] != ' ' && rest[i] != '\t' {
		i++
	}
	name := rest[:i]
	if name == "" {
		p.warn("sample line has no metric name, skipping", line)
		return
	}
	rest = rest[i:]

	var labels map[string]string
	if len(rest) > 0 && rest[0] == '{' {
		var ok bool
		labels, rest, ok = parseLabelBlock(rest)
		if !ok {
			p.warn("unterminated label block, skipping", line)
			return
		}
	}

	rest = strings.TrimLeft(rest, " \t")
	valueTok, rest, _ := cutTokenOrRemainder(rest)
	if valueTok == "" {
		p.warn("sample line has no value, skipping", line)
		return
	}
	value, err := strconv.ParseFloat(valueTok, 64)
	if err != nil {
		p.warn("sample value is not numeric, skipping", line)
		return
	}

	sample := Sample{Labels: labels, Value: value}

	rest = strings.TrimLeft(rest, " \t")
	if rest != "" && rest[0] != '#' {
		tsTok, remainder, _ := cutTokenOrRemainder(rest)
		ts, err := strconv.ParseInt(tsTok, 10, 64)
		if err == nil {
			sample.HasTime = true
			sample.TimestampMs = ts
			rest = strings.TrimLeft(remainder, " \t")
		}
	}
	if rest != "" && rest[0] == '#' {
		sample.Exemplar = strings.TrimSpace(rest[1:])
	}

	f := p.family(name)
	f.Samples = append(f.Samples, sample)
}

// cutTokenOrRemainder splits on the first run of whitespace, returning the
// whole string as the token if there is no further whitespace.
func cutTokenOrRemainder(s string) (token, rest string, ok bool) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, "", s != ""
	}
	return s[:i], s[i:], true
}

// parseLabelBlock parses a "{name=\"value\",...}" block starting at s[0]=='{'
// and returns the labels plus whatever follows the closing brace. ok is
// false on an unterminated quote or missing closing brace.
func parseLabelBlock(s string) (labels map[string]string, rest string, ok bool) {
	i := 1 // skip '{'
	labels = make(map[string]string)
	for {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == ',') {
			i++
		}
		if i >= len(s) {
			return nil, "", false
		}
		if s[i] == '}' {
			return labels, s[i+1:], true
		}

		nameStart := i
		for i < len(s) && s[i] != '=' && s[i] != '}' {
			i++
		}
		if i >= len(s) || s[i] != '=' {
			return nil, "", false
		}
		name := strings.TrimSpace(s[nameStart:i])
		i++ // skip '='

		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) || s[i] != '"' {
			return nil, "", false
		}
		i++ // skip opening quote

		var sb strings.Builder
		closed := false
		for i < len(s) {
			c := s[i]
			if c == '\\' && i+1 < len(s) {
				switch s[i+1] {
				case '"':
					sb.WriteByte('"')
				case '\\':
					sb.WriteByte('\\')
				case 'n':
					sb.WriteByte('\n')
				default:
					sb.WriteByte(s[i+1])
				}
				i += 2
				continue
			}
			if c == '"' {
				closed = true
				i++
				break
			}
			sb.WriteByte(c)
			i++
		}
		if !closed {
			return nil, "", false
		}
		if name != "" {
			labels[name] = sb.String()
		}
	}
}

// splitLines splits on '\n' without the overhead of allocating via
// strings.Split's escape-sensitive path for very large bodies.
func splitLines(data []byte) []string {
	s := string(data)
	lines := make([]string, 0, strings.Count(s, "\n")+1)
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
