package engine

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// A Section is a named block of a PFS parameter file. Keywords and
// subsections keep their insertion order.
type Section struct {
	Name     string
	Keywords []Keyword
	Sections []*Section
}

// A Keyword is a single "name = value" line. Value holds the raw, already
// formatted text following the equal sign.
type Keyword struct {
	Name  string
	Value string
}

// String formats a quoted PFS string value.
func String(s string) string { return "'" + s + "'" }

// FileName formats a PFS file name value.
func FileName(s string) string { return "|" + s + "|" }

func Int(i int) string { return strconv.Itoa(i) }

func Double(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// Date formats t as a "Y, M, D, h, m, s" PFS date.
func Date(t time.Time) string {
	return fmt.Sprintf("%d, %d, %d, %d, %d, %d",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// Add appends a keyword and returns the section for chaining.
func (s *Section) Add(name, value string) *Section {
	s.Keywords = append(s.Keywords, Keyword{Name: name, Value: value})
	return s
}

// AddSection appends and returns a new subsection.
func (s *Section) AddSection(name string) *Section {
	sub := &Section{Name: name}
	s.Sections = append(s.Sections, sub)
	return sub
}

// Section returns the first direct subsection called name.
func (s *Section) Section(name string) (*Section, bool) {
	for _, sub := range s.Sections {
		if sub.Name == name {
			return sub, true
		}
	}
	return nil, false
}

// Value returns the raw value of the first keyword called name.
func (s *Section) Value(name string) (string, bool) {
	for _, k := range s.Keywords {
		if k.Name == name {
			return k.Value, true
		}
	}
	return "", false
}

func (s *Section) required(name string) (string, error) {
	v, ok := s.Value(name)
	if !ok {
		return "", fmt.Errorf("section [%s]: missing keyword %s", s.Name, name)
	}
	return v, nil
}

// Text returns a keyword value with its string or filename delimiters removed.
func (s *Section) Text(name string) (string, error) {
	v, err := s.required(name)
	if err != nil {
		return "", err
	}
	if len(v) >= 2 && (v[0] == '\'' && v[len(v)-1] == '\'' || v[0] == '|' && v[len(v)-1] == '|') {
		return v[1 : len(v)-1], nil
	}
	return v, nil
}

func (s *Section) Int(name string) (int, error) {
	v, err := s.required(name)
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("section [%s]: keyword %s: %w", s.Name, name, err)
	}
	return i, nil
}

func (s *Section) Double(name string) (float64, error) {
	v, err := s.required(name)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("section [%s]: keyword %s: %w", s.Name, name, err)
	}
	return f, nil
}

// Date parses a "Y, M, D, h, m, s" value as a UTC instant.
func (s *Section) Date(name string) (time.Time, error) {
	v, err := s.required(name)
	if err != nil {
		return time.Time{}, err
	}
	parts := strings.Split(v, ",")
	if len(parts) != 6 {
		return time.Time{}, fmt.Errorf("section [%s]: keyword %s: invalid date %q", s.Name, name, v)
	}
	f := [6]int{}
	for i, p := range parts {
		if f[i], err = strconv.Atoi(strings.TrimSpace(p)); err != nil {
			return time.Time{}, fmt.Errorf("section [%s]: keyword %s: invalid date %q", s.Name, name, v)
		}
	}
	return time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], 0, time.UTC), nil
}

// WriteTo writes the section in PFS syntax, indenting nested sections by
// three spaces.
func (s *Section) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}
	s.write(cw, 0)
	if cw.err != nil {
		return cw.n, cw.err
	}
	return cw.n, bw.Flush()
}

func (s *Section) write(w *countingWriter, depth int) {
	indent := strings.Repeat("   ", depth)
	w.printf("%s[%s]\n", indent, s.Name)
	for _, k := range s.Keywords {
		w.printf("%s   %s = %s\n", indent, k.Name, k.Value)
	}
	for _, sub := range s.Sections {
		sub.write(w, depth+1)
	}
	w.printf("%sEndSect  // %s\n", indent, s.Name)
	if depth == 0 {
		w.printf("\n")
	}
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) printf(format string, args ...interface{}) {
	if c.err != nil {
		return
	}
	n, err := fmt.Fprintf(c.w, format, args...)
	c.n += int64(n)
	c.err = err
}

// ParsePFS reads every top level section of a PFS file.
func ParsePFS(r io.Reader) ([]*Section, error) {
	var roots []*Section
	var stack []*Section
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "//") || line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]"):
			sec := &Section{Name: line[1 : len(line)-1]}
			if len(stack) == 0 {
				roots = append(roots, sec)
			} else {
				parent := stack[len(stack)-1]
				parent.Sections = append(parent.Sections, sec)
			}
			stack = append(stack, sec)
		case strings.HasPrefix(line, "EndSect"):
			if len(stack) == 0 {
				return nil, fmt.Errorf("line %d: EndSect without open section", lineno)
			}
			stack = stack[:len(stack)-1]
		default:
			name, value, ok := strings.Cut(line, "=")
			if !ok {
				return nil, fmt.Errorf("line %d: expecting keyword = value, got %q", lineno, line)
			}
			if len(stack) == 0 {
				return nil, fmt.Errorf("line %d: keyword %s outside of a section", lineno, strings.TrimSpace(name))
			}
			cur := stack[len(stack)-1]
			cur.Add(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unterminated section [%s]", stack[len(stack)-1].Name)
	}
	return roots, nil
}
