package catafolk

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// pyFormat renders pattern the way Python's str.format does for the subset
// of the format mini-language that dataset configurations use: automatic
// ({}) and manual ({0}) positional fields, named fields, !s/!r conversions,
// and format specs with fill, alignment, sign, zero padding, width,
// grouping, precision and type.
func pyFormat(pattern string, args []Value, named map[string]Value) (string, error) {
	var sb strings.Builder
	auto := 0
	manual := false
	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case c == '{' && i+1 < len(pattern) && pattern[i+1] == '{':
			sb.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(pattern) && pattern[i+1] == '}':
			sb.WriteByte('}')
			i += 2
		case c == '}':
			return "", errors.Errorf("single '}' encountered in format string %q", pattern)
		case c == '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				return "", errors.Errorf("single '{' encountered in format string %q", pattern)
			}
			field := pattern[i+1 : i+end]
			i += end + 1

			name, conv, spec := splitField(field)
			var v Value
			switch {
			case name == "":
				if manual {
					return "", errors.New("cannot switch from manual field specification to automatic field numbering")
				}
				if auto >= len(args) {
					return "", errors.Errorf("replacement index %d out of range for %d arguments", auto, len(args))
				}
				v = args[auto]
				auto++
			case isDigits(name):
				if auto > 0 {
					return "", errors.New("cannot switch from automatic field numbering to manual field specification")
				}
				manual = true
				idx, _ := strconv.Atoi(name)
				if idx >= len(args) {
					return "", errors.Errorf("replacement index %d out of range for %d arguments", idx, len(args))
				}
				v = args[idx]
			default:
				var ok bool
				v, ok = named[name]
				if !ok {
					return "", errors.Errorf("no value for field %q", name)
				}
			}
			switch conv {
			case "":
			case "s":
				v = S(String(v))
			case "r", "a":
				v = S(repr(v))
			default:
				return "", errors.Errorf("unknown conversion specifier %s", conv)
			}
			s, err := formatSpec(v, spec)
			if err != nil {
				return "", errors.Wrapf(err, "field {%s}", field)
			}
			sb.WriteString(s)
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

func splitField(field string) (name, conv, spec string) {
	if idx := strings.IndexByte(field, ':'); idx >= 0 {
		field, spec = field[:idx], field[idx+1:]
	}
	if idx := strings.IndexByte(field, '!'); idx >= 0 {
		field, conv = field[:idx], field[idx+1:]
	}
	return field, conv, spec
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

type fmtSpec struct {
	fill      rune
	align     byte
	sign      byte
	alt       bool
	width     int
	grouping  byte
	precision int
	typ       byte
}

func parseSpec(spec string) (fmtSpec, error) {
	fs := fmtSpec{fill: ' ', precision: -1}
	rest := spec
	isAlign := func(b byte) bool { return b == '<' || b == '>' || b == '^' || b == '=' }
	if r, size := utf8.DecodeRuneInString(rest); size > 0 && len(rest) > size && isAlign(rest[size]) {
		fs.fill, fs.align = r, rest[size]
		rest = rest[size+1:]
	} else if len(rest) > 0 && isAlign(rest[0]) {
		fs.align = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 && (rest[0] == '+' || rest[0] == '-' || rest[0] == ' ') {
		fs.sign = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0] == '#' {
		fs.alt = true
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0] == '0' {
		if fs.align == 0 {
			fs.fill, fs.align = '0', '='
		}
		rest = rest[1:]
	}
	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	if n > 0 {
		fs.width, _ = strconv.Atoi(rest[:n])
		rest = rest[n:]
	}
	if len(rest) > 0 && (rest[0] == ',' || rest[0] == '_') {
		fs.grouping = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0] == '.' {
		n = 1
		for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
			n++
		}
		if n == 1 {
			return fs, errors.Errorf("format specifier missing precision in %q", spec)
		}
		fs.precision, _ = strconv.Atoi(rest[1:n])
		rest = rest[n:]
	}
	if len(rest) > 1 {
		return fs, errors.Errorf("invalid format specifier %q", spec)
	}
	if len(rest) == 1 {
		fs.typ = rest[0]
	}
	return fs, nil
}

func formatSpec(v Value, spec string) (string, error) {
	if spec == "" {
		return String(v), nil
	}
	fs, err := parseSpec(spec)
	if err != nil {
		return "", err
	}
	switch vt := v.(type) {
	case S:
		if fs.typ != 0 && fs.typ != 's' {
			return "", errors.Errorf("unknown format code '%c' for a string", fs.typ)
		}
		if fs.sign != 0 || fs.align == '=' && fs.fill != '0' {
			return "", errors.New("sign not allowed in string format specifier")
		}
		s := string(vt)
		if fs.precision >= 0 && utf8.RuneCountInString(s) > fs.precision {
			s = string([]rune(s)[:fs.precision])
		}
		if fs.align == '=' {
			fs.align = '<'
		}
		return pad(s, "", fs, '<'), nil
	case I:
		return formatInt(int64(vt), fs)
	case B:
		if fs.typ == 0 || fs.typ == 's' {
			return pad(String(vt), "", fs, '<'), nil
		}
		if vt {
			return formatInt(1, fs)
		}
		return formatInt(0, fs)
	case F:
		return formatFloatSpec(float64(vt), fs)
	default:
		if fs.typ != 0 && fs.typ != 's' {
			return "", errors.Errorf("unsupported format spec %q for %s", spec, String(v))
		}
		return pad(String(v), "", fs, '<'), nil
	}
}

func formatInt(i int64, fs fmtSpec) (string, error) {
	neg := i < 0
	u := uint64(i)
	if neg {
		u = uint64(-i)
	}
	var digits, prefix string
	switch fs.typ {
	case 0, 'd', 'n':
		digits = strconv.FormatUint(u, 10)
	case 'b':
		digits, prefix = strconv.FormatUint(u, 2), "0b"
	case 'o':
		digits, prefix = strconv.FormatUint(u, 8), "0o"
	case 'x':
		digits, prefix = strconv.FormatUint(u, 16), "0x"
	case 'X':
		digits, prefix = strings.ToUpper(strconv.FormatUint(u, 16)), "0X"
	case 'c':
		return pad(string(rune(i)), "", fs, '<'), nil
	case 'e', 'E', 'f', 'F', 'g', 'G', '%':
		return formatFloatSpec(float64(i), fs)
	default:
		return "", errors.Errorf("unknown format code '%c' for an integer", fs.typ)
	}
	if fs.grouping != 0 {
		digits = group(digits, fs.grouping)
	}
	if !fs.alt {
		prefix = ""
	}
	return pad(digits, signOf(neg, fs)+prefix, fs, '>'), nil
}

func formatFloatSpec(f float64, fs fmtSpec) (string, error) {
	neg := f < 0
	if neg {
		f = -f
	}
	prec := fs.precision
	var s string
	switch fs.typ {
	case 0:
		if prec < 0 {
			s = formatFloat(f)
		} else {
			s = strconv.FormatFloat(f, 'g', prec, 64)
		}
	case 'f', 'F':
		if prec < 0 {
			prec = 6
		}
		s = strconv.FormatFloat(f, 'f', prec, 64)
	case 'e', 'E':
		if prec < 0 {
			prec = 6
		}
		s = strconv.FormatFloat(f, 'e', prec, 64)
	case 'g', 'G':
		if prec < 0 {
			prec = 6
		}
		if prec == 0 {
			prec = 1
		}
		s = strconv.FormatFloat(f, 'g', prec, 64)
	case '%':
		if prec < 0 {
			prec = 6
		}
		s = strconv.FormatFloat(f*100, 'f', prec, 64) + "%"
	default:
		return "", errors.Errorf("unknown format code '%c' for a float", fs.typ)
	}
	if fs.typ == 'F' || fs.typ == 'E' || fs.typ == 'G' {
		s = strings.ToUpper(s)
	}
	if fs.grouping != 0 {
		intPart, frac := s, ""
		if idx := strings.IndexAny(s, ".e%"); idx >= 0 {
			intPart, frac = s[:idx], s[idx:]
		}
		s = group(intPart, fs.grouping) + frac
	}
	return pad(s, signOf(neg, fs), fs, '>'), nil
}

func signOf(neg bool, fs fmtSpec) string {
	switch {
	case neg:
		return "-"
	case fs.sign == '+':
		return "+"
	case fs.sign == ' ':
		return " "
	}
	return ""
}

func group(digits string, sep byte) string {
	if len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(sep)
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}

// pad applies fill and alignment. The sign is kept in front of the padding
// for '=' alignment.
func pad(body, sign string, fs fmtSpec, defAlign byte) string {
	n := fs.width - utf8.RuneCountInString(body) - utf8.RuneCountInString(sign)
	if n <= 0 {
		return sign + body
	}
	align := fs.align
	if align == 0 {
		align = defAlign
	}
	fill := strings.Repeat(string(fs.fill), n)
	switch align {
	case '<':
		return sign + body + fill
	case '^':
		left := strings.Repeat(string(fs.fill), n/2)
		right := strings.Repeat(string(fs.fill), n-n/2)
		return left + sign + body + right
	case '=':
		return sign + fill + body
	default:
		return fill + sign + body
	}
}
