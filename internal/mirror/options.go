package mirror

import (
	"strings"

	"github.com/mattn/go-shellwords"
)

// Options are the user-tunable scrcpy settings.
type Options struct {
	Bitrate        string `yaml:"bitrate,omitempty"`
	MaxFPS         string `yaml:"max_fps,omitempty"`
	DisableControl string `yaml:"disable_control,omitempty"`
	Extra          string `yaml:"extra,omitempty"`
}

// ControlDisabled reports whether DisableControl holds a truthy token.
func (o Options) ControlDisabled() bool {
	switch strings.ToLower(strings.TrimSpace(o.DisableControl)) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}

// Args returns the scrcpy argument vector for serial.
func Args(serial string, opts Options) []string {
	args := []string{"-s", serial}
	if bitrate := strings.TrimSpace(opts.Bitrate); bitrate != "" {
		args = append(args, "-b", bitrate)
	}
	if fps := strings.TrimSpace(opts.MaxFPS); fps != "" {
		args = append(args, "--max-fps", fps)
	}
	if opts.ControlDisabled() {
		args = append(args, "--no-control")
	}
	return append(args, splitExtra(opts.Extra)...)
}

// splitExtra tokenizes free-form options with shell-word rules. Shell
// operators (; & | < >) are ordinary word characters. A string the
// tokenizer rejects is passed on as a single argument.
func splitExtra(extra string) []string {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return nil
	}
	p := shellwords.NewParser()
	words, err := p.Parse(escapeOperators(extra))
	if err != nil || p.Position >= 0 {
		return []string{extra}
	}
	return words
}

// escapeOperators backslash-escapes the unquoted shell operators in s so
// the tokenizer keeps them inside the surrounding word.
func escapeOperators(s string) string {
	var (
		b                       strings.Builder
		single, double, escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && !single:
			escaped = true
		case r == '\'' && !double:
			single = !single
		case r == '"' && !single:
			double = !double
		case !single && !double && strings.ContainsRune(";&|<>", r):
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
