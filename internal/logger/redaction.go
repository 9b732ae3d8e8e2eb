package logger

import (
	"io"
	"regexp"
)

// Redactor masks credentials before log lines reach their writer
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor for the secrets vigil handles: tool
// passwords and API keys, the API shared secret and store credentials.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`"?password"?\s*[:=]\s*"?[^\s",}]+"?`),
			regexp.MustCompile(`"?api_key"?\s*[:=]\s*"?[^\s",}]+"?`),
			regexp.MustCompile(`"?(shared_)?secret"?\s*[:=]\s*"?[^\s",}]+"?`),
			regexp.MustCompile(`X-Vigil-Secret:\s*\S+`),
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
			// credentials embedded in redis:// and similar URLs
			regexp.MustCompile(`://[^:/\s"]*:[^@/\s"]+@`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every match in s
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// Wrap returns a writer that redacts before forwarding to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not see a short write
// when redaction changed the length.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
