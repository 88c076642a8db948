package transcoder

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInputNotFound       = errors.New("input file not found")
	ErrMetadataProbe       = errors.New("metadata probe failed")
	ErrEncoderProcess      = errors.New("encoder process failed")
	ErrOutputValidation    = fmt.Errorf("%w: output validation failed", ErrEncoderProcess)
	ErrUniqueNameExhausted = errors.New("no free output file name")
	ErrInvalidSettings     = errors.New("invalid compression settings")
)

// ProcessError describes a non-zero exit of the encoder. Stderr holds the
// last diagnostic lines, which the fallback classifier inspects.
type ProcessError struct {
	Pass     int // 0 for single pass encodes
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	b.WriteString("encoder process failed")
	if e.Pass > 0 {
		fmt.Fprintf(&b, " in pass %d", e.Pass)
	}
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Stderr != "" {
		b.WriteString(": ")
		b.WriteString(lastLine(e.Stderr))
	}
	return b.String()
}

func (e *ProcessError) Unwrap() error { return e.Err }

func (e *ProcessError) Is(target error) bool { return target == ErrEncoderProcess }

// AttemptsError is returned once every attempt of a request has failed.
type AttemptsError struct {
	Attempts int
	Last     error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("compression failed after %d attempts. Last error: %v", e.Attempts, e.Last)
}

func (e *AttemptsError) Unwrap() error { return e.Last }

// diagnostics is the text handed to the fallback classifier for err.
func diagnostics(err error) string {
	var pe *ProcessError
	if errors.As(err, &pe) && pe.Stderr != "" {
		return pe.Stderr
	}
	return err.Error()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
