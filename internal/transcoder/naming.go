package transcoder

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var outputSuffixes = []string{"_compressed", "_small", "_squeezed", "_compact"}

const maxNumberedOutputs = 999

// UniqueOutputPath derives a non-existing .mp4 path next to input.
func UniqueOutputPath(input string) (string, error) {
	dir := filepath.Dir(input)
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	for _, suffix := range outputSuffixes {
		candidate := filepath.Join(dir, stem+suffix+".mp4")
		if isFree(candidate) {
			return candidate, nil
		}
	}
	for n := 1; n <= maxNumberedOutputs; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_compressed_%d.mp4", stem, n))
		if isFree(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrUniqueNameExhausted, input)
}

func isFree(path string) bool {
	_, err := os.Lstat(path)
	return errors.Is(err, fs.ErrNotExist)
}
