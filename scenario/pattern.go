package scenario

import (
	"fmt"

	"k8s.io/klog/v2"
)

// WriteDataPattern fills buf with the pattern of seed: byte i is seed*(i+1) modulo 256.
func WriteDataPattern(buf []byte, seed uint8) {
	value := seed
	for ii := range buf {
		buf[ii] = value
		value += seed
	}
}

// PatternMismatchError is returned by ValidateDataPattern.
type PatternMismatchError struct {
	// Offset, Expected and Actual describe the first mismatching byte.
	Offset           int
	Expected, Actual uint8

	// Mismatches is the total number of mismatching bytes.
	Mismatches int
}

// Error implements error.
func (e *PatternMismatchError) Error() string {
	return fmt.Sprintf("data pattern mismatch at offset %d: expected 0x%02x, got 0x%02x (%d mismatching bytes)",
		e.Offset, e.Expected, e.Actual, e.Mismatches)
}

// ValidateDataPattern checks buf holds the pattern written by WriteDataPattern with the same seed.
// Each mismatch is logged with verbosity 1; the returned *PatternMismatchError reports the first one.
func ValidateDataPattern(buf []byte, seed uint8) error {
	var mismatch *PatternMismatchError
	expected := seed
	for ii, actual := range buf {
		if actual != expected {
			klog.V(1).Infof("pattern mismatch at offset %d: expected 0x%02x, got 0x%02x", ii, expected, actual)
			if mismatch == nil {
				mismatch = &PatternMismatchError{Offset: ii, Expected: expected, Actual: actual}
			}
			mismatch.Mismatches++
		}
		expected += seed
	}
	if mismatch != nil {
		return mismatch
	}
	return nil
}
