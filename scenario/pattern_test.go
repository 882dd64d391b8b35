package scenario

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDataPattern(t *testing.T) {
	buf := make([]byte, 4096)
	WriteDataPattern(buf, 1)
	require.Equal(t, []byte{1, 2, 3, 4}, buf[:4])
	require.Equal(t, byte(0), buf[255])
	require.Equal(t, byte(1), buf[256])
	require.NoError(t, ValidateDataPattern(buf, 1))

	WriteDataPattern(buf[:4], 200)
	require.Equal(t, []byte{200, 144, 88, 32}, buf[:4])
	require.NoError(t, ValidateDataPattern(buf[:4], 200))

	// Zeroed buffer: every byte but those where the pattern wraps to 0 mismatches.
	zeros := make([]byte, 512)
	err := ValidateDataPattern(zeros, 1)
	var mismatch *PatternMismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, 0, mismatch.Offset)
	require.Equal(t, uint8(1), mismatch.Expected)
	require.Equal(t, uint8(0), mismatch.Actual)
	require.Equal(t, 510, mismatch.Mismatches)
}

func TestDataPatternSingleFlip(t *testing.T) {
	buf := make([]byte, 4096)
	WriteDataPattern(buf, 1)
	buf[2048] ^= 0xff
	err := ValidateDataPattern(buf, 1)
	require.ErrorContains(t, err, "offset 2048")
	var mismatch *PatternMismatchError
	require.True(t, errors.As(err, &mismatch))
	require.Equal(t, 1, mismatch.Mismatches)
	require.Equal(t, ^mismatch.Expected, mismatch.Actual)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, ExitPass, ExitCode(nil))
	require.Equal(t, ExitPass, ExitCode(errors.Wrap(ErrNotEnoughDevices, "found 1")))
	require.Equal(t, ExitSpawn, ExitCode(errors.Wrap(ErrSpawn, "receiver")))
	require.Equal(t, ExitFailure, ExitCode(&PatternMismatchError{}))
	require.Equal(t, ExitFailure, ExitCode(errors.New("zeMemOpenIpcHandle failed")))
}

func BenchmarkValidateDataPattern(b *testing.B) {
	buf := make([]byte, 4096)
	WriteDataPattern(buf, 1)
	b.SetBytes(int64(len(buf)))
	for b.Loop() {
		if err := ValidateDataPattern(buf, 1); err != nil {
			b.Fatal(err)
		}
	}
}
