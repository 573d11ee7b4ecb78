package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoFalseNegatives(t *testing.T) {
	f := New(1000, 0.01)
	keys := make([][]byte, 1000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key_%d", i))
		f.Insert(keys[i])
	}
	for _, k := range keys {
		require.True(t, f.MightContain(k), "must find inserted key %q", k)
	}
}

func TestEmptyFilterRejectsEverything(t *testing.T) {
	f := New(100, 0.01)
	require.EqualValues(t, 0, f.NumItems())
	require.False(t, f.MightContain([]byte("anything")))
}

func TestFalsePositiveRateBounded(t *testing.T) {
	f := New(1000, 0.01)
	for i := 0; i < 1000; i++ {
		f.Insert([]byte(fmt.Sprintf("inserted_%d", i)))
	}

	falsePositives := 0
	const trials = 10000
	for i := 0; i < trials; i++ {
		if f.MightContain([]byte(fmt.Sprintf("absent_%d", i))) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(trials)
	require.Less(t, rate, 0.05, "false positive rate too high: %f", rate)
}

func TestSerializationRoundTrip(t *testing.T) {
	f := New(100, 0.01)
	keys := [][]byte{[]byte("key1"), []byte("key2"), []byte("key3")}
	for _, k := range keys {
		f.Insert(k)
	}

	buf := f.Encode()
	decoded, err := Decode(buf)
	require.NoError(t, err)

	require.Equal(t, f.NumBits(), decoded.NumBits())
	require.Equal(t, f.NumHashes(), decoded.NumHashes())
	require.Equal(t, f.NumItems(), decoded.NumItems())
	for _, k := range keys {
		require.True(t, decoded.MightContain(k))
	}
}

func TestDecodeShortBufferFails(t *testing.T) {
	f := New(100, 0.01)
	f.Insert([]byte("key"))
	buf := f.Encode()

	_, err := Decode(buf[:len(buf)-1])
	require.ErrorIs(t, err, ErrShortBuffer)

	_, err = Decode(nil)
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestParameterClamping(t *testing.T) {
	f := New(0, 0) // clamp n>=1, p>=1e-4
	require.GreaterOrEqual(t, f.NumBits(), uint32(8))
	require.GreaterOrEqual(t, f.NumHashes(), uint8(1))
	require.LessOrEqual(t, f.NumHashes(), uint8(16))

	f2 := New(1, 0.99) // clamp p<=0.5
	require.GreaterOrEqual(t, f2.NumBits(), uint32(8))
}

func TestNewWithParamsClamps(t *testing.T) {
	f := NewWithParams(1, 0)
	require.Equal(t, uint32(8), f.NumBits())
	require.Equal(t, uint8(1), f.NumHashes())

	f2 := NewWithParams(1024, 200)
	require.Equal(t, uint8(16), f2.NumHashes())
}

func TestStatsZeroItems(t *testing.T) {
	f := New(100, 0.01)
	s := f.Stats()
	require.Zero(t, s.NumItems)
	require.Zero(t, s.EstimatedFPP)
}

func TestStatsAfterInsertions(t *testing.T) {
	f := New(100, 0.01)
	f.Insert([]byte("test"))
	s := f.Stats()
	require.EqualValues(t, 1, s.NumItems)
	require.Greater(t, s.FillRatio, 0.0)
	require.GreaterOrEqual(t, s.EstimatedFPP, 0.0)
}
