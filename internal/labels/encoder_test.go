package labels

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit(t *testing.T) {
	enc, err := Fit([]string{"C", "A", "B", "A", "C"})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, enc.Classes())
	assert.Equal(t, 3, enc.Len())

	idx, err := enc.Encode("B")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	label, err := enc.Decode(2)
	require.NoError(t, err)
	assert.Equal(t, "C", label)
}

func TestFit_Empty(t *testing.T) {
	_, err := Fit(nil)
	assert.Error(t, err)
}

func TestEncoder_Errors(t *testing.T) {
	enc, err := Fit([]string{"A"})
	require.NoError(t, err)

	_, err = enc.Encode("Q")
	assert.Error(t, err)

	_, err = enc.Decode(1)
	assert.Error(t, err)

	_, err = enc.Decode(-1)
	assert.Error(t, err)

	_, err = enc.EncodeAll([]string{"A", "Q"})
	assert.Error(t, err)
}

func TestNew_Duplicate(t *testing.T) {
	_, err := New([]string{"A", "A"})
	assert.Error(t, err)
}

func TestEncoder_WriteRead(t *testing.T) {
	enc, err := Fit([]string{"hello", "thanks", "yes"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, enc.Write(&buf))
	assert.Contains(t, buf.String(), `"classes"`)

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, enc.Classes(), got.Classes())

	idx, err := got.EncodeAll([]string{"yes", "hello"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, idx)
}

func TestRead_Corrupt(t *testing.T) {
	_, err := Read(bytes.NewBufferString(`{"classes": []}`))
	assert.Error(t, err)

	_, err = Read(bytes.NewBufferString(`not json`))
	assert.Error(t, err)
}
