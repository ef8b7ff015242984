package detector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandLandmarks_Vector(t *testing.T) {
	hand := OpenPalmLandmarks()
	v := hand.Vector()

	assert.Len(t, v, 63)

	// Wrist occupies the first three slots.
	assert.Equal(t, hand.Points[Wrist].X, v[0])
	assert.Equal(t, hand.Points[Wrist].Y, v[1])
	assert.Equal(t, hand.Points[Wrist].Z, v[2])

	// Pinky tip occupies the last three.
	assert.Equal(t, hand.Points[PinkyTip].X, v[60])
	assert.Equal(t, hand.Points[PinkyTip].Y, v[61])
	assert.Equal(t, hand.Points[PinkyTip].Z, v[62])

	s := v.Slice()
	s[0] = -1
	assert.NotEqual(t, -1.0, v[0], "Slice must not alias the vector")
}

func TestHandLandmarks_VectorInUnitRange(t *testing.T) {
	for _, hand := range []HandLandmarks{FistLandmarks(), OpenPalmLandmarks()} {
		v := hand.Vector()
		for i := 0; i < VectorSize; i += 3 {
			assert.GreaterOrEqual(t, v[i], 0.0)
			assert.LessOrEqual(t, v[i], 1.0)
			assert.GreaterOrEqual(t, v[i+1], 0.0)
			assert.LessOrEqual(t, v[i+1], 1.0)
		}
	}
}

func TestConnections_InRange(t *testing.T) {
	for _, c := range Connections {
		assert.True(t, c[0] >= 0 && c[0] < NumLandmarks)
		assert.True(t, c[1] >= 0 && c[1] < NumLandmarks)
	}
}

func TestExtractor(t *testing.T) {
	t.Run("returns first hand", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetHands([]HandLandmarks{FistLandmarks(), OpenPalmLandmarks()})

		hand, err := NewExtractor(mock).Extract(nil)

		require.NoError(t, err)
		assert.Equal(t, FistLandmarks().Points, hand.Points)
	})

	t.Run("no hand is ErrNoHand", func(t *testing.T) {
		hand, err := NewExtractor(NewMockDetector()).Extract(nil)

		assert.ErrorIs(t, err, ErrNoHand)
		assert.Nil(t, hand)
	})

	t.Run("detector failure is wrapped", func(t *testing.T) {
		mock := NewMockDetector()
		boom := errors.New("pipe closed")
		mock.SetError(boom)

		_, err := NewExtractor(mock).Extract(nil)

		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrNoHand)
	})

	t.Run("close reaches the detector", func(t *testing.T) {
		mock := NewMockDetector()
		require.NoError(t, NewExtractor(mock).Close())
		assert.True(t, mock.Closed())
	})
}

func TestMockDetector(t *testing.T) {
	t.Run("returns empty hands by default", func(t *testing.T) {
		mock := NewMockDetector()

		hands, err := mock.Detect(nil)

		assert.NoError(t, err)
		assert.Nil(t, hands)
	})

	t.Run("sequence then fallback", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetHands([]HandLandmarks{OpenPalmLandmarks()})
		mock.SetSequence([][]HandLandmarks{nil, {FistLandmarks()}})

		first, _ := mock.Detect(nil)
		second, _ := mock.Detect(nil)
		third, _ := mock.Detect(nil)

		assert.Empty(t, first)
		assert.Equal(t, FistLandmarks().Points, second[0].Points)
		assert.Equal(t, OpenPalmLandmarks().Points, third[0].Points)
		assert.Equal(t, 3, mock.Calls())
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		hands, err := mock.Detect(nil)

		assert.Equal(t, expectedErr, err)
		assert.Nil(t, hands)
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*MediaPipeDetector)(nil)
	})
}

func TestFistLandmarks_FingersCurled(t *testing.T) {
	landmarks := FistLandmarks()

	assert.Less(t, landmarks.Points[ThumbTip].Y, landmarks.Points[ThumbMCP].Y, "thumb tip should be raised")

	for _, f := range [][2]int{{IndexMCP, IndexTip}, {MiddleMCP, MiddleTip}, {RingMCP, RingTip}, {PinkyMCP, PinkyTip}} {
		extension := landmarks.Points[f[0]].Y - landmarks.Points[f[1]].Y
		assert.LessOrEqual(t, extension, 0.15, "finger %d appears extended", f[1])
	}
}

func TestOpenPalmLandmarks_FingersExtended(t *testing.T) {
	landmarks := OpenPalmLandmarks()

	for _, f := range [][2]int{{IndexMCP, IndexTip}, {MiddleMCP, MiddleTip}, {RingMCP, RingTip}, {PinkyMCP, PinkyTip}} {
		extension := landmarks.Points[f[0]].Y - landmarks.Points[f[1]].Y
		assert.GreaterOrEqual(t, extension, 0.2, "finger %d not extended", f[1])
	}
	assert.Greater(t, landmarks.Points[ThumbTip].X, landmarks.Points[ThumbMCP].X)
}

func TestDecodeResponse(t *testing.T) {
	t.Run("parses hands", func(t *testing.T) {
		line := `{"hands":[{"points":[` + points(NumLandmarks) + `],"handedness":"Left","score":0.93}]}` + "\n"

		hands, err := decodeResponse([]byte(line))

		require.NoError(t, err)
		require.Len(t, hands, 1)
		assert.Equal(t, "Left", hands[0].Handedness)
		assert.InDelta(t, 0.93, hands[0].Score, 1e-12)
		assert.InDelta(t, 0.2, hands[0].Points[PinkyTip].X, 1e-12)
	})

	t.Run("empty hands", func(t *testing.T) {
		hands, err := decodeResponse([]byte(`{"hands":[]}`))
		require.NoError(t, err)
		assert.Empty(t, hands)
	})

	t.Run("service error", func(t *testing.T) {
		_, err := decodeResponse([]byte(`{"hands":[],"error":"decode failed"}`))
		assert.ErrorContains(t, err, "decode failed")
	})

	t.Run("short hand", func(t *testing.T) {
		_, err := decodeResponse([]byte(`{"hands":[{"points":[` + points(3) + `]}]}`))
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := decodeResponse([]byte(`oops`))
		assert.Error(t, err)
	})
}

func TestMediaPipeDetector_Args(t *testing.T) {
	d := &MediaPipeDetector{config: TrainingConfig(), scriptPath: "/opt/svc.py"}

	args := d.args()

	assert.Equal(t, "/opt/svc.py", args[0])
	assert.Contains(t, args, "--static-image-mode")
	assert.Contains(t, args, "0.5")

	live := &MediaPipeDetector{config: DefaultConfig(), scriptPath: "svc.py"}
	assert.NotContains(t, live.args(), "--static-image-mode")
	assert.Contains(t, live.args(), "0.7")
}

// points renders n landmarks; the last one has x=0.2.
func points(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		if i == n-1 {
			s += `{"x":0.2,"y":0.5,"z":0}`
		} else {
			s += `{"x":0.5,"y":0.5,"z":0}`
		}
	}
	return s
}
