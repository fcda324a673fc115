package splat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGaussianRecord_MarshalRoundTrip(t *testing.T) {
	g := GaussianRecord{
		Mean:     [3]float32{1, 2, 3},
		Scale:    [3]float32{0.1, 0.2, 0.3},
		Rotation: [4]float32{1, 0, 0, 0},
		ColorDC:  [3]float32{0.5, 0.6, 0.7},
		Opacity:  0.9,
	}
	for i := range g.SH1 {
		g.SH1[i] = float32(i) * 0.01
	}
	for i := range g.SH2 {
		g.SH2[i] = float32(i) * 0.02
	}
	for i := range g.SH3 {
		g.SH3[i] = float32(i) * 0.03
	}

	buf := g.Marshal()
	assert.Len(t, buf, RecordSize)

	got := UnmarshalGaussianRecord(buf)
	assert.Equal(t, g, got)
}

func TestGaussianRecord_Size(t *testing.T) {
	var g GaussianRecord
	assert.Equal(t, 256, g.Size())
}

func TestMarshalGaussianRecords(t *testing.T) {
	records := []GaussianRecord{
		{Mean: [3]float32{0, 0, 0}, Opacity: 1},
		{Mean: [3]float32{1, 1, 1}, Opacity: 0.5},
	}
	buf := MarshalGaussianRecords(records)
	assert.Len(t, buf, 2*RecordSize)

	got0 := UnmarshalGaussianRecord(buf[0:RecordSize])
	got1 := UnmarshalGaussianRecord(buf[RecordSize : 2*RecordSize])
	assert.Equal(t, records[0], got0)
	assert.Equal(t, records[1], got1)
}
