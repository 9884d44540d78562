package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutlierDetector(t *testing.T) {
	d := NewOutlierDetector(2.0)

	tests := []struct {
		name   string
		value  float64
		window []float64
		want   bool
	}{
		{"insufficient history", 1000, []float64{1, 2}, false},
		{"no variation", 1000, []float64{5, 5, 5, 5}, false},
		{"inside threshold", 103, []float64{100, 102, 98, 105, 103}, false},
		{"spike", 200, []float64{100, 102, 98, 105, 103, 200}, true},
		{"negative spike", -500, []float64{0, 1, -1, 0, 1, -1, -500}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsOutlier(tt.value, tt.window))
		})
	}
}

func TestOutlierDetectorThreshold(t *testing.T) {
	d := NewOutlierDetector(2.0)
	window := []float64{100, 102, 98, 105, 103, 200}
	d.SetThreshold(5)

	assert.Equal(t, 5.0, d.Threshold())
	assert.False(t, d.IsOutlier(200, window))
}

func TestPeakDetector(t *testing.T) {
	window := []float64{10, 10, 10}

	t.Run("local maximum with large drop", func(t *testing.T) {
		d := NewPeakDetector(0.1)
		assert.False(t, d.IsPeak(10, window))
		assert.False(t, d.IsPeak(12, window))
		assert.False(t, d.IsPeak(15, window))
		assert.True(t, d.IsPeak(11, window))
		assert.False(t, d.IsPeak(10, window), "still falling is not a new peak")
	})

	t.Run("small drop is below threshold", func(t *testing.T) {
		d := NewPeakDetector(0.1)
		d.IsPeak(12, window)
		d.IsPeak(15, window)
		assert.False(t, d.IsPeak(14.5, window))
	})

	t.Run("insufficient history never flags and keeps state", func(t *testing.T) {
		d := NewPeakDetector(0.1)
		d.IsPeak(15, window)
		assert.False(t, d.IsPeak(1, []float64{15, 1}))
		assert.True(t, d.IsPeak(1, window))
	})

	t.Run("reset forgets rising edge", func(t *testing.T) {
		d := NewPeakDetector(0.1)
		d.IsPeak(15, window)
		d.Reset()
		assert.False(t, d.IsPeak(1, window))
	})
}

func TestTrendAnalyzer(t *testing.T) {
	t.Run("zeros until three samples", func(t *testing.T) {
		a := NewTrendAnalyzer(5)
		assert.Equal(t, Trend{}, a.Analyze(1))
		assert.Equal(t, Trend{}, a.Analyze(2))
		assert.NotEqual(t, Trend{}, a.Analyze(3))
	})

	t.Run("increasing", func(t *testing.T) {
		a := NewTrendAnalyzer(5)
		var got Trend
		for i := 0; i < 8; i++ {
			got = a.Analyze(float64(i * 2))
		}
		assert.InDelta(t, 2.0, got.Slope, 1e-9)
		assert.InDelta(t, 1.0, got.Confidence, 1e-9)
		assert.True(t, got.IsIncreasing)
		assert.False(t, got.IsDecreasing)
	})

	t.Run("decreasing", func(t *testing.T) {
		a := NewTrendAnalyzer(4)
		var got Trend
		for _, v := range []float64{40, 30, 20, 10} {
			got = a.Analyze(v)
		}
		assert.InDelta(t, -10.0, got.Slope, 1e-9)
		assert.True(t, got.IsDecreasing)
	})

	t.Run("flat signal has no trend", func(t *testing.T) {
		a := NewTrendAnalyzer(5)
		var got Trend
		for i := 0; i < 5; i++ {
			got = a.Analyze(7)
		}
		assert.Equal(t, Trend{}, got)
	})

	t.Run("weak correlation is not called a direction", func(t *testing.T) {
		a := NewTrendAnalyzer(5)
		var got Trend
		for _, v := range []float64{0, 10, 0, 10, 1} {
			got = a.Analyze(v)
		}
		assert.Greater(t, got.Slope, 0.0)
		assert.Less(t, got.Confidence, TrendConfidenceGate)
		assert.False(t, got.IsIncreasing)
	})

	t.Run("window is clamped and reset by SetWindow", func(t *testing.T) {
		a := NewTrendAnalyzer(500)
		assert.Equal(t, MaxWindow, a.Window())
		a.Analyze(1)
		a.Analyze(2)
		a.SetWindow(3)
		assert.Equal(t, Trend{}, a.Analyze(3))
	})
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		snr        float64
		outlier    bool
		confidence float64
		want       uint8
	}{
		{"clean", 10, false, 0.9, 100},
		{"marginal snr", 1.5, false, 0.9, 85},
		{"low snr", 0.5, false, 0.9, 70},
		{"outlier", 10, true, 0.9, 80},
		{"weak trend", 10, false, 0.2, 90},
		{"everything wrong", 0, true, 0, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.snr, tt.outlier, tt.confidence))
		})
	}
}
