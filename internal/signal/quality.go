// internal/signal/quality.go
package signal

const (
	maxQuality = 100

	lowSNR      = 1.0
	marginalSNR = 2.0

	lowSNRPenalty       = 30
	marginalSNRPenalty  = 15
	outlierPenalty      = 20
	weakTrendPenalty    = 10
	weakTrendConfidence = 0.5
	initialQualityScore = 50
	noiseLearningRate   = 0.1
	minNoiseForSNR      = 0.001
)

// Score rates one analysis on a 0-100 scale. It is a pure function of its
// inputs.
func Score(snr float64, isOutlier bool, trendConfidence float64) uint8 {
	score := maxQuality
	switch {
	case snr < lowSNR:
		score -= lowSNRPenalty
	case snr < marginalSNR:
		score -= marginalSNRPenalty
	}
	if isOutlier {
		score -= outlierPenalty
	}
	if trendConfidence < weakTrendConfidence {
		score -= weakTrendPenalty
	}
	return uint8(max(0, min(maxQuality, score)))
}
