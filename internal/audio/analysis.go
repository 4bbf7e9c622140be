package audio

import (
	"encoding/binary"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// Visualizer geometry.
const (
	FFTSize         = 64
	BarCount        = FFTSize / 2
	BaselineHeight  = 4.0
	MaxBarHeight    = 60.0
	ActiveThreshold = 20.0

	minDecibels     = -100.0
	maxDecibels     = -30.0
	smoothingFactor = 0.8
)

// Samples decodes little-endian s16 PCM into [-1, 1] floats.
func Samples(chunk []byte) []float64 {
	out := make([]float64, len(chunk)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(chunk[2*i:]))
		out[i] = float64(v) / 32768
	}
	return out
}

// Level returns the RMS level of one PCM chunk in [0, 1].
func Level(chunk []byte) float64 {
	samples := Samples(chunk)
	if len(samples) == 0 {
		return 0
	}
	return floats.Norm(samples, 2) / math.Sqrt(float64(len(samples)))
}

// Analyzer turns PCM into byte-scaled frequency magnitudes with temporal
// smoothing between frames. Not safe for concurrent use.
type Analyzer struct {
	fft      *fourier.FFT
	window   []float64
	frame    []float64
	coeffs   []complex128
	smoothed []float64
}

// NewAnalyzer builds an analyzer with FFTSize and a Blackman window.
func NewAnalyzer() *Analyzer {
	ones := make([]float64, FFTSize)
	floats.AddConst(1, ones)
	return &Analyzer{
		fft:      fourier.NewFFT(FFTSize),
		window:   window.Blackman(ones),
		frame:    make([]float64, FFTSize),
		smoothed: make([]float64, BarCount),
	}
}

// Spectrum analyzes the most recent FFTSize samples of chunk and returns
// BarCount magnitudes in 0..255.
func (a *Analyzer) Spectrum(chunk []byte) []uint8 {
	samples := Samples(chunk)
	if len(samples) > FFTSize {
		samples = samples[len(samples)-FFTSize:]
	}
	clear(a.frame)
	copy(a.frame, samples)
	floats.Mul(a.frame, a.window)

	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	out := make([]uint8, BarCount)
	for i := range out {
		mag := cmplx.Abs(a.coeffs[i]) / FFTSize
		a.smoothed[i] = smoothingFactor*a.smoothed[i] + (1-smoothingFactor)*mag

		db := minDecibels
		if a.smoothed[i] > 0 {
			db = 20 * math.Log10(a.smoothed[i])
		}
		scaled := 255 * (db - minDecibels) / (maxDecibels - minDecibels)
		out[i] = uint8(math.Max(0, math.Min(255, scaled)))
	}
	return out
}

// Reset clears the smoothing history.
func (a *Analyzer) Reset() {
	clear(a.smoothed)
}

// Bar is one visualizer column.
type Bar struct {
	Value  float64
	Height float64
	Active bool
}

// Bars applies the noise floor (noiseReduction/100 * 50) to a spectrum.
func Bars(spectrum []uint8, noiseReduction int) []Bar {
	floor := float64(noiseReduction) / 100 * 50
	bars := make([]Bar, BarCount)
	for i := range bars {
		var raw float64
		if i < len(spectrum) {
			raw = float64(spectrum[i])
		}
		value := math.Max(0, raw-floor)
		bars[i] = Bar{
			Value:  value,
			Height: math.Max(BaselineHeight, value/255*MaxBarHeight),
			Active: value > ActiveThreshold,
		}
	}
	return bars
}

// Baseline returns the idle visualizer.
func Baseline() []Bar {
	return Bars(nil, 0)
}
