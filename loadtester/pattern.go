package main

import (
	"math"
	"math/rand"
	"time"
)

type WorkloadPattern string

const (
	PatternSteady WorkloadPattern = "steady"
	PatternBurst  WorkloadPattern = "burst"
	PatternWave   WorkloadPattern = "wave"
)

func inBurst(progress float64) bool {
	return progress < 0.3 || (progress > 0.5 && progress < 0.6) || (progress > 0.8 && progress < 0.9)
}

// intensity is the relative load, 0 to 1, at a point of the run.
func (p WorkloadPattern) intensity(progress float64) float64 {
	switch p {
	case PatternBurst:
		if inBurst(progress) {
			return 0.9
		}
		return 0.3
	case PatternWave:
		return (1 + math.Sin(progress*6*math.Pi)) / 2
	default:
		return 0.5
	}
}

func (p WorkloadPattern) phase(progress float64) string {
	switch p {
	case PatternBurst:
		if inBurst(progress) {
			return "BURST - high volume"
		}
		return "normal - steady flow"
	case PatternWave:
		s := math.Sin(progress * 6 * math.Pi)
		if s > 0.5 {
			return "peak"
		} else if s < -0.5 {
			return "valley"
		}
		return "transitioning"
	default:
		return "steady - constant rate"
	}
}

// delay between two puts of one worker; high intensity means short delays.
func (p WorkloadPattern) delay(progress float64, rng *rand.Rand) time.Duration {
	base := 5 + int((1-p.intensity(progress))*195)
	return time.Duration(base+rng.Intn(10)) * time.Millisecond
}

// eventsPerRecord grows with intensity so bursts also push records toward the
// processor's response size ceiling.
func (p WorkloadPattern) eventsPerRecord(progress float64, maxEvents int, rng *rand.Rand) int {
	n := 1 + int(p.intensity(progress)*float64(maxEvents-1))
	return max(1, n-rng.Intn(max(1, n/4)+1))
}
