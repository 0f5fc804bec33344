package corex

import "time"

// Clock mirrors the engine's frame clock: it only measures elapsed time
// while started, and has no effect when stopped.
type Clock struct {
	startTime float64
	elapsed   float64
}

func NewClock() *Clock {
	return &Clock{}
}

// Update refreshes elapsed time. Call just before reading Elapsed.
func (c *Clock) Update() {
	if c.startTime != 0 {
		c.elapsed = float64(time.Now().UnixNano()) - c.startTime
	}
}

func (c *Clock) Start() {
	c.startTime = float64(time.Now().UnixNano())
	c.elapsed = 0
}

func (c *Clock) Stop() {
	c.startTime = 0
}

func (c *Clock) Elapsed() float64 {
	return c.elapsed
}

const frameAvgCount = 30

// FrameMetrics tracks a rolling average frame time and derived FPS,
// the same window size the engine's metrics singleton used.
type FrameMetrics struct {
	counter   uint8
	samplesMS [frameAvgCount]float64
	avgMS     float64
	frames    int64
	fps       float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{}
}

// Update folds a new frame time (in milliseconds) into the rolling
// average and recomputes FPS.
func (m *FrameMetrics) Update(frameMS float64) {
	m.frames++
	m.samplesMS[m.counter%frameAvgCount] = frameMS
	m.counter++

	count := frameAvgCount
	if int(m.counter) < count {
		count = int(m.counter)
	}
	var total float64
	for i := 0; i < count; i++ {
		total += m.samplesMS[i]
	}
	m.avgMS = total / float64(count)
	if m.avgMS > 0 {
		m.fps = 1000.0 / m.avgMS
	}
}

func (m *FrameMetrics) AverageFrameMS() float64 { return m.avgMS }
func (m *FrameMetrics) FPS() float64            { return m.fps }
func (m *FrameMetrics) FrameCount() int64       { return m.frames }
