package indicator

import "market-analyzer/internal/model"

// SMA is the mean of the last period closes, kept in a fixed ring so updates
// do not allocate.
type SMA struct {
	buf  []float64
	next int // slot the next input overwrites
	n    int // filled slots
	sum  float64
}

// NewSMA creates an SMA over period closes.
func NewSMA(period int) *SMA {
	return &SMA{buf: make([]float64, atLeast(period, 1))}
}

func (s *SMA) Name() string           { return "SMA" }
func (s *SMA) Update(rate model.Rate) { s.push(rate.Close) }

func (s *SMA) push(x float64) {
	if s.Ready() {
		s.sum -= s.buf[s.next]
	} else {
		s.n++
	}
	s.buf[s.next] = x
	s.sum += x
	s.next = (s.next + 1) % len(s.buf)
}

func (s *SMA) Value() float64 {
	if !s.Ready() {
		return 0
	}
	return s.sum / float64(len(s.buf))
}

func (s *SMA) Ready() bool { return s.n == len(s.buf) }

func (s *SMA) Reset() {
	clear(s.buf)
	s.next, s.n, s.sum = 0, 0, 0
}

// window returns the buffered inputs oldest first.
func (s *SMA) window() []float64 {
	start := 0
	if s.Ready() {
		start = s.next
	}
	out := make([]float64, 0, s.n)
	for i := 0; i < s.n; i++ {
		out = append(out, s.buf[(start+i)%len(s.buf)])
	}
	return out
}
