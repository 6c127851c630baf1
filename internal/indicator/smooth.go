package indicator

// smoother is an exponential average seeded with the simple mean of its
// first period inputs. alpha 2/(p+1) gives the EMA, 1/p Wilder's SMMA.
type smoother struct {
	period int
	alpha  float64
	n      int
	acc    float64
}

func (s *smoother) push(x float64) {
	s.n++
	switch {
	case s.n < s.period:
		s.acc += x
	case s.n == s.period:
		s.acc = (s.acc + x) / float64(s.period)
	default:
		s.acc += s.alpha * (x - s.acc)
	}
}

func (s *smoother) value() float64 {
	if !s.ready() {
		return 0
	}
	return s.acc
}

func (s *smoother) ready() bool { return s.n >= s.period }

func (s *smoother) reset() {
	s.n = 0
	s.acc = 0
}

func atLeast(period, min int) int {
	if period < min {
		return min
	}
	return period
}
