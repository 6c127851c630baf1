package indicator

import "market-analyzer/internal/model"

// LinReg fits a least-squares line through the last period closes.
// Value is the slope per rate; Intercept gives the fitted value at the
// most recent rate.
type LinReg struct {
	sma       *SMA
	slope     float64
	intercept float64
}

// NewLinReg creates a linear regression over period rates (minimum 2).
func NewLinReg(period int) *LinReg {
	if period < 2 {
		period = 2
	}
	return &LinReg{sma: NewSMA(period)}
}

func (l *LinReg) Name() string { return "LINREG" }

func (l *LinReg) Update(rate model.Rate) {
	l.sma.push(rate.Close)
	if l.sma.Ready() {
		l.slope, l.intercept = l.fit(l.sma.window())
	}
}

func (l *LinReg) Value() float64 { return l.slope }
func (l *LinReg) Ready() bool    { return l.sma.Ready() }

// Intercept is the regression line evaluated at the newest rate.
func (l *LinReg) Intercept() float64 { return l.intercept }

// Reset clears the regression state for reuse.
func (l *LinReg) Reset() {
	l.sma.Reset()
	l.slope = 0
	l.intercept = 0
}

func (l *LinReg) fit(ys []float64) (slope, last float64) {
	n := float64(len(ys))
	var sx, sy, sxy, sxx float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	icpt := (sy - slope*sx) / n
	return slope, icpt + slope*(n-1)
}
