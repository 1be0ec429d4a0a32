package underwriting

import "math"

const (
	irrGuess     = 0.1
	irrTolerance = 1e-10
	irrMaxIter   = 100
	bisectIter   = 200
)

// bracket candidates scanned when Newton's method fails to converge.
var irrBrackets = []float64{-0.99, -0.9, -0.5, -0.2, 0, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10}

// NPV discounts flows at rate; flows[0] is undiscounted.
func NPV(rate float64, flows []float64) float64 {
	var npv float64
	for t, cf := range flows {
		npv += cf / math.Pow(1+rate, float64(t))
	}
	return npv
}

func npvDerivative(rate float64, flows []float64) float64 {
	var d float64
	for t, cf := range flows {
		if t == 0 {
			continue
		}
		d -= float64(t) * cf / math.Pow(1+rate, float64(t+1))
	}
	return d
}

// IRR finds the rate at which NPV(flows) is zero. It returns false when no
// finite root is found.
func IRR(flows []float64) (float64, bool) {
	if len(flows) < 2 {
		return 0, false
	}
	if r, ok := irrNewton(flows); ok {
		return r, true
	}
	return irrBisect(flows)
}

func irrNewton(flows []float64) (float64, bool) {
	rate := irrGuess
	for i := 0; i < irrMaxIter; i++ {
		npv := NPV(rate, flows)
		d := npvDerivative(rate, flows)
		if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return 0, false
		}
		next := rate - npv/d
		if next <= -1 || math.IsNaN(next) || math.IsInf(next, 0) {
			return 0, false
		}
		if math.Abs(next-rate) < irrTolerance {
			return next, true
		}
		rate = next
	}
	return 0, false
}

func irrBisect(flows []float64) (float64, bool) {
	for i := 0; i+1 < len(irrBrackets); i++ {
		lo, hi := irrBrackets[i], irrBrackets[i+1]
		flo, fhi := NPV(lo, flows), NPV(hi, flows)
		if math.IsNaN(flo) || math.IsNaN(fhi) || flo*fhi > 0 {
			continue
		}
		for j := 0; j < bisectIter; j++ {
			mid := (lo + hi) / 2
			fmid := NPV(mid, flows)
			if math.Abs(fmid) < irrTolerance || (hi-lo)/2 < irrTolerance {
				return mid, true
			}
			if flo*fmid < 0 {
				hi = mid
			} else {
				lo, flo = mid, fmid
			}
		}
		return (lo + hi) / 2, true
	}
	return 0, false
}
