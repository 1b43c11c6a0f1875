package power

// socPoint maps a resting pack voltage to a state-of-charge fraction.
type socPoint struct {
	volts    float64
	fraction float64
}

// socTable is a 3S li-ion discharge curve (three cells in series,
// 9.0 V empty to 12.6 V full). Voltage under load reads a little low,
// so the estimate is conservative, which suits a shutoff threshold.
var socTable = []socPoint{
	{9.00, 0.00},
	{9.90, 0.05},
	{10.50, 0.10},
	{10.80, 0.20},
	{11.10, 0.40},
	{11.55, 0.65},
	{12.00, 0.85},
	{12.45, 0.95},
	{12.60, 1.00},
}

// socFromVoltage interpolates the discharge table. Voltages outside
// the table clamp to empty or full.
func socFromVoltage(v float64) float64 {
	if v <= socTable[0].volts {
		return 0
	}
	last := socTable[len(socTable)-1]
	if v >= last.volts {
		return 1
	}
	for i := 1; i < len(socTable); i++ {
		lo, hi := socTable[i-1], socTable[i]
		if v <= hi.volts {
			t := (v - lo.volts) / (hi.volts - lo.volts)
			return lo.fraction + t*(hi.fraction-lo.fraction)
		}
	}
	return 1
}
