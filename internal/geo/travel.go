package geo

// SitePair keys a measured travel time between two named sites.
type SitePair struct {
	From string
	To   string
}

// TravelModel estimates drive time. Measured site-to-site hours take
// precedence over the straight-line estimate when both names are known.
type TravelModel struct {
	SpeedMPH float64
	Matrix   map[SitePair]float64
}

// NewTravelModel returns a linear model at the given speed.
func NewTravelModel(speedMPH float64) TravelModel {
	if speedMPH <= 0 {
		speedMPH = SpeedOpenRoad
	}
	return TravelModel{SpeedMPH: speedMPH}
}

// Hours returns the drive time from one location to another.
func (m TravelModel) Hours(fromSite string, from Point, toSite string, to Point) float64 {
	if fromSite != "" && toSite != "" && m.Matrix != nil {
		if h, ok := m.Matrix[SitePair{From: fromSite, To: toSite}]; ok && h >= 0 {
			return h
		}
	}
	return DriveTimeHours(DistanceMiles(from, to), m.SpeedMPH)
}

// Between is Hours without site names.
func (m TravelModel) Between(from, to Point) float64 {
	return DriveTimeHours(DistanceMiles(from, to), m.SpeedMPH)
}
