package dashboard

// Path is the fixed logical path of the singleton dashboard document.
const Path = "dashboard/data"

// DefaultSafetyThreshold is the threshold in amps used when seeding and when
// back-filling documents written before the threshold field existed.
const DefaultSafetyThreshold = 20.0

// backfillPoint is appended to documents seeded before dp-7 was installed on the
// line. It matches the last entry of the seed topology.
var backfillPoint = DistributionPoint{ID: "dp-7", Name: "Point 7", Current: 8.42, IsOn: true, HousesConnected: 5}

// Seed returns the default topology that the dashboard is created with on first
// read: the main transformer with its relay on and seven distribution points with
// preset starting currents.
func Seed() State {
	return State{
		Transformer: Transformer{
			ID:   "transformer-1",
			Name: "Main Transformer",
			Relay: Relay{
				ID:   "relay-t1",
				Name: "Transformer Relay",
				IsOn: true,
			},
		},
		DistributionPoints: []DistributionPoint{
			{ID: "dp-1", Name: "Point 1", Current: 11.63, IsOn: true, HousesConnected: 5},
			{ID: "dp-2", Name: "Point 2", Current: 10.54, IsOn: true, HousesConnected: 7},
			{ID: "dp-3", Name: "Point 3", Current: 10.24, IsOn: true, HousesConnected: 4},
			{ID: "dp-4", Name: "Point 4", Current: 16.55, IsOn: true, HousesConnected: 6},
			{ID: "dp-5", Name: "Point 5", Current: 12.56, IsOn: true, HousesConnected: 8},
			{ID: "dp-6", Name: "Point 6", Current: 9.78, IsOn: true, HousesConnected: 3},
			backfillPoint,
		},
		SafetyThreshold: DefaultSafetyThreshold,
		Alerts:          []string{},
	}
}

// Fallback is the state handed to the render path when the store cannot be
// reached: transformer relay reported off, no points, default threshold. The
// dashboard must keep rendering with zero store connectivity.
func Fallback() State {
	return State{
		Transformer: Transformer{
			ID:   "transformer-1",
			Name: "Main Transformer",
			Relay: Relay{
				ID:   "relay-t1",
				Name: "Transformer Relay",
				IsOn: false,
			},
		},
		DistributionPoints: []DistributionPoint{},
		SafetyThreshold:    DefaultSafetyThreshold,
		Alerts:             []string{},
	}
}
