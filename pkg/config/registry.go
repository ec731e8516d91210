package config

// Persistent state keys (Registry)
const (
	KeyProximityThreshold = "proximity_threshold"
	KeyExitThreshold      = "exit_threshold"
	KeyVolume             = "volume"
	KeyLocationProvider   = "location_provider"
	KeyLastLat            = "last_lat"
	KeyLastLon            = "last_lon"
)
