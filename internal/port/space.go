package port

// SpaceProbe reports live free space of the volume holding a path
type SpaceProbe interface {
	// FreeBytes returns the bytes available to the current user
	FreeBytes(path string) (uint64, error)
}

// SpaceCheckResult contains detailed space availability information
type SpaceCheckResult struct {
	HasSpace  bool
	FreeBytes uint64
	Floor     uint64
	Required  uint64
	Checked   bool // false when a cached reading was used
}
