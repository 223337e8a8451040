package seekgz

// ProgressEvent represents a progress update while an index is built or
// loaded.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// BytesIn is the number of compressed bytes consumed so far.
	BytesIn int64

	// BytesOut is the number of uncompressed bytes produced so far.
	BytesOut int64

	// Points is the number of access points recorded so far.
	Points int
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages for index construction and caching.
const (
	// StageBuilding indicates the compressed stream is being scanned.
	StageBuilding ProgressStage = iota

	// StageLoadingIndex indicates a cached index is being decoded.
	StageLoadingIndex

	// StageStoringIndex indicates a built index is being written to the cache.
	StageStoringIndex

	// StageDone indicates the index is ready.
	StageDone
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageBuilding:
		return "building"
	case StageLoadingIndex:
		return "loading index"
	case StageStoringIndex:
		return "storing index"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Calls are made from the goroutine running the operation.
type ProgressFunc func(ProgressEvent)
