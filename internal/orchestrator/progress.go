package orchestrator

// ProgressKind identifies a scheduler milestone.
type ProgressKind int

const (
	BatchStarted ProgressKind = iota
	ArchiveExtracted
	BatchPersisted
)

func (k ProgressKind) String() string {
	switch k {
	case BatchStarted:
		return "batch_started"
	case ArchiveExtracted:
		return "archive_extracted"
	case BatchPersisted:
		return "batch_persisted"
	default:
		return "unknown"
	}
}

// Progress is emitted at each milestone. ArchiveExtracted events come from
// extraction workers, so observers must be safe for concurrent use.
type Progress struct {
	Kind         ProgressKind
	Batch        int
	TotalBatches int
	Archive      string
	Archives     int
	Pairs        int
	Images       int
	Annotations  int
	Err          error
}

// Observer receives progress events.
type Observer func(Progress)
