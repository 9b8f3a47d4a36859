package pipeline

// State is the lifecycle position of one identifier within a run.
type State string

const (
	StateRequesting      State = "requesting"
	StateSkipped         State = "skipped"
	StateFailed          State = "failed"
	StateDownloading     State = "downloading"
	StatePackaged        State = "packaged"
	StateLeftAsDirectory State = "left_as_directory"
)

// Done reports whether the state counts the identifier as processed.
func (s State) Done() bool {
	return s == StatePackaged || s == StateLeftAsDirectory
}

// Outcome records what happened to one identifier.
type Outcome struct {
	Identifier string
	State      State
	// Artifact is the archive file or directory left on disk.
	Artifact  string
	Documents int
	Err       error
}
