package drive

// Stage is a step of the download pipeline. A request moves forward
// through the stages in order or is rejected at the current one.
type Stage int

const (
	StageReceived Stage = iota
	StageIdentityChecked
	StagePermissionChecked
	StageIntegrityChecked
	StageStreaming
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StageIdentityChecked:
		return "identity_checked"
	case StagePermissionChecked:
		return "permission_checked"
	case StageIntegrityChecked:
		return "integrity_checked"
	case StageStreaming:
		return "streaming"
	case StageComplete:
		return "complete"
	default:
		return "unknown"
	}
}
