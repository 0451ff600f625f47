package protocol

// Protocol versions. The high byte is the release series, the low byte
// the revision within it. A receiver accepts any version in
// [MinVersion, Version]; everything else fails closed.
const (
	// Version is the current protocol version.
	Version uint16 = 0x0a02

	// MinVersion is the oldest protocol version still accepted.
	MinVersion uint16 = 0x0900
)

// Message flags.
const (
	// FlagGlobalAuth requests the credential be created and verified
	// with the process-wide global key instead of the per-cluster key.
	// Set on cross-cluster messages where the local cluster key would
	// not validate on the remote end.
	FlagGlobalAuth uint16 = 1 << 0

	// FlagKeepBuffer asks the receive path to retain the raw frame on
	// the decoded message instead of releasing it.
	FlagKeepBuffer uint16 = 1 << 1
)

// SupportedVersion reports whether v is inside the accepted range.
func SupportedVersion(v uint16) bool {
	return v >= MinVersion && v <= Version
}
