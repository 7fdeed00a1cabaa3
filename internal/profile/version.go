package profile

// Version constants for the profile document and the daemon.
const (
	// DocumentVersion is the profile document schema version.
	DocumentVersion = "1"

	// Version is the deckd release version reported to plugins.
	Version = "0.1.0"
)
