package version

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Full returns the version with commit and build date, as shown by --version.
func Full() string {
	return Version + " (" + Commit + ") " + Date
}
