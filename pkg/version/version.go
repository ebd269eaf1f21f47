package version

// Version is the current version of the gopscore tool
const Version = "0.0.7"

// UserAgent returns the User-Agent string for outbound requests
func UserAgent() string {
	return "gopscore/" + Version
}
