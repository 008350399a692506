package types

import "strings"

// PlatformInfo describes the robot platform this daemon runs on
type PlatformInfo struct {
	OS       string `json:"os"`
	Version  string `json:"version"`
	System   string `json:"system"`
	Platform string `json:"platform"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
}

// Triple renders the compatibility triple, e.g. "linux.noble.ros2"
func (p PlatformInfo) Triple() string {
	return p.OS + "." + p.Version + "." + p.System
}

// MatchesTriple reports whether a descriptor compatibility string is
// satisfied by this platform. Compatibility is a dot-separated
// os.version.system triple where "*" (or a missing trailing field)
// matches anything. An empty string matches everything.
func (p PlatformInfo) MatchesTriple(compat string) bool {
	if compat == "" {
		return true
	}
	want := strings.Split(compat, ".")
	have := []string{p.OS, p.Version, p.System}
	if len(want) > len(have) {
		return false
	}
	for i, field := range want {
		if field == "*" || field == "" {
			continue
		}
		if !strings.EqualFold(field, have[i]) {
			return false
		}
	}
	return true
}
