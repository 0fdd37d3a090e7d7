package client

import (
	"strconv"
	"strings"
)

// Version comparison verdicts.
const (
	VersionCurrent      = 0 // up to date
	VersionUpdate       = 1 // server is newer, still compatible
	VersionIncompatible = 2 // server's major version moved on
)

// CompareVersions compares dotted major.minor.patch strings. The server
// is expected to be at or ahead of the client; a newer server within
// the same major version is an update prompt, a newer major version is
// incompatible.
func CompareVersions(client, server string) int {
	clientNum := parseVersion(client)
	serverNum := parseVersion(server)
	for i := 0; i < len(clientNum) && i < len(serverNum); i++ {
		if serverNum[i] > clientNum[i] {
			if serverNum[0] == clientNum[0] {
				return VersionUpdate
			}
			return VersionIncompatible
		}
		if serverNum[i] < clientNum[i] {
			return VersionCurrent
		}
	}
	return VersionCurrent
}

func parseVersion(v string) []int {
	parts := strings.Split(v, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, _ := strconv.Atoi(p)
		out[i] = n
	}
	return out
}

// tiers are the valid leading components of a worksheet file name.
var tiers = map[string]bool{
	"F1": true, "F2": true, "F3": true, "F4": true, "F5": true, "F6": true,
	"J": true, "S": true, "A": true,
}

// CheckFileName validates the Tier_Subject_Serial_Title.ext naming
// convention: tier from the closed set, numeric serial in third
// position, at least four underscore-separated parts.
func CheckFileName(name string) bool {
	parts := strings.Split(name, "_")
	if len(parts) < 4 {
		return false
	}
	if !tiers[parts[0]] {
		return false
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return false
	}
	return true
}
