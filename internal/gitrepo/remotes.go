package gitrepo

import (
	"strings"

	"github.com/temirov/gitcompact/internal/repos/shared"
)

const (
	remoteDirectionPrefixConstant = "("
	remoteDirectionSuffixConstant = ")"
)

// ParseRemoteListing converts `git remote -v` output into remote entries. Malformed lines are ignored.
func ParseRemoteListing(output string) []shared.RemoteEntry {
	var remotes []shared.RemoteEntry
	for _, line := range strings.Split(output, lineSeparatorConstant) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		remote := shared.RemoteEntry{Name: fields[0], URL: fields[1]}
		if len(fields) > 2 {
			remote.Direction = strings.TrimSuffix(strings.TrimPrefix(fields[2], remoteDirectionPrefixConstant), remoteDirectionSuffixConstant)
		}
		remotes = append(remotes, remote)
	}
	return remotes
}

// RemoteNames returns the distinct remote names in listing order.
func RemoteNames(remotes []shared.RemoteEntry) []string {
	seen := make(map[string]struct{}, len(remotes))
	var names []string
	for _, remote := range remotes {
		if _, alreadySeen := seen[remote.Name]; alreadySeen {
			continue
		}
		seen[remote.Name] = struct{}{}
		names = append(names, remote.Name)
	}
	return names
}
