package approval

import (
	"path"
	"strings"
)

var networkCommands = map[string]struct{}{
	"curl": {}, "wget": {},
	"ssh": {}, "scp": {}, "sftp": {},
	"nc": {}, "ncat": {}, "netcat": {},
	"dig": {}, "nslookup": {}, "host": {},
	"ping": {}, "traceroute": {}, "tracepath": {}, "mtr": {},
	"telnet": {}, "ftp": {}, "lftp": {},
	"rsync": {}, "socat": {}, "nmap": {},
}

// commandBase returns the basename of the command's first token.
func commandBase(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return path.Base(fields[0])
}

// IsNetworkCommand reports whether the command's program is a known network
// utility. Only the first token is inspected: "/usr/bin/curl x" counts,
// "echo curl" does not.
func IsNetworkCommand(command string) bool {
	base := strings.ToLower(commandBase(command))
	_, ok := networkCommands[base]
	return ok
}
