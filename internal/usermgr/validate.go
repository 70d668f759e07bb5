package usermgr

import "regexp"

var nameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// ValidUsername enforces Debian/Ubuntu-style account and group names:
// lowercase letters/digits/underscore/dash, starting with a letter or underscore.
func ValidUsername(u string) bool {
	return nameRe.MatchString(u)
}
