// Package usermgr reads and edits the host account database files
// (etc/passwd, etc/shadow, etc/group under a host root) directly.
//
// Files are rewritten atomically and unknown or comment lines are preserved
// as-is. Manager is the "files" provisioning backend; the same parsers serve
// lookups for the command-based backend in usercmd.
package usermgr
