// Package hostfs provides safe access helpers for the host filesystem.
//
// Every absolute host path is resolved under a configurable Root, which is
// "/" on a normal install and a bind-mount such as /host when running in a
// container:
//
//	/etc/passwd  -> <Root>/etc/passwd
//	/etc/group   -> <Root>/etc/group
//	/home/alice  -> <Root>/home/alice
package hostfs
