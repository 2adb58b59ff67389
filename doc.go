// Package main provides the entry point for rolesync.
// rolesync maps roles between an LDAP directory and a relational role store.
// Each realm configures role mappers in one of three modes: import pulls
// directory memberships into the local store, directory_only keeps them in
// the directory alone, and read_only merges both while writing only locally.
// The daemon serves a JSON API with fiber and runs periodic synchronizations.
package main
