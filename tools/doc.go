//go:build ignore

// Package main is not actually a single compiled unit: every file in
// this directory is interpreted independently by
// internal/tools/userload at session startup, each as its own
// yaegi-evaluated "package main". A user tool file exports three
// symbols:
//
//	func Name() string
//	func Description() string
//	func Execute(ctx context.Context, args map[string]string) (string, error)
//
// and may only import the stdlib packages userload.allowedPackages
// lists. A new tool file is unapproved until its content hash is
// recorded via internal/tools/approval.Record.Approve, after which the
// registry will dispatch calls to it.
package main
