// Package textutil holds small string helpers shared by packages that turn
// caller-supplied identifiers into file names.
package textutil
