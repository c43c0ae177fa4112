// Package logs reads the daemon log file for `vidlens logs`.
//
// Last returns the final lines of a file along with the byte offset after
// them; Follow polls from an offset and hands each appended line to a
// callback until its context ends. A file that shrinks below the offset is
// treated as rotated and re-read from the start.
package logs
