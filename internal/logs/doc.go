// Package logs reads kettle's log file for `kettle logs`.
//
// Last returns the final lines of the file with bounded memory. Follow then
// polls from the returned offset and emits lines as they are appended,
// starting over when the file is truncated or rotated.
package logs
