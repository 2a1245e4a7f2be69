// Package logging provides opt-in file-based logging with rotation for StudyRAG.
// When the --debug flag is set, comprehensive logs are written to the data
// directory's logs/ folder for debugging and troubleshooting.
//
// By default (without --debug), logging is minimal and goes to stderr only,
// keeping stdout free for command output.
package logging
