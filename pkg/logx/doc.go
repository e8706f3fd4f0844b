// Package logx configures matchbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output
// readable, file output JSON-structured, and forwards warnings to an
// optional chat sink with a level floor and a rate limit.
package logx
