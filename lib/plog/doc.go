// Package plog writes log lines from several processes into one file.
//
// Each process buffers complete lines and appends them while holding a named mutex, so the
// output of different processes never interleaves within a line. The file is opened lazily
// on the first flush; with Options.Gzip every flush is appended as a separate gzip member.
//
// A Writer is an io.Writer and can be passed to common.SetLogOutput to collect the logs of
// this module.
package plog
