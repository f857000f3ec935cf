// Package codec serializes the values of a shared store. Values written by one process
// must be readable by every other process, so all serializers decode into the same small
// set of canonical Go types (see IValueSerializer).
package codec
