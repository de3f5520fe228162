// Package sqlite persists actor fields, actor alarms, and alias rows in a
// single SQLite file.
package sqlite
