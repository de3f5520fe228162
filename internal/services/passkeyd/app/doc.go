// Package app assembles passkeyd: storage, actor hosts, the alias cache,
// orchestration, and the public and internal HTTP listeners.
package app
