// Package admin exposes the probing control surface over HTTP: backend
// overview, per-backend health reports, pause/resume of probing, and
// backend removal.
package admin
