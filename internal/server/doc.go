// Package server exposes the transfer service over HTTP.
//
// It owns the session layer, the OAuth handshake with the destination
// service, per-route rate limiting, and the JSON endpoints that drive
// whole-playlist and single-track transfers. Everything below the HTTP
// surface lives in the tasks and services packages.
package server
