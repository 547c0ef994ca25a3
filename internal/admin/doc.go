// Package admin exposes a machine's modems over HTTP: status, port control,
// test sends, the signal queue and a websocket signal tap.
package admin
