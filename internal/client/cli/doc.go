// Package cli provides the interactive planetsync command-line client.
//
// It builds the sync core through package app, settles what the previous run
// left behind, and runs a REPL on top of it. A background watcher keeps the
// prompt's online/offline mode and transfer activity current.
//
// Commands:
//   - planets, sync, articles, show: browse and refresh the local mirror
//   - pull: download one article, showing attachment progress
//   - post, edit, delete: change content on the server
//   - drafts, draft, publish: keep unsent content locally until it is sent
//   - ping, status: connectivity and activity
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
