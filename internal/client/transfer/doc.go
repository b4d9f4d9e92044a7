// Package transfer runs background uploads and downloads that outlive the
// operation that started them.
//
// Every transfer is identified by a models.ResourceKey and has at most one
// completion handler. A manifest row is written before the request goes out
// and removed after the handler ran, so a restarted process can tell which
// transfers are still pending. Handlers are not persisted: after a restart
// callers Claim the keys they still care about and then call Recover, which
// resumes claimed transfers and cancels the rest.
package transfer
