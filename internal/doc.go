// Package internal contains the implementation packages of blockfactory.
//
// # Package Organization
//
//   - document: the block document tree and its XML, JSON and YAML codecs
//   - canvas: the headless block canvas used for editing, staging and preview
//   - model: toolbox elements, the template-block registry and injection options
//   - canonical: replays snapshots on a staging canvas to build export documents
//   - controller: the editing session that ties the model, canvases and preview together
//   - preview: the preview policy and its snapshot subscribers
//   - project: the on-disk project file
//   - config: configuration through Viper
//   - watcher: debounced project file watching
//   - websocket: live preview fan-out to browsers
//   - server: the HTTP API and preview page
//   - errors, logging, version: shared support
//
// The controller is not safe for concurrent use. The server serializes
// every session call behind one mutex.
package internal
