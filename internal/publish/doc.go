// Package publish implements the in-process publish actions: importing a
// rendered site directory as a new commit on a hosting branch, and pushing
// that branch to a remote with token authentication. Both use go-git and need
// no git binary for the import; pushes to local paths use the git transport
// helpers go-git shells out to.
package publish
