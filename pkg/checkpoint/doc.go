// Package checkpoint keeps a per-target record of the current harvest run
// so that clips saved before an interruption can still be compiled.
//
// Records are stored in platform-specific data directories:
//   - Linux: ~/.local/share/igreels/checkpoints/
//   - macOS: ~/Library/Application Support/igreels/checkpoints/
//   - Windows: %APPDATA%/igreels/checkpoints/
//
// Files are replaced atomically on every save.
package checkpoint
