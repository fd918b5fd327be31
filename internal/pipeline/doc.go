// Package pipeline turns one media source into one SubRip subtitle file.
//
// Generate runs the full chain for a request: probe the container, extract
// the audio track to 16 kHz mono WAV, plan transcription windows, recognize
// each window through the configured provider with retries, merge the window
// transcripts, optionally rewrite the text through the optimizer, and write
// the rendered SRT atomically. Merged transcripts are cached by source
// fingerprint so a repeated run skips straight to rendering.
//
// A window failing after retries fails the whole call; a partial subtitle
// file is never written. Optimizer failures only degrade: the unoptimized
// transcript is still rendered.
//
// StageHandler adapts Generate to the workflow manager's stage contract.
package pipeline
