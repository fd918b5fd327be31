// Package textutil provides text processing utilities shared across the
// transcription pipeline.
//
// The primary use cases are:
//   - Normalizing transcript text so overlapping chunk segments can be
//     compared for duplicates
//   - Computing cosine similarity between token fingerprints to catch
//     near-duplicate segments the recognizer worded slightly differently
//   - Sanitizing titles and path segments for safe filesystem use
//
// Fingerprints use term frequency vectors normalized for efficient
// comparison. Tokenization lowercases text, splits on non-alphanumeric
// characters, and filters tokens shorter than 3 characters.
package textutil
