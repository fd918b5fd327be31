// Package subtitle holds the transcript model shared by recognizers, the
// merger that stitches overlapping chunk transcripts into one timeline, and
// the SubRip (SRT) renderer, parser, and validator.
package subtitle
