// Package audio inspects media files with ffprobe, plans overlapping
// transcription windows, and extracts 16 kHz mono WAV audio with ffmpeg.
// Extraction streams ffmpeg progress back to the caller so long files
// report percent updates while they convert.
package audio
