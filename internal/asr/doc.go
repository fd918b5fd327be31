// Package asr defines the speech recognition provider surface.
//
// A Provider turns one audio file into a transcript with segment timing.
// The closed kind set covers two remote OpenAI-compatible services and
// two local whisper-cpp variants; the registry resolves kinds to
// configured implementations at runtime.
package asr
