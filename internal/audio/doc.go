// Package audio converts provider output into the canonical WAV format
// served to clients: 16-bit PCM behind a standard 44-byte RIFF header.
package audio
