// Package engines contains the synthesis backends used by voxcache.
// PollyEngine is the cloud voice provider; PicoEngine is the offline
// fallback built on pico2wave.
package engines
