//go:build !arm

package align

// Line is the target cache-line size in bytes: 64 on every architecture
// except 32-bit ARM, which uses a 32-byte line (see align_line32.go).
const Line = 64
