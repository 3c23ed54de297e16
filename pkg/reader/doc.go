// Package reader provides scan sources for the door controller.
//
// ConnSource reads a card reader module over a byte link such as a serial
// port bridged to TCP. Each scan arrives as one frame:
//
//	STX  LEN  UID[LEN]  XOR  ETX
//	0x02 n    n bytes   x    0x03
//
// XOR is the exclusive or of LEN and every UID byte, and LEN is at most 10.
// After a malformed frame the decoder skips to the next STX. Only 4-byte
// UIDs are accepted; longer UIDs are reported as ErrUnsupportedUID.
//
// LineSource reads one hex UID per line from a console or pipe.
//
// Both sources decode on a background goroutine into a bounded queue, so
// TryRead never blocks. Malformed input is returned from TryRead once as a
// transient error and counted in Stats. When the link ends, TryRead and
// Probe report ErrClosed.
package reader
