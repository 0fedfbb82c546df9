// Package comm provides UCI packet framing, the transport session and
// the command/report dispatcher.
package comm

// UCI packets are exchanged between the host and the UWB controller over
// a byte stream (e.g. serial port) which may deliver bytes in arbitrary
// chunks. Each packet starts with a 4 bytes header:
//
//   GroupID: MT(7..5) PBF(4) GID(3..0)
//   Opcode:  OID(5..0)
//   Length:  payload length, 2 bytes big-endian
//
// followed by Length bytes of CBOR encoded payload.
// PBF is set on all but the last segment of a payload split across
// multiple packets.
//
// Only one command can be outstanding at a time. Responses complete the
// outstanding command, notifications are turned into reports and handed
// to the platform.
