// Package msgs provides the typed message model carried in UCI payloads,
// the OID registry and the report events delivered to platforms.
package msgs

// UCI payloads are trees of Typed values independent of their wire encoding.
// The codec package maps them to CBOR, the comm package frames them.
//
// Producer: UWB MAC controller (reports, responses) and host (commands)
// Consumer: host platform
