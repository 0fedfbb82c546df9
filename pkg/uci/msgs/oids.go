package msgs

import (
	"fmt"
	"sort"
	"sync"
)

// Groups (GID)
const (
	GroupCore        byte = 0x0
	GroupSession     byte = 0x1
	GroupRanging     byte = 0x2
	GroupVendorFirst byte = 0x9 // first vendor-specific group.
	GroupVendor      byte = 0xe // vendor group used by DefaultRegistry.
	GroupVendorLast  byte = 0xf
)

// OIDs in GroupCore.
const (
	OIDCoreDeviceReset    byte = 0x00
	OIDCoreDeviceStatus   byte = 0x01
	OIDCoreDeviceInfo     byte = 0x02
	OIDCoreGetCaps        byte = 0x03
	OIDCoreSetConfig      byte = 0x04
	OIDCoreGetConfig      byte = 0x05
	OIDCoreGenericError   byte = 0x07
	OIDCoreQueryTimestamp byte = 0x08
)

// OIDs in GroupSession.
const (
	OIDSessionInit         byte = 0x00
	OIDSessionDeinit       byte = 0x01
	OIDSessionStatus       byte = 0x02
	OIDSessionSetAppConfig byte = 0x03
	OIDSessionGetAppConfig byte = 0x04
	OIDSessionGetCount     byte = 0x05
	OIDSessionGetState     byte = 0x06
)

// OIDs in GroupRanging.
const (
	OIDRangeStart byte = 0x00
	OIDRangeData  byte = 0x00 // notification, shares the opcode with start.
	OIDRangeStop  byte = 0x01
)

// OIDs in GroupVendor.
const (
	OIDVendorRangingDiag byte = 0x02
	OIDVendorSetDiag     byte = 0x03
)

// OIDMask selects the OID bits of an opcode byte.
const OIDMask byte = 0x3f

// Direction separates the OID namespaces of commands and notifications,
// UCI reuses opcodes between them.
type Direction int

// Directions.
const (
	DirCommand Direction = iota
	DirNotification
)

type oidKey struct {
	dir   Direction
	group byte
	oid   byte
}

// Registry maps (direction, GID, OID) to names. It is only used to label
// reports and logs, unknown OIDs are never rejected.
type Registry struct {
	entries map[oidKey]string
	lock    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[oidKey]string)}
}

// Register adds or replaces an entry.
func (r *Registry) Register(dir Direction, group, oid byte, name string) *Registry {
	r.lock.Lock()
	r.entries[oidKey{dir: dir, group: group & 0x0f, oid: oid & OIDMask}] = name
	r.lock.Unlock()
	return r
}

// Lookup finds an entry.
func (r *Registry) Lookup(dir Direction, group, oid byte) (string, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	name, ok := r.entries[oidKey{dir: dir, group: group & 0x0f, oid: oid & OIDMask}]
	return name, ok
}

// Find finds the group and OID registered with the name.
func (r *Registry) Find(dir Direction, name string) (group, oid byte, ok bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	for key, val := range r.entries {
		if key.dir == dir && val == name {
			return key.group, key.oid, true
		}
	}
	return 0, 0, false
}

// Names returns the registered names of the direction.
func (r *Registry) Names(dir Direction) []string {
	r.lock.RLock()
	names := make([]string, 0, len(r.entries))
	for key, val := range r.entries {
		if key.dir == dir {
			names = append(names, val)
		}
	}
	r.lock.RUnlock()
	sort.Strings(names)
	return names
}

// Name returns the registered name or UnknownName.
func (r *Registry) Name(dir Direction, group, oid byte) string {
	if name, ok := r.Lookup(dir, group, oid); ok {
		return name
	}
	return UnknownName(group, oid)
}

// UnknownName formats the name used for unregistered OIDs.
func UnknownName(group, oid byte) string {
	return fmt.Sprintf("gid%x.oid%02x", group&0x0f, oid&OIDMask)
}

// IsVendorGroup tells whether the group is vendor-specific.
func IsVendorGroup(group byte) bool {
	group &= 0x0f
	return group >= GroupVendorFirst && group <= GroupVendorLast
}

// DefaultRegistry contains the standard core/session/ranging OIDs
// and the vendor ranging diagnostics report.
var DefaultRegistry = NewRegistry().
	Register(DirCommand, GroupCore, OIDCoreDeviceReset, "core.device_reset").
	Register(DirCommand, GroupCore, OIDCoreDeviceInfo, "core.device_info").
	Register(DirCommand, GroupCore, OIDCoreGetCaps, "core.get_caps").
	Register(DirCommand, GroupCore, OIDCoreSetConfig, "core.set_config").
	Register(DirCommand, GroupCore, OIDCoreGetConfig, "core.get_config").
	Register(DirCommand, GroupCore, OIDCoreQueryTimestamp, "core.query_timestamp").
	Register(DirNotification, GroupCore, OIDCoreDeviceStatus, "core.device_status").
	Register(DirNotification, GroupCore, OIDCoreGenericError, "core.generic_error").
	Register(DirCommand, GroupSession, OIDSessionInit, "session.init").
	Register(DirCommand, GroupSession, OIDSessionDeinit, "session.deinit").
	Register(DirCommand, GroupSession, OIDSessionSetAppConfig, "session.set_app_config").
	Register(DirCommand, GroupSession, OIDSessionGetAppConfig, "session.get_app_config").
	Register(DirCommand, GroupSession, OIDSessionGetCount, "session.get_count").
	Register(DirCommand, GroupSession, OIDSessionGetState, "session.get_state").
	Register(DirNotification, GroupSession, OIDSessionStatus, "session.status").
	Register(DirCommand, GroupRanging, OIDRangeStart, "range.start").
	Register(DirCommand, GroupRanging, OIDRangeStop, "range.stop").
	Register(DirNotification, GroupRanging, OIDRangeData, "range.data").
	Register(DirCommand, GroupVendor, OIDVendorSetDiag, "vendor.set_diagnostics").
	Register(DirNotification, GroupVendor, OIDVendorRangingDiag, "vendor.ranging_diagnostics")
