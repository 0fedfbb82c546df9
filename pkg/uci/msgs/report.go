package msgs

import (
	"context"
	"fmt"
	"time"
)

// Report is an unsolicited notification received from the device.
type Report struct {
	Group byte
	OID   byte
	// Name is the registered name, or UnknownName for unrecognized OIDs.
	Name string
	// Recognized is false when the OID isn't in the registry. Such
	// reports are still delivered, the handler decides relevance.
	Recognized bool
	Payload    Typed
	ReceivedAt time.Time
}

// NewReport creates a Report labeled using the registry.
func NewReport(reg *Registry, group, oid byte, payload Typed) *Report {
	r := &Report{
		Group:      group & 0x0f,
		OID:        oid & OIDMask,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	if reg == nil {
		reg = DefaultRegistry
	}
	r.Name, r.Recognized = reg.Lookup(DirNotification, group, oid)
	if !r.Recognized {
		r.Name = UnknownName(group, oid)
	}
	return r
}

// String implements fmt.Stringer.
func (r *Report) String() string {
	tag := ""
	if !r.Recognized {
		tag = " (unrecognized)"
	}
	return fmt.Sprintf("%s%s %s", r.Name, tag, r.Payload)
}

// ReportHandler consumes reports.
type ReportHandler interface {
	HandleReport(context.Context, *Report) error
}

// HandleReportFunc is func form of ReportHandler.
type HandleReportFunc func(context.Context, *Report) error

// HandleReport implements ReportHandler.
func (f HandleReportFunc) HandleReport(ctx context.Context, r *Report) error {
	return f(ctx, r)
}
