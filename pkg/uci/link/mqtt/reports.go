package mqtt

import (
	"context"
	"strings"

	"github.com/golang/glog"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/uci.go/pkg/uci/msgs"
)

// ReportTopic returns the topic reports of the name are published to.
func ReportTopic(device, name string) string {
	return DeviceTopic(device, TopicReport) + "/" + name
}

// ReportPublisher publishes reports as protobuf Struct.
type ReportPublisher struct {
	Queue  *Queue
	Device string
}

// NewReportPublisher creates a ReportPublisher.
func NewReportPublisher(q *Queue, device string) *ReportPublisher {
	return &ReportPublisher{Queue: q, Device: device}
}

// HandleReport implements msgs.ReportHandler.
func (p *ReportPublisher) HandleReport(ctx context.Context, r *msgs.Report) error {
	data, err := r.MarshalProto()
	if err != nil {
		return err
	}
	return p.Queue.Pub(ReportTopic(p.Device, r.Name), data)
}

// ReportEvent is a report received from a subscription.
type ReportEvent struct {
	Device string
	Name   string
	Report *structpb.Struct
}

// SubscribeReports subscribes to reports of the device, "+" for all
// devices. Undecodable messages are logged and skipped.
func SubscribeReports(q *Queue, device string, handler func(*ReportEvent)) *Subscription {
	return q.Sub(ReportTopic(device, "#"), func(topic string, payload []byte) {
		ev, err := parseReportEvent(topic, payload)
		if err != nil {
			glog.Warningf("report %q: %v", topic, err)
			return
		}
		handler(ev)
	})
}

func parseReportEvent(topic string, payload []byte) (*ReportEvent, error) {
	ev := &ReportEvent{}
	items := strings.SplitN(topic, "/", 3)
	if len(items) == 3 && items[1] == TopicReport {
		ev.Device, ev.Name = items[0], items[2]
	}
	s, err := msgs.UnmarshalReportProto(payload)
	if err != nil {
		return nil, err
	}
	ev.Report = s
	return ev, nil
}
