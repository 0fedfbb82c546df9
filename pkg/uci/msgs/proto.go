package msgs

import (
	"encoding/base64"
	"strconv"
	"time"

	"github.com/golang/protobuf/jsonpb"
	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
)

const (
	// maxExactFloat is the largest magnitude a float64 keeps exactly.
	maxExactFloat = 1 << 53

	// IntKeyPrefix marks integer map keys in protobuf Struct field names.
	IntKeyPrefix = "#"
)

// ProtoValue converts the value into a protobuf Value.
// Integers beyond float64 precision become decimal strings,
// byte strings become base64 (std encoding) strings.
// Maps become Structs, an integer key N is named "#N" so it never
// collides with the text key "N".
func (v Typed) ProtoValue() *structpb.Value {
	switch v.kind {
	case KindInt:
		if v.mag > maxExactFloat {
			s := strconv.FormatUint(v.mag, 10)
			if v.neg {
				s = "-" + s
			}
			return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
		}
		n := float64(v.mag)
		if v.neg {
			n = -n
		}
		return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: n}}
	case KindBytes:
		return &structpb.Value{Kind: &structpb.Value_StringValue{
			StringValue: base64.StdEncoding.EncodeToString(v.bytes),
		}}
	case KindText:
		return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: v.text}}
	case KindList:
		lst := &structpb.ListValue{Values: make([]*structpb.Value, len(v.items))}
		for i, item := range v.items {
			lst.Values[i] = item.ProtoValue()
		}
		return &structpb.Value{Kind: &structpb.Value_ListValue{ListValue: lst}}
	case KindMap:
		return &structpb.Value{Kind: &structpb.Value_StructValue{StructValue: v.protoStruct()}}
	}
	return &structpb.Value{Kind: &structpb.Value_NullValue{}}
}

func (v Typed) protoStruct() *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(v.pairs))}
	for _, p := range v.pairs {
		key := p.Key.text
		if !p.Key.isText {
			key = IntKeyPrefix + strconv.FormatInt(p.Key.num, 10)
		}
		s.Fields[key] = p.Value.ProtoValue()
	}
	return s
}

// Proto converts the report into a protobuf Struct.
func (r *Report) Proto() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"group":       {Kind: &structpb.Value_NumberValue{NumberValue: float64(r.Group)}},
		"oid":         {Kind: &structpb.Value_NumberValue{NumberValue: float64(r.OID)}},
		"name":        {Kind: &structpb.Value_StringValue{StringValue: r.Name}},
		"recognized":  {Kind: &structpb.Value_BoolValue{BoolValue: r.Recognized}},
		"received_at": {Kind: &structpb.Value_StringValue{StringValue: r.ReceivedAt.UTC().Format(time.RFC3339Nano)}},
		"payload":     r.Payload.ProtoValue(),
	}}
}

// MarshalProto encodes the report as a protobuf Struct.
func (r *Report) MarshalProto() ([]byte, error) {
	return proto.Marshal(r.Proto())
}

// UnmarshalReportProto decodes bytes produced by MarshalProto.
func UnmarshalReportProto(data []byte) (*structpb.Struct, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ReportJSON formats a decoded report Struct as JSON.
func ReportJSON(s *structpb.Struct) (string, error) {
	m := jsonpb.Marshaler{OrigName: true}
	return m.MarshalToString(s)
}
