package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "timegate.v1.GateService"

// Full method names of the gate service.
const (
	MethodEvaluate    = "/" + ServiceName + "/Evaluate"
	MethodStatus      = "/" + ServiceName + "/Status"
	MethodSetOverride = "/" + ServiceName + "/SetOverride"
	MethodReload      = "/" + ServiceName + "/Reload"
	MethodHealth      = "/" + ServiceName + "/Health"
)

// ToStruct converts v to a structpb.Struct through its JSON encoding, so
// the gRPC messages carry the same shape as the HTTP bodies.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("to struct: %w", err)
	}
	return st, nil
}

// FromStruct decodes st into v. A nil struct leaves v untouched.
func FromStruct(st *structpb.Struct, v any) error {
	if st == nil {
		return nil
	}
	data, err := protojson.Marshal(st)
	if err != nil {
		return fmt.Errorf("from struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
