package classusage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stackb/jvm-abi/pkg/protobuf"
)

// ProtoSuffix selects the binary manifest format; any other file name is
// written as JSON.
const ProtoSuffix = ".pb"

// Struct returns the snapshot as a protobuf Struct whose fields are lists
// of strings.
func (m Map) Struct() *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(m.usages))}
	for source, classFiles := range m.usages {
		values := make([]*structpb.Value, len(classFiles))
		for i, classFile := range classFiles {
			values[i] = structpb.NewStringValue(classFile)
		}
		s.Fields[source] = structpb.NewListValue(&structpb.ListValue{Values: values})
	}
	return s
}

// FromStruct is the inverse of Map.Struct.
func FromStruct(s *structpb.Struct) (Map, error) {
	usages := make(map[string][]string, len(s.GetFields()))
	for source, value := range s.GetFields() {
		list, ok := value.GetKind().(*structpb.Value_ListValue)
		if !ok {
			return Map{}, fmt.Errorf("%s: want list, got %T", source, value.GetKind())
		}
		for i, v := range list.ListValue.GetValues() {
			str, ok := v.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return Map{}, fmt.Errorf("%s[%d]: want string, got %T", source, i, v.GetKind())
			}
			usages[source] = append(usages[source], str.StringValue)
		}
	}
	return NewMap(usages), nil
}

// Marshal encodes the snapshot in the format implied by filename.
func Marshal(filename string, m Map) ([]byte, error) {
	if filepath.Ext(filename) == ProtoSuffix {
		return protobuf.Marshal(filename, m.Struct())
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes a manifest in the format implied by filename.
func Unmarshal(filename string, data []byte) (Map, error) {
	if filepath.Ext(filename) == ProtoSuffix {
		var s structpb.Struct
		if err := protobuf.Unmarshal(filename, data, &s); err != nil {
			return Map{}, err
		}
		return FromStruct(&s)
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return Map{}, fmt.Errorf("unmarshal %q: %w", filename, err)
	}
	return m, nil
}

// ReadFile reads a manifest written by a FileWriter.
func ReadFile(filename string) (Map, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Map{}, err
	}
	return Unmarshal(filename, data)
}
