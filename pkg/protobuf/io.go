package protobuf

import (
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

type marshaler func(m protoreflect.ProtoMessage) ([]byte, error)
type unmarshaler func(b []byte, m protoreflect.ProtoMessage) error

// deterministic emits map entries in key order so equal messages always
// encode to equal bytes.
var deterministic = proto.MarshalOptions{Deterministic: true}

func unmarshalerForFilename(filename string) unmarshaler {
	if filepath.Ext(filename) == ".json" {
		return protojson.Unmarshal
	}
	if filepath.Ext(filename) == ".pbtext" {
		return prototext.Unmarshal
	}
	return proto.Unmarshal
}

func marshalerForFilename(filename string) marshaler {
	if filepath.Ext(filename) == ".json" {
		return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal
	}
	if filepath.Ext(filename) == ".pbtext" {
		return prototext.MarshalOptions{Multiline: true}.Marshal
	}
	return deterministic.Marshal
}

// Marshal encodes the message in the format implied by the filename
// extension: ".json", ".pbtext", or binary wire format otherwise. The binary
// encoding is deterministic.
func Marshal(filename string, message protoreflect.ProtoMessage) ([]byte, error) {
	data, err := marshalerForFilename(filename)(message)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

// Unmarshal decodes data in the format implied by the filename extension.
func Unmarshal(filename string, data []byte, message protoreflect.ProtoMessage) error {
	if err := unmarshalerForFilename(filename)(data, message); err != nil {
		return fmt.Errorf("unmarshal %q: %w", filename, err)
	}
	return nil
}

func ReadFile(filename string, message protoreflect.ProtoMessage) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read %q: %w", filename, err)
	}
	return Unmarshal(filename, data, message)
}

func WriteFile(filename string, message protoreflect.ProtoMessage) error {
	data, err := Marshal(filename, message)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
