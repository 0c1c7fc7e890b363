// Package authv1 declares the auth.v1 gRPC services, their messages and a
// JSON wire codec. Messages are plain structs; clients and servers negotiate
// the codec through the "application/grpc+json" content subtype.
package authv1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype under which the JSON codec is registered.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec marshals messages as JSON.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("authv1: cannot marshal nil message")
	}
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}

// CallOption selects the JSON codec for a client call.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
