package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/types"
)

// ── Beat body ────────────────────────────────────────────────────────────────

// readBeatRequest extracts optional details from a beat body. A beat is
// recorded whatever the body holds: details are decoded only from JSON and
// protobuf bodies, unknown top-level fields are ignored, and a body that
// cannot be decoded yields no details. The returned error, if any, explains
// why details were dropped and is for logging only.
func readBeatRequest(r *http.Request) (types.BeatRequest, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !isJSONType(mt) && !isProtobufType(mt) {
		return types.BeatRequest{}, nil
	}

	body, err := readBody(r)
	if err != nil {
		return types.BeatRequest{}, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return types.BeatRequest{}, nil
	}

	var st structpb.Struct
	if isProtobufType(mt) {
		if err := proto.Unmarshal(body, &st); err != nil {
			return types.BeatRequest{}, fmt.Errorf("invalid protobuf body: %w", err)
		}
	} else if err := protojson.Unmarshal(body, &st); err != nil {
		return types.BeatRequest{}, errors.New("invalid JSON body")
	}
	return beatRequestFromStruct(&st), nil
}

// beatRequestFromStruct reads the "details" object from a Struct. Scalar
// detail values are rendered as strings; nested values and every other
// top-level field are skipped.
func beatRequestFromStruct(st *structpb.Struct) types.BeatRequest {
	var req types.BeatRequest
	details := st.GetFields()["details"].GetStructValue()
	if details == nil {
		return req
	}
	for k, dv := range details.GetFields() {
		s, ok := scalarString(dv)
		if !ok {
			continue
		}
		if req.Details == nil {
			req.Details = make(map[string]string, len(details.GetFields()))
		}
		req.Details[k] = s
	}
	return req
}

func scalarString(v *structpb.Value) (string, bool) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, true
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64), true
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue), true
	default:
		return "", false
	}
}

// ── Responses ────────────────────────────────────────────────────────────────

// toStruct converts a JSON-tagged response into a Struct with the same field
// names and values.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
