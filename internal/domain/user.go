// Package domain contains entity without logic, just meta-data
package domain

import (
	"bytes"
	"encoding/json"
)

// ConnID is the opaque per-connection handle assigned by the transport
// layer. It lives from connect to disconnect and is never reused while
// referenced elsewhere.
type ConnID string

// UserDescriptor is the externally supplied user record attached to a
// connection for the duration of its membership. The core never inspects
// or validates it beyond checking that it is present.
type UserDescriptor = json.RawMessage

var jsonNull = []byte("null")

// DescriptorPresent reports whether a descriptor carries anything at all.
func DescriptorPresent(d UserDescriptor) bool {
	t := bytes.TrimSpace(d)
	return len(t) > 0 && !bytes.Equal(t, jsonNull)
}
