package protocol

// StringValues coerces caller field values to the strings the wire carries.
// The conversion is one-way and lossy: bytes that are not valid UTF-8 are
// replaced with U+FFFD when the envelope is encoded, so binary values do not
// round-trip through the server.
func StringValues(values map[string][]byte) map[string]string {
	out := make(map[string]string, len(values))
	for field, v := range values {
		out[field] = string(v)
	}
	return out
}
