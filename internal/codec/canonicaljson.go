package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sort"
)

// CanonicalJSON produces byte-identical output for equivalent values: object
// keys are sorted, there is no insignificant whitespace, and non-string map
// keys are accepted (encoding/json already stringifies integer map keys
// during the first marshal pass, mirroring orjson's OPT_NON_STR_KEYS).
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writeCanonical(&buf, generic)
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(t.String())
	case string:
		s, _ := json.Marshal(t)
		buf.Write(s)
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, e)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			ks, _ := json.Marshal(k)
			buf.Write(ks)
			buf.WriteByte(':')
			writeCanonical(buf, t[k])
		}
		buf.WriteByte('}')
	default:
		// Unreachable for values produced by the json decoder above.
		s, _ := json.Marshal(t)
		buf.Write(s)
	}
}

// ContentHash is base64url(sha256(data)) with padding stripped.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ContentHashValue canonicalizes v and returns its content-address key.
func ContentHashValue(v any) (string, error) {
	blob, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return ContentHash(blob), nil
}
