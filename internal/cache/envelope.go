package cache

import (
	"bytes"
	"errors"

	"github.com/mohammed-shakir/meteo-query/internal/core/transport"
)

// A cached payload is stored as content type, a NUL byte, then the body.
func encodePayload(p transport.Payload) []byte {
	out := make([]byte, 0, len(p.ContentType)+1+len(p.Body))
	out = append(out, p.ContentType...)
	out = append(out, 0)
	return append(out, p.Body...)
}

func decodePayload(b []byte) (transport.Payload, error) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return transport.Payload{}, errors.New("cached payload has no content type separator")
	}
	return transport.Payload{ContentType: string(b[:i]), Body: b[i+1:]}, nil
}
