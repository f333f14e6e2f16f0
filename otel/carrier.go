package otel

import "github.com/hugolhafner/go-connect/record"

// HeadersCarrier propagates trace context through source record headers.
type HeadersCarrier struct {
	Headers *[]record.Header
}

func NewHeadersCarrier(headers *[]record.Header) HeadersCarrier {
	return HeadersCarrier{Headers: headers}
}

func (c HeadersCarrier) Get(key string) string {
	for _, h := range *c.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c HeadersCarrier) Set(key, value string) {
	// records can carry duplicate keys, overwrite all of them or add a new one
	found := false
	for i, h := range *c.Headers {
		if h.Key == key {
			(*c.Headers)[i].Value = []byte(value)
			found = true
		}
	}

	if !found {
		*c.Headers = append(*c.Headers, record.Header{Key: key, Value: []byte(value)})
	}
}

func (c HeadersCarrier) Keys() []string {
	keys := make([]string, len(*c.Headers))
	for i, h := range *c.Headers {
		keys[i] = h.Key
	}
	return keys
}
