package transport

import "net/http"

// skipRequest is the set of caller supplied headers that are never sent.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection": {},

	// The Host header is derived from the base URL.
	"Host": {},

	// Stripped so that Go's http.Transport negotiates gzip itself and
	// transparently decompresses the stream.
	"Accept-Encoding": {},
}

// setRequestHeaders applies the client defaults, then the per-request headers,
// then the headers every stream request carries.
func setRequestHeaders(req *http.Request, sets ...http.Header) {
	for _, h := range sets {
		for k, v := range h {
			k = http.CanonicalHeaderKey(k)
			if _, skip := skipRequest[k]; skip {
				continue
			}
			req.Header.Del(k)
			for _, vv := range v {
				req.Header.Add(k, vv)
			}
		}
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
}
