package main

import (
	"io"

	http "github.com/bogdanfinn/fhttp"
)

// PseudoHeaderOrder is the standard HTTP/2 pseudo-header order for all requests.
var PseudoHeaderOrder = []string{
	":method",
	":authority",
	":scheme",
	":path",
}

// httpDoer is the slice of tls_client.HttpClient the pipeline actually needs.
// Tests inject a scripted fake here instead of a real transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// readResponseBody decompresses and reads the full response body.
// Caller should defer resp.Body.Close() before calling this.
func readResponseBody(resp *http.Response) ([]byte, error) {
	body := http.DecompressBody(resp)
	defer body.Close()
	return io.ReadAll(body)
}

// Logger is the minimal logging surface shared by every stage.
type Logger interface {
	Log(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Log(format string, args ...any) {}
