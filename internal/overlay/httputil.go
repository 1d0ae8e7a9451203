package overlay

import (
	"fmt"
	"io"
)

type httpError struct {
	status int
	url    string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d fetching %s", e.status, e.url)
}

func httpStatusError(status int, url string) error {
	return &httpError{status: status, url: url}
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, 32<<20))
}
