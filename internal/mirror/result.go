package mirror

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
)

type resultKind int

const (
	resultOK resultKind = iota
	resultPartial
	resultNotFound
	resultBadRequest
	resultInvalidRange
	resultUnsatisfiable
	resultUnauthorized
	resultInternal
)

const (
	contentTypeBinary = "application/octet-stream"
	contentTypeHTML   = "text/html"
	contentTypeJSON   = "application/json"
	contentTypeKeys   = "application/pgp-keys"
)

// result is the outcome of a handler. Exactly one writeResult call
// turns it into a response.
type result struct {
	kind        resultKind
	contentType string
	body        []byte

	// partial and unsatisfiable responses
	first, last, total uint64
}

func okResult(contentType string, body []byte) *result {
	return &result{kind: resultOK, contentType: contentType, body: body}
}

func unauthorized(body string) *result {
	return &result{kind: resultUnauthorized, body: []byte(body)}
}

// serveData answers with data, honoring br when it is not nil.
func serveData(data []byte, br *ByteRange) *result {
	if br == nil {
		return okResult(contentTypeBinary, data)
	}
	total := uint64(len(data))
	first, last, err := br.Clamp(total)
	if err != nil {
		return &result{kind: resultUnsatisfiable, total: total}
	}
	return &result{
		kind:        resultPartial,
		contentType: contentTypeBinary,
		body:        data[first : last+1],
		first:       first,
		last:        last,
		total:       total,
	}
}

// errorResult maps a handler error to a result by its marker.
func errorResult(err error) *result {
	switch {
	case errors.Is(err, ErrInvalidRange):
		return &result{kind: resultInvalidRange}
	case errors.Is(err, ErrBadRequest):
		return &result{kind: resultBadRequest}
	case errors.Is(err, ErrNotFound):
		return &result{kind: resultNotFound}
	case errors.Is(err, ErrUnauthorized):
		return unauthorized(err.Error())
	}
	return &result{kind: resultInternal, body: []byte(err.Error())}
}

func writeResult(w http.ResponseWriter, res *result) {
	h := w.Header()
	status := http.StatusOK

	switch res.kind {
	case resultPartial:
		status = http.StatusPartialContent
		h.Set("Accept-Ranges", "bytes")
		h.Set("Content-Range", "bytes "+strconv.FormatUint(res.first, 10)+"-"+
			strconv.FormatUint(res.last, 10)+"/"+strconv.FormatUint(res.total, 10))
	case resultNotFound:
		status = http.StatusNotFound
	case resultBadRequest, resultInvalidRange:
		status = http.StatusBadRequest
	case resultUnsatisfiable:
		status = http.StatusRequestedRangeNotSatisfiable
		h.Set("Content-Range", "bytes */"+strconv.FormatUint(res.total, 10))
	case resultUnauthorized:
		status = http.StatusUnauthorized
		h.Set("WWW-Authenticate", authRealm)
		res.contentType = contentTypeHTML
	case resultInternal:
		status = http.StatusInternalServerError
	}

	if res.contentType != "" {
		h.Set("Content-Type", res.contentType)
	}
	if res.body != nil {
		h.Set("Content-Length", strconv.Itoa(len(res.body)))
	}
	w.WriteHeader(status)
	if len(res.body) == 0 {
		return
	}
	if _, err := w.Write(res.body); err != nil {
		slog.Debug("failed to write response body", "status", status, "error", err)
	}
}
