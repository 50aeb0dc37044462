package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"khata/internal/core"
)

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

func invalidParam(field string, err error) error {
	return &core.ValidationError{Field: field, Err: err}
}

// parseRange reads the inclusive from/to query parameters. Both are optional.
func parseRange(q url.Values) (core.DateRange, error) {
	var r core.DateRange
	for _, p := range []struct {
		name string
		dst  *core.Date
	}{{"from", &r.From}, {"to", &r.To}} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		d, err := core.ParseDate(v)
		if err != nil {
			return core.DateRange{}, invalidParam(p.name, err)
		}
		*p.dst = d
	}
	if err := r.Validate(); err != nil {
		return core.DateRange{}, err
	}
	return r, nil
}

// parseMethod reads the optional payment_method filter; empty matches all.
func parseMethod(q url.Values) (core.PaymentMethod, error) {
	v := strings.TrimSpace(q.Get("payment_method"))
	if v == "" {
		return "", nil
	}
	m := core.PaymentMethod(v)
	if err := m.Validate(); err != nil {
		return "", invalidParam("payment_method", err)
	}
	return m, nil
}

// parseIntParam returns def when the parameter is absent.
func parseIntParam(q url.Values, name string, def, min, max int) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, invalidParam(name, fmt.Errorf("must be an integer between %d and %d", min, max))
	}
	return n, nil
}

func parseDateParam(q url.Values, name string) (core.Date, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, invalidParam(name, err)
	}
	return d, nil
}

func parseBoolParam(q url.Values, name string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(q.Get(name)))
	return b
}

// pathID parses the {id} path segment. Unknown ids are reported as not found
// by the service, so only syntax is checked here.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidParam("id", errors.New("must be a positive integer"))
	}
	return id, nil
}

// decodeJSON reads exactly one JSON value from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body larger than %d bytes", errBadRequest, tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}
