package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
)

const maxBodyBytes = 1 << 20

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Username string
}

func (r *CreateUserRequest) bind(fields map[string]string) {
	r.Username = fields["username"]
}

// AddExerciseRequest is the body of POST /api/users/{id}/exercises. Values stay as raw text;
// the exercise log owns their validation.
type AddExerciseRequest struct {
	Description string
	Duration    string
	Date        string
}

func (r *AddExerciseRequest) bind(fields map[string]string) {
	r.Description = fields["description"]
	r.Duration = fields["duration"]
	r.Date = fields["date"]
}

type binder interface {
	bind(map[string]string)
}

// decodeFields reads a form-urlencoded, multipart or JSON body into dst.
func decodeFields(w http.ResponseWriter, r *http.Request, dst binder) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		fields map[string]string
		err    error
	)
	switch mediaType {
	case "application/json":
		fields, err = jsonFields(r.Body)
	case "multipart/form-data":
		if err = r.ParseMultipartForm(maxBodyBytes); err == nil {
			fields = firstValues(r.PostForm)
		}
	default:
		if err = r.ParseForm(); err == nil {
			fields = firstValues(r.PostForm)
		}
	}
	if err != nil {
		return fmt.Errorf("unable to parse body: %w", err)
	}
	dst.bind(fields)
	return nil
}

func firstValues(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			out[key] = vals[0]
		}
	}
	return out
}

// jsonFields accepts an object whose values are strings, numbers or null.
func jsonFields(body io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]string{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		case bool:
			fields[key] = strconv.FormatBool(v)
		default:
			return nil, errors.New(key + " must be a string or number")
		}
	}
	return fields, nil
}
