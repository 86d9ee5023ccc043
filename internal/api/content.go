package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"sort"

	"github.com/peakplatform/peak-go/internal/artifact"
)

// ContentType selects the encoding strategy for a request. The set is
// closed: anything else is a programming-contract violation, not a runtime
// condition, and newBodySource panics on it.
type ContentType string

const (
	ContentTypeJSON      ContentType = "application/json"
	ContentTypeMultipart ContentType = "multipart/form-data"
)

// ProgressFunc is notified as upload bytes are streamed, with bytes sent
// so far and the total artifact size.
type ProgressFunc func(sent, total int64)

// Request describes one logical API call. A descriptor is ephemeral: build
// one per call.
type Request struct {
	Method       string
	URL          string
	ContentType  ContentType
	Headers      map[string]string
	Params       map[string]any
	Body         map[string]any
	ArtifactPath string
	IgnoreFiles  []string
	Progress     ProgressFunc
}

// queryString encodes Params, dropping keys with nil values before
// transmission. Keys are sorted so request URLs are stable.
func (r *Request) queryString() string {
	if len(r.Params) == 0 {
		return ""
	}
	values := url.Values{}
	for key, value := range r.Params {
		if value == nil {
			continue
		}
		values.Set(key, fmt.Sprint(value))
	}
	return values.Encode()
}

// bodySource produces a fresh request body per transport attempt, so
// retries never resend a half-consumed reader.
type bodySource interface {
	// next returns a new body reader and the Content-Type header value.
	next() (io.Reader, string, error)
	io.Closer
}

// newBodySource selects the strategy for the declared content type. For
// multipart requests with a source path the artifact is packaged here,
// before any network activity, so packaging failures abort the whole
// request.
func newBodySource(req *Request) (bodySource, error) {
	switch req.ContentType {
	case ContentTypeJSON, "":
		return newJSONSource(req.Body)
	case ContentTypeMultipart:
		return newMultipartSource(req)
	default:
		panic(fmt.Sprintf("unsupported content type %q", req.ContentType))
	}
}

type jsonSource struct {
	payload []byte
}

func newJSONSource(body map[string]any) (*jsonSource, error) {
	if body == nil {
		return &jsonSource{}, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return &jsonSource{payload: payload}, nil
}

func (s *jsonSource) next() (io.Reader, string, error) {
	if s.payload == nil {
		return nil, string(ContentTypeJSON), nil
	}
	return bytes.NewReader(s.payload), string(ContentTypeJSON), nil
}

func (s *jsonSource) Close() error { return nil }

type multipartSource struct {
	fields   map[string]string
	bundle   *artifact.Bundle
	progress ProgressFunc
}

func newMultipartSource(req *Request) (*multipartSource, error) {
	fields, err := stringifyFields(req.Body)
	if err != nil {
		return nil, err
	}
	src := &multipartSource{fields: fields, progress: req.Progress}
	if req.ArtifactPath != "" {
		bundle, err := artifact.Compress(req.ArtifactPath, req.IgnoreFiles)
		if err != nil {
			return nil, err
		}
		src.bundle = bundle
	}
	return src, nil
}

// next streams the multipart body through a pipe so the archive is never
// duplicated in memory. The bundle is rewound per attempt.
func (s *multipartSource) next() (io.Reader, string, error) {
	if s.bundle != nil {
		if _, err := s.bundle.Seek(0, io.SeekStart); err != nil {
			return nil, "", err
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := s.writeParts(mw)
		if closeErr := mw.Close(); err == nil {
			err = closeErr
		}
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType(), nil
}

func (s *multipartSource) writeParts(mw *multipart.Writer) error {
	keys := make([]string, 0, len(s.fields))
	for key := range s.fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := mw.WriteField(key, s.fields[key]); err != nil {
			return fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if s.bundle == nil {
		return nil
	}

	// CreateFormFile would tag the part application/octet-stream; the
	// service expects application/zip.
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, artifact.UploadName, artifact.UploadFilename))
	header.Set("Content-Type", artifact.UploadMediaType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create artifact part: %w", err)
	}
	var src io.Reader = s.bundle
	if s.progress != nil {
		src = &progressReader{r: s.bundle, total: s.bundle.Size(), notify: s.progress}
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to stream artifact: %w", err)
	}
	return nil
}

func (s *multipartSource) Close() error {
	if s.bundle == nil {
		return nil
	}
	return s.bundle.Close()
}

// progressReader notifies an observer of bytes-sent/total as the archive
// streams out.
type progressReader struct {
	r      io.Reader
	sent   int64
	total  int64
	notify ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.notify(p.sent, p.total)
	}
	return n, err
}

func stringifyFields(body map[string]any) (map[string]string, error) {
	if len(body) == 0 {
		return nil, nil
	}
	fields := make(map[string]string, len(body))
	for key, value := range body {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			fields[key] = v
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %s: %w", key, err)
			}
			fields[key] = string(raw)
		}
	}
	return fields, nil
}
