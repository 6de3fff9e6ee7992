/*
Package client provides easy and fast in-process access to the REST api

Instead of marshalling HTTP, the client talks directly to the mux router.
It is perfectly suited for unit tests, and also works against a remote
service when created with NewWithURL.
*/
package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router.
//
// WithToken() adds a bearer token to every request.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router: router,
	}
}

// NewWithURL creates a client to make REST requests to a remote backend
//
// WithToken() adds a bearer token to every request.
func NewWithURL(url string) Client {
	return Client{
		url:        url,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// WithToken returns a new client with a bearer token
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

func (c Client) do(r *http.Request) (status int, header http.Header, resBody []byte, err error) {
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res := rec.Result()
		return res.StatusCode, res.Header, rec.Body.Bytes(), nil
	}
	res, err := c.httpClient.Do(r)
	if err != nil {
		return http.StatusInternalServerError, nil, nil, err
	}
	defer res.Body.Close()
	resBody, _ = io.ReadAll(res.Body)
	return res.StatusCode, res.Header, resBody, nil
}

func unmarshal(resBody []byte, result interface{}) error {
	if resBody == nil || result == nil {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = resBody
		return nil
	}
	return json.Unmarshal(resBody, result)
}

// RawGet gets the resource from path. Expects http.StatusOK as response, otherwise it will
// flag an error. Returns the actual http status code.
//
// The path can be extended with query strings.
//
// result can be map[string]interface{} or a raw *[]byte.
// result can be nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	r, _ := http.NewRequest(http.MethodGet, c.url+path, nil)
	status, _, resBody, err := c.do(r)
	if err != nil {
		return status, err
	}
	if status == http.StatusNoContent {
		return status, nil
	}
	if status != http.StatusOK {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusOK, strings.TrimSpace(string(resBody)))
	}
	return status, unmarshal(resBody, result)
}

// RawGetWithHeader gets the resource from path and returns the response header
// along with the status code.
func (c Client) RawGetWithHeader(path string, result interface{}) (int, http.Header, error) {
	r, _ := http.NewRequest(http.MethodGet, c.url+path, nil)
	status, header, resBody, err := c.do(r)
	if err != nil {
		return status, header, err
	}
	if status == http.StatusNoContent {
		return status, header, nil
	}
	if status != http.StatusOK {
		return status, header, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusOK, strings.TrimSpace(string(resBody)))
	}
	return status, header, unmarshal(resBody, result)
}

// RawPost posts a resource to path. Expects http.StatusCreated or http.StatusOK as
// response, otherwise it will flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	var err error
	j, ok := body.([]byte)
	if !ok {
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("POST to %s: %w", path, err)
		}
	}

	r, _ := http.NewRequest(http.MethodPost, c.url+path, bytes.NewBuffer(j))
	status, _, resBody, err := c.do(r)
	if err != nil {
		return status, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return status, fmt.Errorf("handler returned wrong status code: got %v want %v. Error: %s",
			status, http.StatusCreated, strings.TrimSpace(string(resBody)))
	}
	return status, unmarshal(resBody, result)
}

// RawPut puts a resource to path. Expects http.StatusOK, http.StatusCreated or
// http.StatusNoContent as valid responses, otherwise it will flag an error.
// Returns the actual http status code.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPut(path string, body interface{}, result interface{}) (int, error) {
	var err error
	j, ok := body.([]byte)
	if !ok {
		j, err = json.Marshal(body)
		if err != nil {
			return http.StatusBadRequest, fmt.Errorf("PUT to %s: %w", path, err)
		}
	}

	r, _ := http.NewRequest(http.MethodPut, c.url+path, bytes.NewBuffer(j))
	status, _, resBody, err := c.do(r)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusNoContent {
		return status, fmt.Errorf("put got status=%d body=%s", status, strings.TrimSpace(string(resBody)))
	}
	return status, unmarshal(resBody, result)
}

// RawDelete deletes the resource at path. Expects http.StatusNoContent as response,
// otherwise it will flag an error.
//
// Returns the actual http status code.
func (c Client) RawDelete(path string) (int, error) {
	r, _ := http.NewRequest(http.MethodDelete, c.url+path, nil)
	status, _, resBody, err := c.do(r)
	if err != nil {
		return status, err
	}
	if status != http.StatusNoContent {
		return status, errors.New(strings.TrimSpace(string(resBody)))
	}
	return status, nil
}

// PostMultipart uploads data as a multipart form file under the given
// field name, with an explicit file name and content type.
//
// Expects http.StatusOK as response, otherwise it will flag an error.
// Returns the actual http status code.
func (c Client) PostMultipart(path, field, filename, contentType string, data []byte, result interface{}) (int, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	header.Set("Content-Type", contentType)
	fw, err := w.CreatePart(header)
	if err != nil {
		return http.StatusBadRequest, err
	}
	if _, err = fw.Write(data); err != nil {
		return http.StatusBadRequest, err
	}
	w.Close()

	r, _ := http.NewRequest(http.MethodPost, c.url+path, &b)
	r.Header.Set("Content-Type", w.FormDataContentType())

	status, _, resBody, err := c.do(r)
	if err != nil {
		return status, err
	}
	if status != http.StatusOK {
		return status, errors.New(strings.TrimSpace(string(resBody)))
	}
	return status, unmarshal(resBody, result)
}
