package httpclient

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	ContentTypeTextXml        string = "text/xml"
	ContentTypeApplicationXml string = "application/xml"
	ContentTypeJson           string = "application/json"
	ContentTypeForm           string = "application/x-www-form-urlencoded"
	ContentTypeAny            string = ""
	ContentType               string = "Content-Type"
)

var DefaultMaxResponseSize int64 = 1024 * 1024 * 10 // 10MB

type HttpError struct {
	StatusCode int
	Body       []byte
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

type HttpClient struct {
	Headers         http.Header
	MaxResponseSize int64
}

func NewClient() *HttpClient {
	return &HttpClient{Headers: http.Header{}, MaxResponseSize: DefaultMaxResponseSize}
}

func (c *HttpClient) WithMaxSize(maxResponseSize int64) *HttpClient {
	c.MaxResponseSize = maxResponseSize
	return c
}

func (c *HttpClient) WithHeaders(headers ...string) *HttpClient {
	if c.Headers == nil {
		c.Headers = http.Header{}
	}
	for i := 0; i+1 < len(headers); i += 2 {
		if headers[i] == "" {
			continue
		}
		c.Headers.Add(headers[i], headers[i+1])
	}
	return c
}

func (c *HttpClient) httpInvoke(client *http.Client, method string, contentTypes []string, url string, reader io.Reader) ([]byte, error) {
	buf, status, err := c.httpInvokeStatus(client, method, contentTypes, url, reader)
	if err != nil {
		return nil, err
	}
	if status != 200 && status != 201 && status != 204 {
		return nil, &HttpError{status, buf}
	}
	return buf, nil
}

// like httpInvoke but reports the status code instead of folding non-2xx into HttpError,
// screen-scraped endpoints signal outcomes in the body regardless of status
func (c *HttpClient) httpInvokeStatus(client *http.Client, method string, contentTypes []string, url string, reader io.Reader) ([]byte, int, error) {
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	if c.Headers != nil {
		req.Header = c.Headers.Clone()
	}
	if reader != nil && len(contentTypes) > 0 && contentTypes[0] != ContentTypeAny {
		req.Header.Set(ContentType, contentTypes[0])
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		dErr := resp.Body.Close()
		if dErr != nil {
			fmt.Printf("failed to close body: %v", dErr)
		}
	}()
	buf, err := c.readResponse(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if err = checkContentType(resp, contentTypes); err != nil {
		return nil, resp.StatusCode, err
	}
	return buf, resp.StatusCode, nil
}

func checkContentType(resp *http.Response, contentTypes []string) error {
	contentType := strings.ToLower(resp.Header.Get(ContentType))
	for _, ctype := range contentTypes {
		if ctype == ContentTypeAny || strings.HasPrefix(contentType, ctype) {
			return nil
		}
	}
	return fmt.Errorf("header Content-Type must be one of: %s", strings.Join(contentTypes, ", "))
}

func (c *HttpClient) readResponse(body io.Reader) ([]byte, error) {
	if c.MaxResponseSize > 0 {
		body = NewLimitErrorReader(body, c.MaxResponseSize)
	}
	buf, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

type LimitErrorReader struct {
	reader *io.LimitedReader
}

func NewLimitErrorReader(r io.Reader, limit int64) *LimitErrorReader {
	return &LimitErrorReader{
		reader: &io.LimitedReader{R: r, N: limit},
	}
}

func (ler *LimitErrorReader) Read(p []byte) (int, error) {
	if ler.reader.N <= 0 {
		return 0, errors.New("response body too large")
	}
	return ler.reader.Read(p)
}

func (c *HttpClient) GetXml(client *http.Client, url string, res any) error {
	return c.request(client, http.MethodGet, []string{ContentTypeApplicationXml, ContentTypeTextXml}, url, res, xml.Unmarshal)
}

func (c *HttpClient) PostXml(client *http.Client, url string, req any, res any) error {
	return c.RequestResponse(client, http.MethodPost, []string{ContentTypeApplicationXml, ContentTypeTextXml}, url, req, res, xml.Marshal, xml.Unmarshal)
}

func (c *HttpClient) GetJson(client *http.Client, url string, res any) error {
	return c.request(client, http.MethodGet, []string{ContentTypeJson}, url, res, json.Unmarshal)
}

func (c *HttpClient) PostJson(client *http.Client, url string, req any, res any) error {
	return c.RequestResponse(client, http.MethodPost, []string{ContentTypeJson, ContentTypeAny}, url, req, res, json.Marshal, json.Unmarshal)
}

func (c *HttpClient) PutJson(client *http.Client, url string, req any, res any) error {
	return c.RequestResponse(client, http.MethodPut, []string{ContentTypeJson, ContentTypeAny}, url, req, res, json.Marshal, json.Unmarshal)
}

// DeleteJson sends DELETE and tolerates an empty body
func (c *HttpClient) DeleteJson(client *http.Client, url string) error {
	_, err := c.httpInvoke(client, http.MethodDelete, []string{ContentTypeJson, ContentTypeAny}, url, nil)
	return err
}

// PostFormXml posts url-encoded form values and decodes an XML response
func (c *HttpClient) PostFormXml(client *http.Client, url string, form url.Values, res any) error {
	buf, err := c.httpInvoke(client, http.MethodPost, []string{ContentTypeForm, ContentTypeApplicationXml, ContentTypeTextXml}, url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	return xml.Unmarshal(buf, res)
}

// PostFormJson posts url-encoded form values and decodes a JSON response
func (c *HttpClient) PostFormJson(client *http.Client, url string, form url.Values, res any) error {
	buf, err := c.httpInvoke(client, http.MethodPost, []string{ContentTypeForm, ContentTypeJson}, url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, res)
}

// GetBody fetches a page body regardless of content type, for OPAC scraping
func (c *HttpClient) GetBody(client *http.Client, url string) ([]byte, error) {
	buf, _, err := c.httpInvokeStatus(client, http.MethodGet, []string{ContentTypeAny}, url, nil)
	return buf, err
}

// PostFormBody posts form values and returns the page body regardless of content type
func (c *HttpClient) PostFormBody(client *http.Client, url string, form url.Values) ([]byte, error) {
	buf, _, err := c.httpInvokeStatus(client, http.MethodPost, []string{ContentTypeForm}, url, strings.NewReader(form.Encode()))
	return buf, err
}

func (c *HttpClient) request(client *http.Client, method string, contentTypes []string, url string, res any, unmarshal func([]byte, any) error) error {
	resbuf, err := c.httpInvoke(client, method, contentTypes, url, nil)
	if err != nil {
		return err
	}
	return unmarshal(resbuf, res)
}

func (c *HttpClient) RequestResponse(client *http.Client, method string, contentTypes []string, url string, req any, res any, marshal func(any) ([]byte, error), unmarshal func([]byte, any) error) error {
	buf, err := marshal(req)
	if err != nil {
		return fmt.Errorf("marshal failed: %v", err)
	}
	if buf == nil {
		return fmt.Errorf("marshal returned nil")
	}
	resbuf, err := c.httpInvoke(client, method, contentTypes, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	if res == nil || len(resbuf) == 0 {
		return nil
	}
	return unmarshal(resbuf, res)
}
