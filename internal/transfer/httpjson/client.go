package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mediavault/mediavault-core/internal/oid"
	"github.com/mediavault/mediavault-core/internal/transfer"
)

// Client implements transfer.RemotePeer by talking to a Server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client addressing the Server rooted at baseURL (no
// trailing slash expected, e.g. "https://media-origin.example.com").
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

var _ transfer.RemotePeer = (*Client)(nil)

func (c *Client) ResolveRef(ctx context.Context, name string) (oid.Oid, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/refs/"+name, nil)
	if err != nil {
		return oid.Oid{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return oid.Oid{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return oid.Oid{}, transfer.ErrRefNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return oid.Oid{}, errorFromResponse(resp)
	}

	var out resolveRefResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return oid.Oid{}, err
	}
	return oid.Parse(out.Oid)
}

func (c *Client) Have(ctx context.Context, tip oid.Oid) (map[oid.Oid]bool, error) {
	body, err := json.Marshal(haveRequest{Tip: tip.String()})
	if err != nil {
		return nil, err
	}
	resp, err := c.postJSON(ctx, "/objects/have", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	var out haveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	have := make(map[oid.Oid]bool, len(out.Oids))
	for _, s := range out.Oids {
		id, err := oid.Parse(s)
		if err != nil {
			return nil, err
		}
		have[id] = true
	}
	return have, nil
}

func (c *Client) Want(ctx context.Context, candidates []oid.Oid) ([]oid.Oid, error) {
	body, err := json.Marshal(wantRequest{Candidates: encodeOidSlice(candidates)})
	if err != nil {
		return nil, err
	}
	resp, err := c.postJSON(ctx, "/objects/want", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	var out wantResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return decodeOidSlice(out.Oids)
}

func (c *Client) FetchObject(ctx context.Context, id oid.Oid) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/objects/"+id.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, errorFromResponse(resp)
	}
	return resp.Body, nil
}

func (c *Client) PushObject(ctx context.Context, id oid.Oid, size int64, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/objects/"+id.String(), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return errorFromResponse(resp)
	}
	return nil
}

func (c *Client) CasRef(ctx context.Context, name string, expectedOld, newOid oid.Oid) error {
	body, err := json.Marshal(casRefRequest{ExpectedOld: expectedOld.String(), New: newOid.String()})
	if err != nil {
		return err
	}
	resp, err := c.postJSON(ctx, "/refs/"+name, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return transfer.ErrNonFastForward
	}
	if resp.StatusCode != http.StatusNoContent {
		return errorFromResponse(resp)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func errorFromResponse(resp *http.Response) error {
	var out errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && out.Error != "" {
		return fmt.Errorf("httpjson: %s: %s", resp.Status, out.Error)
	}
	return fmt.Errorf("httpjson: unexpected status %s", resp.Status)
}
