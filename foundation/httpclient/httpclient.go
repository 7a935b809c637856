// Package httpclient provides basic http functions
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// RemoteFileInfo contains the caching headers a remote resource was last served with
type RemoteFileInfo struct {
	ETag                  string
	LastModifiedTimestamp int64
	Path                  string
}

func getRemoteFileInfo(url string, resp *http.Response) RemoteFileInfo {
	result := RemoteFileInfo{
		Path: url,
	}
	result.ETag = resp.Header.Get("ETag")

	lastModifiedString := resp.Header.Get("Last-Modified")

	if len(lastModifiedString) > 0 {
		parsedTime, err := time.Parse(time.RFC1123, lastModifiedString)
		if err == nil {
			result.LastModifiedTimestamp = parsedTime.Unix()
		}
	}
	return result

}

// IsDifferent returns true if etag or lastModifiedTimestamp indicate the remote resource has changed
func (df *RemoteFileInfo) IsDifferent(etag string, lastModifiedTimestamp int64) bool {
	if len(df.ETag) > 0 {
		return df.ETag != etag
	}
	return df.LastModifiedTimestamp != lastModifiedTimestamp
}

// FetchResult contains the outcome of a conditional GET
type FetchResult struct {
	Info RemoteFileInfo
	// Body is nil when the remote resource was not modified
	Body      []byte
	Modified  bool
	FetchedAt time.Time
}

// FetchIfModified retrieves url using a GET request that carries If-None-Match and If-Modified-Since
// derived from previous. A 304 response, or a 200 response whose caching headers match previous, is reported as
// not modified.
func FetchIfModified(ctx context.Context, client *http.Client, url string, previous *RemoteFileInfo) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		if len(previous.ETag) > 0 {
			req.Header.Set("If-None-Match", previous.ETag)
		}
		if previous.LastModifiedTimestamp > 0 {
			req.Header.Set("If-Modified-Since",
				time.Unix(previous.LastModifiedTimestamp, 0).UTC().Format(http.TimeFormat))
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	result := FetchResult{
		Info:      getRemoteFileInfo(url, resp),
		FetchedAt: time.Now(),
	}
	if resp.StatusCode == http.StatusNotModified {
		if previous != nil {
			result.Info = *previous
		}
		return &result, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected http status %d from %s", resp.StatusCode, url)
	}
	if previous != nil && (len(result.Info.ETag) > 0 || result.Info.LastModifiedTimestamp > 0) &&
		!previous.IsDifferent(result.Info.ETag, result.Info.LastModifiedTimestamp) {
		return &result, nil
	}

	buf := new(bytes.Buffer)
	if _, err = buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	result.Body = buf.Bytes()
	result.Modified = true
	return &result, nil
}
