package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"
)

func TestFetchIfModified(t *testing.T) {
	is := is.New(t)
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("feed-bytes"))
	}))
	defer srv.Close()

	first, err := FetchIfModified(context.Background(), srv.Client(), srv.URL, nil)
	is.NoErr(err)
	is.True(first.Modified)
	is.Equal(string(first.Body), "feed-bytes")
	is.Equal(first.Info.ETag, `"v1"`)

	second, err := FetchIfModified(context.Background(), srv.Client(), srv.URL, &first.Info)
	is.NoErr(err)
	is.True(!second.Modified)
	is.Equal(second.Body, nil)
	is.Equal(second.Info.ETag, `"v1"`)
	is.Equal(requests, 2)
}

func TestFetchIfModified_ErrorStatus(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := FetchIfModified(context.Background(), srv.Client(), srv.URL, nil)
	is.True(err != nil)
}

func TestRemoteFileInfo_IsDifferent(t *testing.T) {
	tests := []struct {
		name                  string
		info                  RemoteFileInfo
		etag                  string
		lastModifiedTimestamp int64
		want                  bool
	}{
		{
			name: "same etag",
			info: RemoteFileInfo{ETag: "a", LastModifiedTimestamp: 1},
			etag: "a",
			want: false,
		},
		{
			name:                  "etag takes precedence over timestamp",
			info:                  RemoteFileInfo{ETag: "a", LastModifiedTimestamp: 1},
			etag:                  "b",
			lastModifiedTimestamp: 1,
			want:                  true,
		},
		{
			name:                  "no etag compares timestamps",
			info:                  RemoteFileInfo{LastModifiedTimestamp: 10},
			lastModifiedTimestamp: 11,
			want:                  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.IsDifferent(tt.etag, tt.lastModifiedTimestamp); got != tt.want {
				t.Errorf("IsDifferent() = %v, want %v", got, tt.want)
			}
		})
	}
}
