package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ValidateRef(t *testing.T) {
	v := NewValidator(Options{Gateways: []Gateway{
		{BaseURL: "http://waha:3000"},
		{BaseURL: "https://evolution.example.com"},
	}})

	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"public https", "https://mmg.whatsapp.net/v/t62/abc.enc", false},
		{"public http", "http://cdn.example.org/img.jpg", false},
		{"gateway host", "http://waha:3000/api/files/default/A1.jpeg", false},
		{"gateway over localhost", "http://localhost:3000/api/files/default/A1.jpeg", false},
		{"gateway over loopback ip", "http://127.0.0.1:3000/api/files/A1.ogg", false},
		{"gateway default port", "https://evolution.example.com/media/x.pdf", false},
		{"inline base64", "/9j/4AAQSkZJRgABAQAAAQABAAD", false},
		{"data uri", "data:image/png;base64,iVBORw0KGgo=", false},
		{"empty", "  ", true},
		{"ftp", "ftp://files.example.com/a.jpg", true},
		{"localhost other port", "http://localhost:8080/admin", true},
		{"private ip", "http://10.0.0.5/file", true},
		{"link local", "http://169.254.169.254/latest/meta-data", true},
		{"single label", "http://postgres:5432/", true},
		{"internal suffix", "http://metadata.google.internal/computeMetadata", true},
		{"no host", "https:///path", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRef(context.Background(), tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_ReachabilityCheck(t *testing.T) {
	var gotKey atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		gotKey.Store(r.Header.Get("X-Api-Key"))
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusGone)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/error":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	v := NewValidator(Options{
		Gateways:       []Gateway{{BaseURL: server.URL, KeyHeader: "X-Api-Key", APIKey: "secret"}},
		CheckReachable: true,
	})
	ctx := context.Background()

	require.NoError(t, v.ValidateRef(ctx, server.URL+"/ok"))
	assert.Equal(t, "secret", gotKey.Load())

	assert.Error(t, v.ValidateRef(ctx, server.URL+"/gone"))
	assert.Error(t, v.ValidateRef(ctx, server.URL+"/missing"))
	assert.NoError(t, v.ValidateRef(ctx, server.URL+"/error"), "only definite absence rejects a link")
}

func TestValidator_UnreachableHostIsKept(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	base := server.URL
	server.Close()

	v := NewValidator(Options{Gateways: []Gateway{{BaseURL: base}}, CheckReachable: true})
	assert.NoError(t, v.ValidateRef(context.Background(), base+"/file.jpg"))
}

func TestValidator_BadGatewayURLIsIgnored(t *testing.T) {
	v := NewValidator(Options{Gateways: []Gateway{{BaseURL: "::not a url"}, {BaseURL: ""}}})
	assert.Empty(t, v.gateways)
	assert.Error(t, v.ValidateRef(context.Background(), "http://localhost:3000/x"))
}
