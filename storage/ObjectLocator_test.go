package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectURL(t *testing.T) {
	tests := []struct {
		url       string
		container string
		object    string
	}{
		{"https://acct.example/containerA/dir/file.bin", "containerA", "dir/file.bin"},
		{"https://freetoolsfiles.blob.core.windows.net/powerbi/MemberHccGapAnalytics/Report1/MA/v1.pbix",
			"powerbi", "MemberHccGapAnalytics/Report1/MA/v1.pbix"},
		{"https://acct.blob.core.windows.net/c/b?existing=query", "c", "b"},
		{"https://acct.blob.core.windows.net/c/with%20space.txt", "c", "with space.txt"},
		{"http://127.0.0.1:10000/devstoreaccount1/c/b/", "devstoreaccount1", "c/b"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			locator, err := ParseObjectURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.container, locator.ContainerName)
			assert.Equal(t, tt.object, locator.ObjectName)
		})
	}
}

func TestParseObjectURLInvalid(t *testing.T) {
	for _, url := range []string{
		"",
		"   ",
		"https://acct.blob.core.windows.net",
		"https://acct.blob.core.windows.net/",
		"https://acct.blob.core.windows.net/container",
		"https://acct.blob.core.windows.net/container/",
		"://bad-url",
	} {
		_, err := ParseObjectURL(url)
		assert.ErrorIs(t, err, ErrInvalidUrlFormat, url)
	}
}
