package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "github https", url: "https://github.com/owner/repo"},
		{name: "github dot git", url: "https://github.com/owner/repo.git"},
		{name: "gitlab", url: "https://gitlab.com/owner/repo"},
		{name: "bitbucket", url: "https://bitbucket.org/owner/repo"},
		{name: "www prefix", url: "https://www.github.com/owner/repo"},

		{name: "empty", url: "", wantErr: true},
		{name: "http scheme", url: "http://github.com/owner/repo", wantErr: true},
		{name: "file scheme", url: "file:///etc/passwd", wantErr: true},
		{name: "ssh scheme", url: "ssh://git@github.com/owner/repo", wantErr: true},
		{name: "git scheme", url: "git://github.com/owner/repo", wantErr: true},
		{name: "ftp scheme", url: "ftp://github.com/owner/repo", wantErr: true},
		{name: "localhost", url: "https://localhost/owner/repo", wantErr: true},
		{name: "loopback literal", url: "https://127.0.0.1/owner/repo", wantErr: true},
		{name: "private 10", url: "https://10.0.0.5/owner/repo", wantErr: true},
		{name: "private 172", url: "https://172.16.1.1/owner/repo", wantErr: true},
		{name: "private 192", url: "https://192.168.1.1/owner/repo", wantErr: true},
		{name: "link local", url: "https://169.254.169.254/latest/meta-data", wantErr: true},
		{name: "public IP literal", url: "https://8.8.8.8/owner/repo", wantErr: true},
		{name: "unknown host", url: "https://evil.example.com/owner/repo", wantErr: true},
		{name: "too long", url: "https://github.com/o/" + strings.Repeat("a", 500), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeriveName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/owner/my-repo", "my_repo"},
		{"https://github.com/owner/my-repo.git", "my_repo"},
		{"https://github.com/owner/My.Repo/", "my_repo"},
		{"https://gitlab.com/group/sub/repo_1.git", "repo_1"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveName(tt.url))
		})
	}
}
