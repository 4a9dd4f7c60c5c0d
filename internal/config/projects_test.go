package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/hostbackup/internal/model"
)

const validProjects = `
defaults:
  local_root: /var/backups/hosting
  retention_years: 2
projects:
  - id: shop
    type: mysql
    source: shop_prod
    encrypted: true
    key_ref: env:SHOP_BACKUP_KEY
    offsite:
      kind: ssh
      host: backup.example.com
      user: backup
      key_file: /etc/hostbackup/id_ed25519
      known_hosts_file: /etc/hostbackup/known_hosts
      path: /srv/offsite
  - id: blog
    type: web
    source: /var/www/storage/blog
    retention_years: 5
    offsite:
      kind: s3
      endpoint: https://s3.example.com
      bucket: offsite-backups
`

func TestParseProjects_Valid(t *testing.T) {
	projects, err := ParseProjects([]byte(validProjects))
	require.NoError(t, err)

	assert.Equal(t, []string{"blog", "shop"}, projects.IDs())

	shop, ok := projects.Get("shop")
	require.True(t, ok)
	assert.Equal(t, model.ProjectTypeMySQL, shop.Type)
	assert.Equal(t, "/var/backups/hosting", shop.LocalRoot)
	assert.Equal(t, 2, shop.RetentionYears)
	assert.True(t, shop.Encrypted)
	assert.Equal(t, model.StorageKindSSH, shop.Offsite.Kind)

	blog, ok := projects.Get("blog")
	require.True(t, ok)
	assert.Equal(t, 5, blog.RetentionYears)
	assert.Equal(t, "offsite-backups", blog.Offsite.Bucket)

	_, ok = projects.Get("missing")
	assert.False(t, ok)
}

func TestParseProjects_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "encrypted without key",
			yaml: `projects:
  - {id: a, type: web, source: /x, local_root: /b, retention_years: 1, encrypted: true, offsite: {kind: s3, bucket: b}}`,
			want: "KeyRef",
		},
		{
			name: "ssh without known hosts",
			yaml: `projects:
  - {id: a, type: web, source: /x, local_root: /b, retention_years: 1, offsite: {kind: ssh, host: h, user: u}}`,
			want: "KnownHostsFile",
		},
		{
			name: "bad id",
			yaml: `projects:
  - {id: "Bad ID", type: web, source: /x, local_root: /b, retention_years: 1, offsite: {kind: s3, bucket: b}}`,
			want: "slug",
		},
		{
			name: "zero retention",
			yaml: `projects:
  - {id: a, type: web, source: /x, local_root: /b, offsite: {kind: s3, bucket: b}}`,
			want: "RetentionYears",
		},
		{
			name: "unknown offsite kind",
			yaml: `projects:
  - {id: a, type: web, source: /x, local_root: /b, retention_years: 1, offsite: {kind: ftp}}`,
			want: "Kind",
		},
		{
			name: "duplicate",
			yaml: `projects:
  - {id: a, type: web, source: /x, local_root: /b, retention_years: 1, offsite: {kind: s3, bucket: b}}
  - {id: a, type: web, source: /y, local_root: /b, retention_years: 1, offsite: {kind: s3, bucket: b}}`,
			want: "duplicate project id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProjects([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseProjects_UnknownTypeIsAccepted(t *testing.T) {
	// Unknown project types are rejected by the orchestrator at run time,
	// not by the config loader.
	projects, err := ParseProjects([]byte(`projects:
  - {id: a, type: mongodb, source: x, local_root: /b, retention_years: 1, offsite: {kind: s3, bucket: b}}`))
	require.NoError(t, err)
	p, _ := projects.Get("a")
	assert.Equal(t, "mongodb", p.Type)
}

func TestLoadProjects_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validProjects), 0o600))

	projects, err := LoadProjects(path)
	require.NoError(t, err)
	assert.Len(t, projects.All(), 2)
}

func TestLoadProjects_MissingFile(t *testing.T) {
	_, err := LoadProjects(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read projects file")
}
