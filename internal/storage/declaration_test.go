package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_OrderAndPlaceholder(t *testing.T) {
	data := []byte(`
zeta_data:
  type: local
  root: "{{ROOT_DIR}}/zeta"
  description: Zeta
aws_data:
  type: s3
  bucket_patterns: [".*"]
  region: eu-west-3
  description: AWS Data Storage
legacy:
  type: server
  root: legacy
minio:
  type: s3
  bucket_patterns: ["lab-"]
  endpoint: http://localhost:9000
`)
	decls, err := Parse(data, "/srv/liteflow")
	require.NoError(t, err)
	require.Len(t, decls, 4)

	assert.Equal(t, "zeta_data", decls[0].Name)
	assert.Equal(t, KindLocal, decls[0].Type)
	assert.Equal(t, "/srv/liteflow/zeta", decls[0].Root)

	assert.Equal(t, "aws_data", decls[1].Name)
	assert.Equal(t, KindS3, decls[1].Type)
	assert.Equal(t, []string{".*"}, decls[1].BucketPatterns)
	assert.Equal(t, "eu-west-3", decls[1].Region)

	assert.Equal(t, KindLocal, decls[2].Type)
	assert.Equal(t, "/srv/liteflow/legacy", decls[2].Root)

	assert.Equal(t, "http://localhost:9000", decls[3].Endpoint)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing type":     "a:\n  root: /x\n",
		"unknown type":     "a:\n  type: ftp\n",
		"local no root":    "a:\n  type: local\n",
		"s3 no patterns":   "a:\n  type: s3\n  region: x\n",
		"empty patterns":   "a:\n  type: s3\n  bucket_patterns: []\n",
		"unknown field":    "a:\n  type: local\n  root: /x\n  colour: red\n",
		"not a mapping":    "- a\n- b\n",
		"backend a string": "a: local\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), "/root")
			assert.ErrorIs(t, err, ErrInvalidDeclarations)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(nil, "/root")
	assert.ErrorIs(t, err, ErrInvalidDeclarations)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage_backends.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data:\n  type: local\n  root: /tmp/data\n"), 0o644))
	decls, err := Load(path, "/root")
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "/tmp/data", decls[0].Root)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), "/root")
	assert.Error(t, err)
}

func TestDefaultDeclarations(t *testing.T) {
	decls := DefaultDeclarations("/srv")
	require.Len(t, decls, 2)
	assert.Equal(t, "local_data", decls[0].Name)
	assert.Equal(t, "/srv/data", decls[0].Root)
	assert.Equal(t, "local_configs", decls[1].Name)
	assert.Equal(t, "/srv/configs", decls[1].Root)
}

func TestManager(t *testing.T) {
	root := t.TempDir()
	decls := append(DefaultDeclarations(root), Declaration{
		Name: "aws_data", Type: KindS3, BucketPatterns: []string{".*"}, Region: "eu-west-3", Description: "AWS",
	})
	m, err := NewManager(decls, nil)
	require.NoError(t, err)

	assert.Equal(t, []Summary{
		{Name: "local_data", Type: KindLocal, Description: "Local Data Files"},
		{Name: "local_configs", Type: KindLocal, Description: "Configuration Files"},
		{Name: "aws_data", Type: KindS3, Description: "AWS"},
	}, m.Summaries())

	b, err := m.Get("local_data")
	require.NoError(t, err)
	assert.Equal(t, KindLocal, b.Kind())
	_, err = os.Stat(filepath.Join(root, "data"))
	assert.NoError(t, err)

	_, err = m.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestManager_DuplicateName(t *testing.T) {
	root := t.TempDir()
	d := Declaration{Name: "x", Type: KindLocal, Root: root}
	_, err := NewManager([]Declaration{d, d}, nil)
	assert.Error(t, err)
}
