package cmd

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("making dir for %s: %v", name, err)
		}
		if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
}

func TestRootCommand(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"datasets/songs/dataset.yml": "transformations:\n  - [constant, dataset_id, songs]\n  - [rename, OTL, title]\nsources:\n  - type: file\n    file_pattern: \"*.krn\"\n",
		"datasets/songs/a.krn":       "!!!OTL: A\n",
		"schema.csv":                 "field,order\nid,0\ndataset_id,1\ntitle,2\n",
	})

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	rc := NewRootCommand(os.Stdin, stdout, stderr)
	rc.SetArgs([]string{"make",
		"--datasets-dir", filepath.Join(dir, "datasets"),
		"--schema", filepath.Join(dir, "schema.csv"),
		"songs"})
	if err := rc.Execute(); err != nil {
		t.Fatalf("make: %v, stderr: %s", err, stderr.String())
	}
	index, err := ioutil.ReadFile(filepath.Join(dir, "datasets", "songs", "index.csv"))
	if err != nil {
		t.Fatalf("reading index: %v", err)
	}
	if got := string(index); got != "id,dataset_id,title\na,songs,A\n" {
		t.Fatalf("unexpected index %q", got)
	}

	stdout.Reset()
	rc = NewRootCommand(os.Stdin, stdout, stderr)
	rc.SetArgs([]string{"ops"})
	if err := rc.Execute(); err != nil {
		t.Fatalf("ops: %v", err)
	}
	if !strings.Contains(stdout.String(), "format") {
		t.Fatalf("expected operations in %q", stdout.String())
	}
}

func TestRootCommandEnv(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("CATAFOLK_DATASETS_DIR", dir)
	defer os.Unsetenv("CATAFOLK_DATASETS_DIR")

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	rc := NewRootCommand(os.Stdin, stdout, stderr)
	rc.SetArgs([]string{"checksum", "missing"})
	err := rc.Execute()
	if err == nil {
		t.Fatal("expected error for a missing dataset")
	}
	if ChecksumMain.DatasetsDir != dir {
		t.Fatalf("datasets dir from env: got %s, want %s", ChecksumMain.DatasetsDir, dir)
	}
}
