package s3

import (
	"io"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string]string
}

func (f *fakeS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(strings.NewReader(body))}, nil
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url    string
		bucket string
		key    string
		err    bool
	}{
		{url: "s3://songs/meta/index.csv", bucket: "songs", key: "meta/index.csv"},
		{url: "s3://songs/", err: true},
		{url: "s3:///key", err: true},
		{url: "https://songs/key", err: true},
	}
	for _, tst := range tests {
		bucket, key, err := ParseURL(tst.url)
		if tst.err {
			if err == nil {
				t.Fatalf("%s: expected error", tst.url)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tst.url, err)
		}
		if bucket != tst.bucket || key != tst.key {
			t.Fatalf("%s: got %s %s", tst.url, bucket, key)
		}
	}
}

func TestOpen(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"songs/a.csv": "id,title\n1,x\n"}}
	o, err := NewOpener("s3://songs/a.csv", OptOpenerClient(client))
	if err != nil {
		t.Fatalf("NewOpener: %v", err)
	}
	if o.String() != "s3://songs/a.csv" {
		t.Fatalf("unexpected name %s", o)
	}
	rc, err := o.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if string(data) != "id,title\n1,x\n" {
		t.Fatalf("unexpected body %q", data)
	}

	missing, err := NewOpener("s3://songs/b.csv", OptOpenerClient(client))
	if err != nil {
		t.Fatalf("NewOpener: %v", err)
	}
	if _, err := missing.Open(); err == nil || !strings.Contains(err.Error(), "s3://songs/b.csv") {
		t.Fatalf("expected error naming the object, got %v", err)
	}
}
