// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package s3

import (
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

// Scheme is the URL scheme handled by this package.
const Scheme = "s3://"

// OpenerOption is a functional option type for NewOpener.
type OpenerOption func(o *Opener)

// OptOpenerRegion sets the AWS region used to build the client.
func OptOpenerRegion(region string) OpenerOption {
	return func(o *Opener) {
		o.region = region
	}
}

// OptOpenerClient sets the S3 client. No session is created when a client
// is given.
func OptOpenerClient(client s3iface.S3API) OpenerOption {
	return func(o *Opener) {
		o.s3 = client
	}
}

// Opener opens a single S3 object for reading. Each call to Open fetches
// the object again.
type Opener struct {
	bucket string
	key    string
	region string

	s3 s3iface.S3API
}

// IsURL reports whether url is an s3:// URL.
func IsURL(url string) bool {
	return strings.HasPrefix(url, Scheme)
}

// ParseURL splits an s3://bucket/key URL.
func ParseURL(url string) (bucket, key string, err error) {
	if !IsURL(url) {
		return "", "", errors.Errorf("not an s3 url: %s", url)
	}
	parts := strings.SplitN(strings.TrimPrefix(url, Scheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Errorf("s3 url needs a bucket and a key: %s", url)
	}
	return parts[0], parts[1], nil
}

// NewOpener returns an Opener for an s3://bucket/key URL.
func NewOpener(url string, opts ...OpenerOption) (*Opener, error) {
	bucket, key, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	o := &Opener{
		bucket: bucket,
		key:    key,
		region: "us-east-1",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.s3 == nil {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(o.region)},
		)
		if err != nil {
			return nil, errors.Wrap(err, "getting new session")
		}
		o.s3 = s3.New(sess)
	}
	return o, nil
}

// Open implements the csv Opener interface.
func (o *Opener) Open() (io.ReadCloser, error) {
	result, err := o.s3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", o)
	}
	return result.Body, nil
}

func (o *Opener) String() string {
	return Scheme + o.bucket + "/" + o.key
}
