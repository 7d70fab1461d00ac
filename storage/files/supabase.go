package filestore

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	storage "github.com/supabase-community/storage-go"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/task"
)

// SupabaseStore keeps attachments in a Supabase Storage bucket, under the submissions/ prefix.
type SupabaseStore struct {
	client *storage.Client
	bucket string
}

var _ task.FileStore = (*SupabaseStore)(nil)

func NewSupabaseStore(conf *core.Config) (*SupabaseStore, error) {
	if conf.Supabase.URL == "" || conf.Supabase.Key == "" {
		return nil, errors.New("supabase url and key are required")
	}
	return &SupabaseStore{
		client: storage.NewClient(strings.TrimRight(conf.Supabase.URL, "/")+"/storage/v1", conf.Supabase.Key, nil),
		bucket: conf.Supabase.Bucket,
	}, nil
}

func (s *SupabaseStore) Save(_ context.Context, name string, r io.Reader, contentType string) (string, error) {
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return "", errInvalidRef
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", errors.Wrap(err, "reading attachment")
	}

	ref := "submissions/" + name
	opts := storage.FileOptions{ContentType: &contentType}
	if _, err := s.client.UploadFile(s.bucket, ref, &buf, opts); err != nil {
		return "", errors.Wrap(err, "uploading to supabase")
	}
	return ref, nil
}

func (s *SupabaseStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if !strings.HasPrefix(ref, "submissions/") || strings.Contains(ref, "..") {
		return nil, errInvalidRef
	}
	data, err := s.client.DownloadFile(s.bucket, ref)
	if err != nil {
		return nil, errors.Wrap(err, "downloading from supabase")
	}
	return ioutil.NopCloser(bytes.NewReader(data)), nil
}
