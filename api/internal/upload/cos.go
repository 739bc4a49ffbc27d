package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"

	"doc-scanner/api/internal/util"
)

// COSUploader кладёт снимки в бакет Tencent COS.
// URL объекта = BucketURL + "/" + имя объекта; бакет должен быть public-read.
type COSUploader struct {
	client    *cos.Client
	bucketURL string
	now       func() time.Time
}

func NewCOSUploader(bucketURL, secretID, secretKey string) (*COSUploader, error) {
	u, err := url.Parse(bucketURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("bad COS bucket url %q", bucketURL)
	}
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &cos.AuthorizationTransport{
			SecretID:  secretID,
			SecretKey: secretKey,
		},
	}
	return &COSUploader{
		client:    cos.NewClient(&cos.BaseURL{BucketURL: u}, httpClient),
		bucketURL: strings.TrimRight(bucketURL, "/"),
		now:       time.Now,
	}, nil
}

func (c *COSUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("upload: empty image")
	}
	mime := util.SniffImageMIME(data)
	objectName := ObjectName(c.now(), name, mime)

	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType: mime,
		},
	}
	if _, err := c.client.Object.Put(ctx, objectName, bytes.NewReader(data), opt); err != nil {
		return "", fmt.Errorf("cos put %s: %w", objectName, err)
	}
	return c.bucketURL + "/" + objectName, nil
}
