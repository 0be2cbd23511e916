// Package blob provides an S3-compatible implementation of the photo archive client.
package blob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/errors"
)

// S3Config holds S3 connection configuration.
type S3Config struct {
	Endpoint       string
	BucketName     string
	AccessKey      string
	SecretKey      string
	Region         string
	ForcePathStyle bool // path-style URLs (minio, localstack)
}

// S3Client implements Store for S3-compatible storage.
type S3Client struct {
	config     *S3Config
	httpClient *http.Client
}

// listBucketResult is the S3 ListObjectsV2 response.
type listBucketResult struct {
	XMLName  xml.Name `xml:"ListBucketResult"`
	Contents []struct {
		Key          string `xml:"Key"`
		LastModified string `xml:"LastModified"`
		Size         int64  `xml:"Size"`
	} `xml:"Contents"`
}

// NewS3Client creates an S3Client.
func NewS3Client(config *S3Config) *S3Client {
	return &S3Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Upload implements Store.Upload.
func (c *S3Client) Upload(ctx context.Context, path string, data []byte) error {
	req, err := c.newRequest(ctx, http.MethodPut, path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(data))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrBlobUploadFailed, "upload request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return apperrors.New(apperrors.ErrBlobUploadFailed,
			fmt.Sprintf("upload failed with status %d: %s", resp.StatusCode, string(body)))
	}
	return nil
}

// Download implements Store.Download.
func (c *S3Client) Download(ctx context.Context, path string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrBlobDownloadFailed, "download request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.New(apperrors.ErrNotFound, "blob not found: "+path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.New(apperrors.ErrBlobDownloadFailed,
			fmt.Sprintf("download failed with status %d: %s", resp.StatusCode, string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrBlobDownloadFailed, "failed to read response body", err)
	}
	return data, nil
}

// Delete implements Store.Delete.
func (c *S3Client) Delete(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrBlobUploadFailed, "delete request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return apperrors.New(apperrors.ErrBlobUploadFailed,
			fmt.Sprintf("delete failed with status %d: %s", resp.StatusCode, string(body)))
	}
	return nil
}

// List implements Store.List.
func (c *S3Client) List(ctx context.Context, prefix string) ([]string, error) {
	listPath := "?list-type=2&prefix=" + url.QueryEscape(prefix)
	req, err := c.newRequest(ctx, http.MethodGet, listPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrBlobDownloadFailed, "list request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperrors.New(apperrors.ErrBlobDownloadFailed,
			fmt.Sprintf("list failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var result listBucketResult
	if err := xml.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrBlobDownloadFailed, "failed to parse list response", err)
	}

	var paths []string
	for _, content := range result.Contents {
		paths = append(paths, content.Key)
	}
	return paths, nil
}

// TestConnection verifies connectivity by listing the bucket.
func (c *S3Client) TestConnection(ctx context.Context) error {
	_, err := c.List(ctx, "")
	return err
}

// newRequest creates a signed S3 request.
func (c *S3Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	var urlStr string
	if c.config.ForcePathStyle {
		urlStr = fmt.Sprintf("%s/%s/%s", c.config.Endpoint, c.config.BucketName, path)
	} else {
		urlStr = fmt.Sprintf("%s.%s/%s", c.config.BucketName, c.config.Endpoint, path)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to build blob request", err)
	}

	if !c.config.ForcePathStyle {
		req.Host = fmt.Sprintf("%s.%s", c.config.BucketName, c.config.Endpoint)
	}

	amzDate := time.Now().UTC().Format("20060102T150405Z")
	req.Header.Set("Host", req.Host)
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", "UNSIGNED-PAYLOAD")
	req.Header.Set("Authorization", c.authorization(method, path, amzDate))

	return req, nil
}

// authorization builds a simplified AWS Signature V4 authorization header.
func (c *S3Client) authorization(method, path, amzDate string) string {
	dateStamp := amzDate[:8]
	scope := fmt.Sprintf("%s/%s/s3/aws4_request", dateStamp, c.config.Region)

	canonicalURI := "/" + c.config.BucketName + "/" + path
	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-date:%s\n",
		c.config.BucketName+"."+c.config.Endpoint, amzDate)
	signedHeaders := "host;x-amz-date"
	payloadHash := "UNSIGNED-PAYLOAD"

	canonicalRequest := fmt.Sprintf("%s\n%s\n\n%s\n%s",
		method, canonicalURI, canonicalHeaders, signedHeaders+" "+payloadHash)

	algorithm := "AWS4-HMAC-SHA256"
	stringToSign := fmt.Sprintf("%s\n%s\n%s\n%s",
		algorithm, amzDate, scope, hex.EncodeToString(hashSHA256([]byte(canonicalRequest))))

	kSecret := []byte("AWS4" + c.config.SecretKey)
	kDate := hmacSHA256(kSecret, dateStamp)
	kRegion := hmacSHA256(kDate, c.config.Region)
	kService := hmacSHA256(kRegion, "s3")
	kSigning := hmacSHA256(kService, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(kSigning, stringToSign))

	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, c.config.AccessKey, scope, signedHeaders, signature)
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func hashSHA256(data []byte) []byte {
	h := sha256.New()
	h.Write(data)
	return h.Sum(nil)
}
