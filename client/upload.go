package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// UploadImage uploads raw image bytes and returns the server-assigned
// image id, ready to be attached to a message.
func (c *Client) UploadImage(ctx context.Context, filename string, data io.Reader, mimeType string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for name, values := range c.session.Sign(url.Values{}) {
		for _, v := range values {
			if err := writer.WriteField(name, v); err != nil {
				return "", fmt.Errorf("building upload form: %w", err)
			}
		}
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return "", fmt.Errorf("reading image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Upload, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("uploading image: %w", err)
	}
	if !resp.ok() {
		return "", fmt.Errorf("uploading image: unexpected status %d", resp.status)
	}

	var payload struct {
		Payload struct {
			Metadata []struct {
				ImageID any `json:"image_id"`
			} `json:"metadata"`
		} `json:"payload"`
	}
	if err := decode(resp, &payload); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if len(payload.Payload.Metadata) == 0 {
		return "", fmt.Errorf("upload response carries no image metadata")
	}
	return fmt.Sprint(payload.Payload.Metadata[0].ImageID), nil
}

// SendLocalImage uploads an image file from disk and sends it to the
// thread with an optional caption.
func (c *Client) SendLocalImage(ctx context.Context, thread ThreadRef, path, caption string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening image: %w", err)
	}
	defer file.Close()

	imageID, err := c.UploadImage(ctx, path, file, mimeTypeFor(path))
	if err != nil {
		return "", err
	}
	return c.sendImageID(ctx, thread, imageID, caption)
}

// SendRemoteImage downloads an image from a URL, re-uploads it, and
// sends it to the thread with an optional caption.
func (c *Client) SendRemoteImage(ctx context.Context, thread ThreadRef, imageURL, caption string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading image: unexpected status %d", resp.StatusCode)
	}

	imageID, err := c.UploadImage(ctx, imageURL, resp.Body, mimeTypeFor(imageURL))
	if err != nil {
		return "", err
	}
	return c.sendImageID(ctx, thread, imageID, caption)
}

func mimeTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
