package data

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

var ErrNotMultipart = errors.New("stream response is not multipart")

// WebcamClient pulls single frames from the camera's HTTP server.
type WebcamClient struct {
	httpClient *http.Client
}

func NewWebcamClient(httpClient *http.Client) *WebcamClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebcamClient{httpClient: httpClient}
}

// FetchFrame returns the image behind mediaURL. For a stream only the first
// JPEG part is read and the connection is then dropped.
func (c *WebcamClient) FetchFrame(ctx context.Context, mediaURL string, streaming bool) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build media request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media request to %s returned %d", mediaURL, resp.StatusCode)
	}

	if streaming {
		return readFirstStreamFrame(resp)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode still image: %w", err)
	}
	return img, nil
}

func readFirstStreamFrame(resp *http.Response) (image.Image, error) {
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("%w: %q", ErrNotMultipart, resp.Header.Get("Content-Type"))
	}
	// some cameras send the boundary with its leading dashes
	boundary := strings.TrimPrefix(params["boundary"], "--")
	if boundary == "" {
		return nil, fmt.Errorf("%w: missing boundary", ErrNotMultipart)
	}

	part, err := multipart.NewReader(resp.Body, boundary).NextPart()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream frame: %w", err)
	}
	defer part.Close()

	img, err := jpeg.Decode(part)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stream frame: %w", err)
	}
	return img, nil
}
