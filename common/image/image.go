// Package image resolves pixel dimensions of user-supplied images, either
// inline data URLs or remote URLs, for token estimation.
package image

import (
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	_ "golang.org/x/image/webp"

	"github.com/lumichat/credit/common/client"
	"github.com/lumichat/credit/common/config"
)

const dataURLPrefix = "data:image/"

// GetImageSize returns the width and height of an image given as a data URL
// or a remote URL. Only the image header is decoded, never the full pixel
// data.
func GetImageSize(source string) (width int, height int, err error) {
	if strings.HasPrefix(source, dataURLPrefix) {
		return sizeFromDataURL(source)
	}
	return sizeFromURL(source)
}

func sizeFromDataURL(source string) (int, int, error) {
	idx := strings.Index(source, ";base64,")
	if idx < 0 {
		return 0, 0, errors.Errorf("malformed image data url")
	}
	decoded, err := base64.StdEncoding.DecodeString(source[idx+len(";base64,"):])
	if err != nil {
		return 0, 0, errors.Wrap(err, "decode inline image")
	}

	cfg, _, err := image.DecodeConfig(strings.NewReader(string(decoded)))
	if err != nil {
		return 0, 0, errors.Wrap(err, "decode inline image header")
	}
	return cfg.Width, cfg.Height, nil
}

func sizeFromURL(url string) (int, int, error) {
	if err := probeRemoteImage(url); err != nil {
		return 0, 0, err
	}

	resp, err := client.UserContentRequestHTTPClient.Get(url)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "fetch image %s", url)
	}
	defer resp.Body.Close()

	cfg, _, err := image.DecodeConfig(resp.Body)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "decode image header of %s", url)
	}
	return cfg.Width, cfg.Height, nil
}

// probeRemoteImage rejects URLs that are not images or exceed the inline size
// limit before the body is fetched. Some servers refuse HEAD, those get one
// GET probe instead.
func probeRemoteImage(url string) error {
	resp, err := client.UserContentRequestHTTPClient.Head(url)
	if err != nil {
		return errors.Wrapf(err, "probe image %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		resp, err = client.UserContentRequestHTTPClient.Get(url)
		if err != nil {
			return errors.Wrapf(err, "probe image %s", url)
		}
		defer resp.Body.Close()
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("probe image %s: status %d", url, resp.StatusCode)
	}

	if limit := int64(config.MaxInlineImageSizeMB) * 1024 * 1024; resp.ContentLength > limit {
		return errors.Errorf("image %s exceeds %dMB", url, config.MaxInlineImageSizeMB)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") &&
		!strings.Contains(contentType, "application/octet-stream") {
		return errors.Errorf("content type %q of %s is not an image", contentType, url)
	}
	return nil
}
