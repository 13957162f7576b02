package imagepool

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// maxFetchBytes caps how much image data a single load will read.
const maxFetchBytes = 32 << 20

// HTTPLoader returns a Loader that resolves keys as either data URIs
// (decoded inline) or HTTP(S) URLs fetched with client. A nil client uses
// http.DefaultClient.
func HTTPLoader(client *http.Client) Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, key string) (*Resource, error) {
		var data []byte
		var err error
		if strings.HasPrefix(key, "data:") {
			data, err = decodeDataURI(key)
		} else {
			data, err = fetch(ctx, client, key)
		}
		if err != nil {
			return nil, err
		}

		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image %q: %w", truncateKey(key), err)
		}

		bounds := img.Bounds()
		logrus.WithFields(logrus.Fields{
			"key":    truncateKey(key),
			"width":  bounds.Dx(),
			"height": bounds.Dy(),
		}).Debug("Image loaded")

		return &Resource{
			Key:    key,
			Image:  img,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		}, nil
	}
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url %q: %w", url, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image %q: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image %q: %w", url, err)
	}
	return data, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URI")
	}
	meta, payload := uri[len("data:"):comma], uri[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("unsupported data URI encoding; only base64 is handled")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URI payload: %w", err)
	}
	return data, nil
}

// truncateKey keeps log lines readable when the key is a large data URI.
func truncateKey(key string) string {
	if len(key) > 64 {
		return key[:64] + "..."
	}
	return key
}
