package billing

import (
	"math"
	"strings"

	"github.com/Laisky/errors/v2"

	imgutil "github.com/lumichat/credit/common/image"
)

const (
	imageBaseTokens = 85
	imageTileTokens = 170

	// gpt-4o-mini reports much larger vision token figures than its siblings.
	imageBaseTokensGPT4oMini = 2833
	imageTileTokensGPT4oMini = 5667

	imageShortSideLimit = 768
	imageTileSize       = 512
)

// getImageSizeFn is swapped out by tests to avoid fetching real images.
var getImageSizeFn = imgutil.GetImageSize

// CountImageTokens estimates the token cost of one image part. Gemini and
// Claude models bill a flat figure; OpenAI-style models tile the image after
// scaling the short side down to 768px.
func CountImageTokens(modelID string, url string, detail string) (int, error) {
	baseTokens := imageBaseTokens
	tileTokens := imageTileTokens
	if strings.Contains(modelID, "gpt-4o-mini") {
		baseTokens = imageBaseTokensGPT4oMini
		tileTokens = imageTileTokensGPT4oMini
	}

	if strings.HasPrefix(modelID, "gemini") || strings.HasPrefix(modelID, "claude") {
		return 3 * baseTokens, nil
	}

	if detail == "low" {
		return baseTokens, nil
	}

	// "high" and "auto" both pay per tile.
	width, height, err := getImageSizeFn(url)
	if err != nil {
		return 0, errors.Wrap(err, "get image size")
	}
	if width <= 0 || height <= 0 {
		return 0, errors.Errorf("invalid image size %dx%d", width, height)
	}

	short, other := width, height
	if short > other {
		short, other = other, short
	}
	if short > imageShortSideLimit {
		other = int(math.Ceil(float64(other) * float64(imageShortSideLimit) / float64(short)))
		short = imageShortSideLimit
	}

	tiles := int(math.Ceil(float64(short)/imageTileSize)) * int(math.Ceil(float64(other)/imageTileSize))
	return tiles*tileTokens + baseTokens, nil
}
