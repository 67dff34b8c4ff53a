package discovery

import (
	"strings"

	"github.com/allprocessofworld/Contentsearchengine251112/internal/domain"
)

// ResolveThumbnail picks the best variant by domain.ThumbnailPriority. When
// none of the ranked labels is present it falls back to the first variant
// with a URL. ok is false only when there is no usable variant at all.
func ResolveThumbnail(variants []domain.ThumbnailVariant) (url string, ok bool) {
	for _, label := range domain.ThumbnailPriority {
		for _, variant := range variants {
			if variant.Label == label && strings.TrimSpace(variant.URL) != "" {
				return strings.TrimSpace(variant.URL), true
			}
		}
	}
	for _, variant := range variants {
		if link := strings.TrimSpace(variant.URL); link != "" {
			return link, true
		}
	}
	return "", false
}
