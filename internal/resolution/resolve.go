// Package resolution negotiates output dimensions and the transcoder filter
// chain for a stream or snapshot request.
package resolution

import (
	"fmt"
	"slices"
	"strings"

	"github.com/smazurov/camstream/internal/config"
)

// NoneFilter in video_filter disables automatic scaling.
const NoneFilter = "none"

// evenDimensionsFilter rounds both dimensions down to an even value.
const evenDimensionsFilter = "scale=trunc(iw/2)*2:trunc(ih/2)*2"

// Info is the negotiated outcome. A zero Width or Height leaves that
// dimension to the source.
type Info struct {
	Width  int
	Height int

	// SnapFilter is the configured override list without generated scaling.
	SnapFilter string
	// ResizeFilter bounds the image to Width x Height, preserving aspect ratio.
	ResizeFilter string
	// VideoFilter is the full chain for the streaming leg.
	VideoFilter string
}

// Resolve computes the effective resolution and filters for a request.
// Snapshot requests are never capped.
func Resolve(width, height int, cfg config.VideoConfig, snapshot bool) Info {
	info := Info{Width: width, Height: height}

	if !snapshot {
		info.Width = Cap(width, cfg.MaxWidth, cfg.ForceMax)
		info.Height = Cap(height, cfg.MaxHeight, cfg.ForceMax)
	}

	var filters []string
	if cfg.VideoFilter != "" {
		filters = strings.Split(cfg.VideoFilter, ",")
	}

	suppressScale := false
	if i := slices.Index(filters, NoneFilter); i >= 0 {
		filters = slices.Delete(filters, i, i+1)
		suppressScale = true
	}

	info.SnapFilter = strings.Join(filters, ",")

	if !suppressScale && (info.Width > 0 || info.Height > 0) {
		info.ResizeFilter = scaleFilter(info.Width, info.Height)
		filters = append(filters, info.ResizeFilter, evenDimensionsFilter)
	}

	if len(filters) > 0 {
		info.VideoFilter = strings.Join(filters, ",")
	}

	return info
}

// Cap applies the max/force_max policy to a single requested value.
// A zero limit leaves the request untouched.
func Cap(requested, limit int, force bool) int {
	if limit > 0 && (force || requested > limit) {
		return limit
	}
	return requested
}

func scaleFilter(width, height int) string {
	w, h := "iw", "ih"
	if width > 0 {
		w = fmt.Sprintf("'min(%d,iw)'", width)
	}
	if height > 0 {
		h = fmt.Sprintf("'min(%d,ih)'", height)
	}
	return "scale=" + w + ":" + h + ":force_original_aspect_ratio=decrease"
}
