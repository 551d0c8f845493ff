package harvest

import "strings"

// imageExtension picks a file extension for an image upload from its content
// type, falling back to the URL path and finally to .jpg.
func imageExtension(contentType, rawURL string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if i := strings.LastIndex(path, "."); i >= 0 {
		switch ext := strings.ToLower(path[i:]); ext {
		case ".jpg", ".jpeg":
			return ".jpg"
		case ".png", ".gif", ".webp":
			return ext
		}
	}
	return ".jpg"
}
