package fingerprint

// ImageInfo describes one image for the inspect command output.
type ImageInfo struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`

	// Sharpness of the centre region and the verdict at the configured threshold.
	Sharpness float64 `json:"sharpness"`
	Blurry    bool    `json:"blurry"`

	Hashes *HashResult `json:"hashes,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// ImageInfoBatch represents multiple images for batch output.
type ImageInfoBatch struct {
	Images []ImageInfo `json:"images"`
	Count  int         `json:"count"`
}
