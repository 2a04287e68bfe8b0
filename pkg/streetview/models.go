package streetview

import "github.com/paulmach/orb"

// Service-level status strings returned by the metadata endpoint
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusNotFound       = "NOT_FOUND"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusUnknownError   = "UNKNOWN_ERROR"
)

// MetadataResponse is the raw metadata endpoint payload
type MetadataResponse struct {
	Status       string `json:"status"`
	PanoID       string `json:"pano_id"`
	Date         string `json:"date"`
	Copyright    string `json:"copyright"`
	ErrorMessage string `json:"error_message"`
	Location     struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

// Metadata describes the panorama nearest to a queried location
type Metadata struct {
	PanoID    string
	Location  orb.Point
	Date      string
	Copyright string
}

// Image is one fetched view of a panorama
type Image struct {
	PanoID      string
	Heading     float64
	ContentType string
	Data        []byte
}

// Extension returns the file extension matching the content type
func (i *Image) Extension() string {
	if i.ContentType == "image/png" {
		return ".png"
	}
	return ".jpg"
}
