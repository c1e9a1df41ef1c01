// Package identify defines the JSON contract between the capture client and
// the identification proxy.
package identify

// Route is the proxy path that accepts identification requests.
const Route = "/api/identify-plant"

// Request carries one inline encoded image.
type Request struct {
	ImageData string `json:"imageData"`
}

// PossibleName is a candidate name for the photographed plant.
type PossibleName struct {
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail"`
}

// Match is a visually similar image found elsewhere.
type Match struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Thumbnail string `json:"thumbnail"`
	Image     string `json:"image"`
}

// Response is the success payload. Both lists are always non-nil so they
// encode as [] rather than null.
type Response struct {
	Success       bool           `json:"success"`
	PossibleNames []PossibleName `json:"possibleNames"`
	Matches       []Match        `json:"matches"`
}

// Empty reports whether the search produced nothing to show.
func (r *Response) Empty() bool {
	return r == nil || (len(r.PossibleNames) == 0 && len(r.Matches) == 0)
}

// ErrorResponse is the failure payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
