package server

import (
	"github.com/ppiankov/phishlens/internal/explain"
	"github.com/ppiankov/phishlens/internal/model"
)

// PageObservation is what the extension read from the rendered page
type PageObservation struct {
	Title      string   `json:"title"`
	Hyperlinks []string `json:"hyperlinks"`
}

// ScanRequest asks for a scan of URL. When Page is set the server scores
// the supplied observation instead of fetching the page itself.
type ScanRequest struct {
	URL  string           `json:"url"`
	Page *PageObservation `json:"page,omitempty"`
}

// FeaturesRequest asks for the raw feature vector of an observation
type FeaturesRequest struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Hyperlinks []string `json:"hyperlinks"`
}

// FeaturesResponse carries all 20 features and the significant subset
type FeaturesResponse struct {
	Features    model.FeatureMap      `json:"features"`
	Significant []explain.Explanation `json:"significant"`
}

// FeatureDescription describes one feature
type FeatureDescription struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HealthResponse reports model readiness
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	State  string `json:"state"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}
