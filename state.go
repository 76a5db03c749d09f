package subscale

import (
	"github.com/echoflaresat/subscale/pyramid"
	"github.com/echoflaresat/subscale/vectors"
)

// ViewState is the part of a view's position worth saving across images or
// sessions.
type ViewState struct {
	Scale       float64
	Center      vectors.Vec2
	Orientation pyramid.Orientation
}
