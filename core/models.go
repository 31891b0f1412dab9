package core

import "strings"

// Model describes one of the image models exposed through bot commands.
type Model struct {
	Key               string
	ID                string
	Name              string
	SupportsReference bool
}

const DefaultModel = "flux"

// MaxImages bounds how many images a single request may ask for.
const MaxImages = 10

var models = map[string]Model{
	"flux":        {Key: "flux", ID: "runware:101@1", Name: "FLUX Dev"},
	"hidream":     {Key: "hidream", ID: "runware:97@2", Name: "HiDream Pro"},
	"kontext":     {Key: "kontext", ID: "bfl:3@1", Name: "Kontext Pro", SupportsReference: true},
	"kontext-max": {Key: "kontext-max", ID: "bfl:4@1", Name: "Kontext Max", SupportsReference: true},
	"fast":        {Key: "fast", ID: "runware:100@1", Name: "FLUX Schnell"},
}

// ModelByKey resolves a command model key, for example "flux".
func ModelByKey(key string) (Model, bool) {
	m, ok := models[key]
	return m, ok
}

const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
	OrientationSquare    = "square"
)

// Dimensions returns the generation width and height for an orientation.
// The bfl models work on a slightly wider grid than the runware ones.
// Anything that is not landscape or square counts as portrait.
func (m Model) Dimensions(orientation string) (int, int) {
	switch strings.ToLower(orientation) {
	case OrientationSquare:
		return 1024, 1024
	case OrientationLandscape:
		if strings.Contains(m.ID, "bfl") {
			return 1392, 752
		}
		return 1344, 704
	default:
		if strings.Contains(m.ID, "bfl") {
			return 752, 1392
		}
		return 704, 1344
	}
}
