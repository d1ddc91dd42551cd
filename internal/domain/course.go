package domain

// Course is the canonical representation of an Origin catalog entry inside
// this service. The Origin client maps its catalog payload into this model,
// and the Target client maps from it when building the Course/Module/Step
// hierarchy.
type Course struct {
	OriginID    string
	Title       string
	Description string
	Objective   string
	Reference   string
	Language    string

	DurationMinutes int
	Keywords        []string

	ImageURL  string
	BannerURL string
}
