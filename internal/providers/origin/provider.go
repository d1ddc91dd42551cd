package origin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"scorm-bridge/internal/domain"
)

// Provider adapts the Origin client into the canonical course model the
// orchestrator works with.
type Provider struct {
	C *Client
}

func (p Provider) ListCourses(ctx context.Context) ([]domain.Course, error) {
	courses, err := p.C.ListCourses(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Course, 0, len(courses))
	for _, c := range courses {
		out = append(out, MapCourse(c))
	}
	return out, nil
}

func (p Provider) RequestScormExport(ctx context.Context, originCourseID, callbackURL string) error {
	return p.C.RequestScormExport(ctx, originCourseID, callbackURL)
}

func (p Provider) FetchContent(ctx context.Context, url string) ([]byte, string, error) {
	return p.C.FetchContent(ctx, url)
}

// MapCourse converts an Origin catalog entry into the canonical model.
func MapCourse(c Course) domain.Course {
	id := strconv.Itoa(c.ID)

	title := strings.TrimSpace(c.Name)
	if title == "" {
		title = fmt.Sprintf("Origin Course %s", id)
	}

	reference := strings.TrimSpace(c.Code)
	if reference == "" {
		reference = "ORG_" + id
	}

	var keywords []string
	for _, t := range c.Tags {
		if name := strings.TrimSpace(t.Name); name != "" {
			keywords = append(keywords, name)
		}
	}

	return domain.Course{
		OriginID:        id,
		Title:           title,
		Description:     c.Description,
		Objective:       c.ShortDescription,
		Reference:       reference,
		DurationMinutes: c.Duration,
		Keywords:        keywords,
		ImageURL:        c.Image,
		BannerURL:       c.Banner,
	}
}
