package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"scorm-bridge/internal/concurrency"
	"scorm-bridge/internal/domain"
	"scorm-bridge/internal/store"
)

// Origin is what the orchestrator needs from the source catalog platform.
type Origin interface {
	ListCourses(ctx context.Context) ([]domain.Course, error)
	FetchContent(ctx context.Context, url string) ([]byte, string, error)
	RequestScormExport(ctx context.Context, originCourseID, callbackURL string) error
}

// Target is what the orchestrator needs from the destination LMS.
type Target interface {
	CreateCourse(ctx context.Context, course domain.Course) (string, error)
	CreateModule(ctx context.Context, targetCourseID string, course domain.Course) (string, error)
	CreateScormStep(ctx context.Context, targetModuleID string, course domain.Course) (string, error)
	UploadCourseImage(ctx context.Context, targetCourseID string, content []byte, filename string) error
	UploadCourseBanner(ctx context.Context, targetCourseID string, content []byte, filename string) error
}

type Outcome string

const (
	OutcomeProvisioned Outcome = "provisioned"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeFailed      Outcome = "failed"
)

// CourseResult is the per-course record in a run report. Err carries enough
// detail to re-run just that course.
type CourseResult struct {
	OriginCourseID string
	Title          string
	Outcome        Outcome
	Err            error
}

type RunReport struct {
	Results []CourseResult
}

func (r RunReport) Counts() (provisioned, skipped, failed int) {
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeProvisioned:
			provisioned++
		case OutcomeSkipped:
			skipped++
		default:
			failed++
		}
	}
	return
}

// Orchestrator drives the synchronous provisioning phase: for each Origin
// course it builds the Target hierarchy, records the correlation mapping,
// then requests the asynchronous SCORM export. It never waits for exports
// to finish; the webhook receiver picks up from the mapping later.
type Orchestrator struct {
	Origin      Origin
	Target      Target
	Store       store.MappingRepository
	CallbackURL string
	Workers     int // bounded parallelism; <=1 means sequential
	Log         *zap.Logger
}

func (o *Orchestrator) Run(ctx context.Context) (RunReport, error) {
	courses, err := o.Origin.ListCourses(ctx)
	if err != nil {
		return RunReport{}, fmt.Errorf("sync: fetch catalog: %w", err)
	}
	o.Log.Info("catalog fetched", zap.Int("courses", len(courses)))

	workers := o.Workers
	if workers <= 0 {
		workers = 1
	}

	// Courses own disjoint mapping keys, so they need no coordination
	// beyond the store itself.
	results, _ := concurrency.Map(ctx, courses, concurrency.Options{MaxWorkers: workers},
		func(ctx context.Context, _ int, course domain.Course) (CourseResult, error) {
			return o.processCourse(ctx, course), nil
		})

	// Workers bail out on cancellation without producing a result; surface
	// those courses as failed instead of leaving blank entries in the report.
	for i := range results {
		if results[i].Outcome == "" {
			cause := ctx.Err()
			if cause == nil {
				cause = errors.New("worker exited early")
			}
			results[i] = CourseResult{
				OriginCourseID: courses[i].OriginID,
				Title:          courses[i].Title,
				Outcome:        OutcomeFailed,
				Err:            fmt.Errorf("not processed: %w", cause),
			}
		}
	}

	return RunReport{Results: results}, nil
}

func (o *Orchestrator) processCourse(ctx context.Context, course domain.Course) CourseResult {
	res := CourseResult{OriginCourseID: course.OriginID, Title: course.Title}
	log := o.Log.With(zap.String("origin_course_id", course.OriginID), zap.String("title", course.Title))

	exists, err := o.Store.Exists(ctx, course.OriginID)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("check mapping: %w", err)
		return res
	}
	if exists {
		log.Info("already mapped, skipping")
		res.Outcome = OutcomeSkipped
		return res
	}

	stepID, err := o.provision(ctx, course, log)
	if err != nil {
		// no mapping was written for the half-built hierarchy
		log.Error("provisioning failed", zap.Error(err))
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	// The mapping must be durable before the export request goes out. If
	// the export request then fails, the mapping is an inert orphan; the
	// reverse order risks a callback arriving with nothing to resolve it.
	if err := o.Store.Put(ctx, course.OriginID, stepID); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			log.Error("mapping appeared during provisioning, duplicate hierarchy was created",
				zap.String("target_step_id", stepID))
		}
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("store mapping: %w", err)
		return res
	}

	if err := o.Origin.RequestScormExport(ctx, course.OriginID, o.CallbackURL); err != nil {
		log.Warn("export request failed, mapping kept as pending_export", zap.Error(err))
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("request export: %w", err)
		return res
	}

	log.Info("course provisioned, waiting for callback", zap.String("target_step_id", stepID))
	res.Outcome = OutcomeProvisioned
	return res
}

// provision creates Course, Module and Step in order. Any failure aborts
// the course and surfaces the step that failed.
func (o *Orchestrator) provision(ctx context.Context, course domain.Course, log *zap.Logger) (string, error) {
	courseID, err := o.Target.CreateCourse(ctx, course)
	if err != nil {
		return "", fmt.Errorf("create course: %w", err)
	}

	o.mirrorArtwork(ctx, courseID, course, log)

	moduleID, err := o.Target.CreateModule(ctx, courseID, course)
	if err != nil {
		return "", fmt.Errorf("create module: %w", err)
	}

	stepID, err := o.Target.CreateScormStep(ctx, moduleID, course)
	if err != nil {
		return "", fmt.Errorf("create step: %w", err)
	}

	return stepID, nil
}

// mirrorArtwork copies course image and banner over when the catalog has
// them. Artwork failures never abort a course.
func (o *Orchestrator) mirrorArtwork(ctx context.Context, targetCourseID string, course domain.Course, log *zap.Logger) {
	if course.ImageURL != "" {
		if content, name, err := o.Origin.FetchContent(ctx, course.ImageURL); err != nil {
			log.Warn("image download failed", zap.Error(err))
		} else if err := o.Target.UploadCourseImage(ctx, targetCourseID, content, name); err != nil {
			log.Warn("image upload failed", zap.Error(err))
		}
	}

	if course.BannerURL != "" {
		if content, name, err := o.Origin.FetchContent(ctx, course.BannerURL); err != nil {
			log.Warn("banner download failed", zap.Error(err))
		} else if err := o.Target.UploadCourseBanner(ctx, targetCourseID, content, name); err != nil {
			log.Warn("banner upload failed", zap.Error(err))
		}
	}
}
