package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"campuspay/internal/apperr"
	"campuspay/internal/graduation"
	"campuspay/internal/metrics"
	"campuspay/internal/notification"
)

type GraduationRepository interface {
	FindEligible(ctx context.Context, c graduation.Criteria) ([]graduation.Candidate, error)
	// Transition refreshes a from the locked student row before writing, then stores the
	// notification built from the refreshed record.
	Transition(ctx context.Context, a *graduation.Alumni, buildNote func(*graduation.Alumni) *notification.Notification) error
}

type Config struct {
	Criteria      graduation.Criteria
	Concurrency   int
	DegreeAwarded string
}

type Service struct {
	repo GraduationRepository
	cfg  Config
	now  func() time.Time
}

func NewService(repo GraduationRepository, cfg Config) *Service {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

func (s *Service) FindEligibleGraduates(ctx context.Context) ([]graduation.Candidate, error) {
	candidates, err := s.repo.FindEligible(ctx, s.cfg.Criteria)
	if err != nil {
		return nil, apperr.Persistence("find eligible graduates", err)
	}
	return candidates, nil
}

// TransitionToAlumni graduates one student. The alumni record reflects the student row
// at the moment of the transition, not the eligibility read in c. A student that was
// already transitioned yields a ConflictError wrapping graduation.ErrAlreadyTransitioned.
func (s *Service) TransitionToAlumni(ctx context.Context, c graduation.Candidate) (*graduation.Alumni, error) {
	alumni := &graduation.Alumni{
		FormerStudentID: c.StudentID,
		UserID:          c.UserID,
		GraduationYear:  s.now().Year(),
		DegreeAwarded:   s.cfg.DegreeAwarded,
		ClassOfDegree:   graduation.DegreeClass(c.CGPA),
		FinalCGPA:       c.CGPA,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Email:           c.Email,
		Phone:           c.Phone,
		Department:      c.Department,
		Faculty:         c.Faculty,
	}

	if err := s.repo.Transition(ctx, alumni, func(a *graduation.Alumni) *notification.Notification {
		return graduationNote(c.MatricNumber, a)
	}); err != nil {
		if apperr.IsConflict(err) {
			return nil, err
		}
		return nil, apperr.Persistence(fmt.Sprintf("transition student %d", c.StudentID), err)
	}

	if !alumni.FinalCGPA.Equal(c.CGPA) {
		log.Printf("GraduationService: student %d CGPA changed from %s to %s since eligibility check",
			c.StudentID, c.CGPA.StringFixed(2), alumni.FinalCGPA.StringFixed(2))
	}
	log.Printf("GraduationService: student %d (%s) transitioned to alumni, %s", c.StudentID, c.MatricNumber, alumni.ClassOfDegree)
	return alumni, nil
}

func graduationNote(matric string, a *graduation.Alumni) *notification.Notification {
	return &notification.Notification{
		UserID:   a.UserID,
		Title:    "Congratulations, Graduate!",
		Message:  fmt.Sprintf("Congratulations %s! You have graduated with %s (CGPA %s). Welcome to the alumni community.", a.FirstName, a.ClassOfDegree, a.FinalCGPA.StringFixed(2)),
		Type:     notification.TypeGraduation,
		Priority: notification.PriorityHigh,
		Metadata: map[string]any{
			"student_id":      a.FormerStudentID,
			"matric_number":   matric,
			"class_of_degree": a.ClassOfDegree,
		},
	}
}

// ProcessGraduationTransitions graduates every eligible student. Students are handled
// independently: a failure is logged and counted, and the rest of the cohort proceeds.
func (s *Service) ProcessGraduationTransitions(ctx context.Context) (graduation.Summary, error) {
	var summary graduation.Summary

	candidates, err := s.FindEligibleGraduates(ctx)
	if err != nil {
		return summary, err
	}
	summary.TotalEligible = len(candidates)
	log.Printf("GraduationService: %d students eligible for graduation", len(candidates))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)

	for _, c := range candidates {
		g.Go(func() error {
			_, err := s.TransitionToAlumni(ctx, c)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Transitioned++
				metrics.GraduationTransitionsTotal.WithLabelValues("transitioned").Inc()
			case apperr.IsConflict(err):
				summary.AlreadyTransitioned++
				metrics.GraduationTransitionsTotal.WithLabelValues("already_transitioned").Inc()
				log.Printf("GraduationService: student %d skipped: %v", c.StudentID, err)
			default:
				summary.Failed++
				metrics.GraduationTransitionsTotal.WithLabelValues("failed").Inc()
				log.Printf("GraduationService: student %d failed to transition: %v", c.StudentID, err)
			}
			// Never abort the group: the other students must still be processed.
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("GraduationService: run finished, %d eligible, %d transitioned, %d already done, %d failed",
		summary.TotalEligible, summary.Transitioned, summary.AlreadyTransitioned, summary.Failed)

	return summary, ctx.Err()
}
