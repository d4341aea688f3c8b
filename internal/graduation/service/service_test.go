package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuspay/internal/apperr"
	"campuspay/internal/graduation"
	"campuspay/internal/notification"
)

// fakeRepo keeps alumni keyed by student. Transition fails with a conflict for a
// student that already has a row, like the unique index does. liveCGPA overrides the
// CGPA seen at transition time, like an edit made after the eligibility read.
type fakeRepo struct {
	mu        sync.Mutex
	students  []graduation.Candidate
	alumni    map[int64]*graduation.Alumni
	notes     []*notification.Notification
	failFor   map[int64]error
	liveCGPA  map[int64]decimal.Decimal
	findErr   error
	lastQuery graduation.Criteria
}

func newFakeRepo(students ...graduation.Candidate) *fakeRepo {
	return &fakeRepo{
		students: students,
		alumni:   make(map[int64]*graduation.Alumni),
		failFor:  make(map[int64]error),
		liveCGPA: make(map[int64]decimal.Decimal),
	}
}

func (r *fakeRepo) FindEligible(ctx context.Context, c graduation.Criteria) ([]graduation.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastQuery = c
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []graduation.Candidate
	for _, s := range r.students {
		if _, done := r.alumni[s.StudentID]; done {
			continue
		}
		if s.Level >= c.MinLevel && s.CGPA.GreaterThanOrEqual(c.MinCGPA) && s.TotalCreditUnits >= c.MinCreditUnits {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRepo) Transition(ctx context.Context, a *graduation.Alumni, buildNote func(*graduation.Alumni) *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[a.FormerStudentID]; err != nil {
		return err
	}
	if _, done := r.alumni[a.FormerStudentID]; done {
		return &apperr.ConflictError{Resource: "alumni", Key: strconv.FormatInt(a.FormerStudentID, 10), Err: graduation.ErrAlreadyTransitioned}
	}
	if cgpa, ok := r.liveCGPA[a.FormerStudentID]; ok {
		a.FinalCGPA = cgpa
		a.ClassOfDegree = graduation.DegreeClass(cgpa)
	}
	a.ID = int64(len(r.alumni) + 1)
	r.alumni[a.FormerStudentID] = a
	r.notes = append(r.notes, buildNote(a))
	return nil
}

func candidate(id int64, level int, cgpa string, units int) graduation.Candidate {
	return graduation.Candidate{
		StudentID:        id,
		UserID:           id * 10,
		MatricNumber:     fmt.Sprintf("CSC/2021/%03d", id),
		FirstName:        "Student",
		LastName:         strconv.FormatInt(id, 10),
		Level:            level,
		CGPA:             decimal.RequireFromString(cgpa),
		TotalCreditUnits: units,
	}
}

var testCriteria = graduation.Criteria{MinLevel: 400, MinCGPA: decimal.RequireFromString("1.0"), MinCreditUnits: 120}

func TestProcessGraduationTransitions(t *testing.T) {
	repo := newFakeRepo(
		candidate(1, 400, "4.72", 150),
		candidate(2, 500, "3.10", 160),
		candidate(3, 300, "4.90", 150),
		candidate(4, 400, "0.90", 150),
		candidate(5, 400, "2.00", 100),
	)
	svc := NewService(repo, Config{Criteria: testCriteria, Concurrency: 4, DegreeAwarded: "Bachelor of Science"})

	summary, err := svc.ProcessGraduationTransitions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, graduation.Summary{TotalEligible: 2, Transitioned: 2}, summary)
	assert.Equal(t, testCriteria, repo.lastQuery)

	first := repo.alumni[1]
	require.NotNil(t, first)
	assert.Equal(t, graduation.FirstClass, first.ClassOfDegree)
	assert.Equal(t, "Bachelor of Science", first.DegreeAwarded)
	assert.EqualValues(t, 10, first.UserID)
	assert.Equal(t, graduation.SecondClassLower, repo.alumni[2].ClassOfDegree)

	require.Len(t, repo.notes, 2)
	for _, n := range repo.notes {
		assert.Equal(t, "Congratulations, Graduate!", n.Title)
		assert.Equal(t, notification.TypeGraduation, n.Type)
		assert.Equal(t, notification.PriorityHigh, n.Priority)
	}
}

func TestSecondRunTransitionsNobody(t *testing.T) {
	repo := newFakeRepo(candidate(1, 400, "4.00", 150), candidate(2, 400, "3.00", 150))
	svc := NewService(repo, Config{Criteria: testCriteria, Concurrency: 2})

	_, err := svc.ProcessGraduationTransitions(context.Background())
	require.NoError(t, err)
	again, err := svc.ProcessGraduationTransitions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, graduation.Summary{}, again)
	assert.Len(t, repo.alumni, 2)
	assert.Len(t, repo.notes, 2)
}

func TestFailuresAreIsolatedPerStudent(t *testing.T) {
	repo := newFakeRepo(
		candidate(1, 400, "4.00", 150),
		candidate(2, 400, "4.00", 150),
		candidate(3, 400, "4.00", 150),
		candidate(4, 400, "4.00", 150),
	)
	repo.failFor[2] = errors.New("deadlock detected")
	repo.failFor[3] = &apperr.ConflictError{Resource: "student", Key: "3", Err: graduation.ErrNotActive}
	svc := NewService(repo, Config{Criteria: testCriteria, Concurrency: 1})

	summary, err := svc.ProcessGraduationTransitions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, graduation.Summary{TotalEligible: 4, Transitioned: 2, AlreadyTransitioned: 1, Failed: 1}, summary)
	assert.Contains(t, repo.alumni, int64(1))
	assert.Contains(t, repo.alumni, int64(4))
}

func TestTransitionToAlumniConflict(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, Config{Criteria: testCriteria})
	c := candidate(9, 400, "3.60", 140)

	_, err := svc.TransitionToAlumni(context.Background(), c)
	require.NoError(t, err)
	_, err = svc.TransitionToAlumni(context.Background(), c)

	assert.True(t, apperr.IsConflict(err))
	assert.ErrorIs(t, err, graduation.ErrAlreadyTransitioned)
	assert.Len(t, repo.notes, 1)
}

func TestTransitionToAlumniRecordsCurrentCGPA(t *testing.T) {
	repo := newFakeRepo()
	repo.liveCGPA[9] = decimal.RequireFromString("4.60")
	svc := NewService(repo, Config{Criteria: testCriteria})

	a, err := svc.TransitionToAlumni(context.Background(), candidate(9, 400, "3.60", 140))

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("4.60").Equal(a.FinalCGPA))
	assert.Equal(t, graduation.FirstClass, a.ClassOfDegree)
	require.Len(t, repo.notes, 1)
	assert.Contains(t, repo.notes[0].Message, "First Class (CGPA 4.60)")
	assert.Equal(t, graduation.FirstClass, repo.notes[0].Metadata["class_of_degree"])
	assert.Equal(t, "CSC/2021/009", repo.notes[0].Metadata["matric_number"])
}

func TestTransitionToAlumniWrapsStorageErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.failFor[9] = errors.New("connection refused")
	svc := NewService(repo, Config{Criteria: testCriteria})

	_, err := svc.TransitionToAlumni(context.Background(), candidate(9, 400, "3.60", 140))

	assert.True(t, apperr.IsPersistence(err))
}

func TestFindEligibleFailureAbortsRun(t *testing.T) {
	repo := newFakeRepo(candidate(1, 400, "4.00", 150))
	repo.findErr = errors.New("relation \"students\" does not exist")
	svc := NewService(repo, Config{Criteria: testCriteria})

	summary, err := svc.ProcessGraduationTransitions(context.Background())

	assert.True(t, apperr.IsPersistence(err))
	assert.Equal(t, graduation.Summary{}, summary)
	assert.Empty(t, repo.alumni)
}

func TestProcessLargeCohortConcurrently(t *testing.T) {
	var cohort []graduation.Candidate
	for i := int64(1); i <= 200; i++ {
		cohort = append(cohort, candidate(i, 400, "3.00", 150))
	}
	repo := newFakeRepo(cohort...)
	svc := NewService(repo, Config{Criteria: testCriteria, Concurrency: 8})

	summary, err := svc.ProcessGraduationTransitions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 200, summary.Transitioned)
	assert.Len(t, repo.alumni, 200)
}
