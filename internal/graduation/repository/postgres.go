package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"campuspay/internal/apperr"
	"campuspay/internal/graduation"
	"campuspay/internal/notification"
	notificationRepo "campuspay/internal/notification/repository"
	"campuspay/internal/student"
	studentRepo "campuspay/internal/student/repository"
	"campuspay/internal/user"
	userRepo "campuspay/internal/user/repository"
	"campuspay/pkg/db"
)

type GraduationRepository struct {
	db *sql.DB
}

func NewGraduationRepository(conn *sql.DB) *GraduationRepository {
	return &GraduationRepository{db: conn}
}

// FindEligible returns active students meeting every minimum who have no alumni record yet.
func (r *GraduationRepository) FindEligible(ctx context.Context, c graduation.Criteria) ([]graduation.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, s.matric_number, s.first_name, s.last_name, s.email, s.phone,
			s.department, s.faculty, s.programme, s.level, s.cgpa, s.total_credit_units
		FROM students s
		WHERE s.academic_status = 'active'
			AND s.level >= $1
			AND s.cgpa >= $2
			AND s.total_credit_units >= $3
			AND NOT EXISTS (SELECT 1 FROM alumni a WHERE a.former_student_id = s.id)
		ORDER BY s.id`,
		c.MinLevel, c.MinCGPA, c.MinCreditUnits)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []graduation.Candidate
	for rows.Next() {
		var cand graduation.Candidate
		if err := rows.Scan(
			&cand.StudentID,
			&cand.UserID,
			&cand.MatricNumber,
			&cand.FirstName,
			&cand.LastName,
			&cand.Email,
			&cand.Phone,
			&cand.Department,
			&cand.Faculty,
			&cand.Programme,
			&cand.Level,
			&cand.CGPA,
			&cand.TotalCreditUnits,
		); err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

// Transition locks the student row, refreshes a from it, then records the alumni row,
// graduates the student, promotes the user and queues buildNote(a) in one transaction.
// A student that is already graduated or no longer active yields a ConflictError and
// nothing changes.
func (r *GraduationRepository) Transition(ctx context.Context, a *graduation.Alumni, buildNote func(*graduation.Alumni) *notification.Notification) error {
	key := strconv.FormatInt(a.FormerStudentID, 10)

	return db.WithTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `
			SELECT cgpa, first_name, last_name, email, phone, department, faculty, academic_status
			FROM students WHERE id = $1 FOR UPDATE`,
			a.FormerStudentID,
		).Scan(&a.FinalCGPA, &a.FirstName, &a.LastName, &a.Email, &a.Phone, &a.Department, &a.Faculty, &status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return student.ErrNotFound
			}
			return err
		}
		switch status {
		case student.StatusActive:
		case student.StatusGraduated:
			return &apperr.ConflictError{Resource: "alumni", Key: key, Err: graduation.ErrAlreadyTransitioned}
		default:
			return &apperr.ConflictError{Resource: "student", Key: key, Err: graduation.ErrNotActive}
		}
		a.ClassOfDegree = graduation.DegreeClass(a.FinalCGPA)

		err = tx.QueryRowContext(ctx, `
			INSERT INTO alumni (former_student_id, user_id, graduation_year, degree_awarded, class_of_degree,
				final_cgpa, first_name, last_name, email, phone, department, faculty)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at`,
			a.FormerStudentID, a.UserID, a.GraduationYear, a.DegreeAwarded, a.ClassOfDegree,
			a.FinalCGPA, a.FirstName, a.LastName, a.Email, a.Phone, a.Department, a.Faculty,
		).Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return &apperr.ConflictError{Resource: "alumni", Key: key, Err: graduation.ErrAlreadyTransitioned}
			}
			return err
		}

		graduated, err := studentRepo.NewStudentRepository(tx).MarkGraduated(ctx, a.FormerStudentID, a.CreatedAt)
		if err != nil {
			return err
		}
		if !graduated {
			return &apperr.ConflictError{Resource: "student", Key: key, Err: graduation.ErrNotActive}
		}

		if err := userRepo.NewPostgresUserRepository(tx).UpdateRole(ctx, a.UserID, user.RoleAlumni); err != nil {
			return err
		}

		return notificationRepo.NewNotificationRepository(tx).Create(ctx, buildNote(a))
	})
}
