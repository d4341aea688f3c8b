package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campuspay/internal/student"
	"campuspay/pkg/db"
)

const studentColumns = `id, user_id, matric_number, first_name, last_name, email, phone, department,
	faculty, programme, level, cgpa, total_credit_units, academic_status,
	expected_graduation_date, actual_graduation_date`

type StudentRepository struct {
	db db.DBTX
}

func NewStudentRepository(conn db.DBTX) *StudentRepository {
	return &StudentRepository{db: conn}
}

func (r *StudentRepository) GetByID(ctx context.Context, id int64) (*student.Student, error) {
	return r.get(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
}

func (r *StudentRepository) GetByUserID(ctx context.Context, userID int64) (*student.Student, error) {
	return r.get(ctx, `SELECT `+studentColumns+` FROM students WHERE user_id = $1`, userID)
}

func (r *StudentRepository) get(ctx context.Context, query string, arg any) (*student.Student, error) {
	s := &student.Student{}
	var expected, actual sql.NullTime
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&s.ID,
		&s.UserID,
		&s.MatricNumber,
		&s.FirstName,
		&s.LastName,
		&s.Email,
		&s.Phone,
		&s.Department,
		&s.Faculty,
		&s.Programme,
		&s.Level,
		&s.CGPA,
		&s.TotalCreditUnits,
		&s.AcademicStatus,
		&expected,
		&actual,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, student.ErrNotFound
		}
		return nil, err
	}
	if expected.Valid {
		s.ExpectedGraduationDate = &expected.Time
	}
	if actual.Valid {
		s.ActualGraduationDate = &actual.Time
	}
	return s, nil
}

// MarkGraduated flips an active student to graduated. It reports false when the student
// was not active, which means another run already graduated them.
func (r *StudentRepository) MarkGraduated(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students SET academic_status = 'graduated', actual_graduation_date = $2, updated_at = NOW()
		WHERE id = $1 AND academic_status = 'active'`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
