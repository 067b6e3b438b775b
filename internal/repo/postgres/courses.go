package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenliu-dev/coursehub/internal/domain/course"
	"github.com/wenliu-dev/coursehub/internal/observability"
)

// selectCourse joins the owning instructor and aggregates the enrolled
// student ids so a single row scans into a complete course.
const selectCourse = `
	SELECT c.id,
		c.title,
		c.description,
		c.price,
		u.id,
		u.username,
		u.email,
		COALESCE((SELECT array_agg(e.student_id::text ORDER BY e.created_at)
			FROM enrollments e WHERE e.course_id = c.id), '{}') AS students,
		c.created_at,
		c.updated_at
	FROM courses c
	JOIN users u ON u.id = c.instructor_id
`

type CoursesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewCoursesRepo(pool *pgxpool.Pool, prom *observability.Prom) *CoursesRepo {
	return &CoursesRepo{
		pool: pool,
		prom: prom,
	}
}

func (r *CoursesRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func scanCourse(row pgx.Row) (course.Course, error) {
	var c course.Course

	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Price,
		&c.Instructor.ID,
		&c.Instructor.Username,
		&c.Instructor.Email,
		&c.Students,
		&c.CreatedAt,
		&c.UpdatedAt,
	)

	return c, err
}

func (r *CoursesRepo) Create(ctx context.Context, req course.CreateCourseRequest) (course.Course, error) {
	c := course.NewFromCreateRequest(req)

	err := r.observe("courses.create", func() error {
		_, e := r.pool.Exec(ctx,
			`INSERT INTO courses (id, title, description, price, instructor_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			c.ID, c.Title, c.Description, c.Price, req.InstructorID, c.CreatedAt, c.UpdatedAt)
		return e
	})

	if err != nil {
		return course.Course{}, err
	}

	// re-read so the response carries the expanded instructor
	return r.GetByID(ctx, c.ID)
}

func (r *CoursesRepo) GetByID(ctx context.Context, id string) (course.Course, error) {
	var c course.Course
	err := r.observe("courses.get_by_id", func() error {
		var e error
		c, e = scanCourse(r.pool.QueryRow(ctx, selectCourse+` WHERE c.id = $1`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, err
	}

	return c, nil
}

// List applies the optional filters. List-style lookups that match nothing
// return an empty slice, not an error.
func (r *CoursesRepo) List(ctx context.Context, filter course.ListFilter) ([]course.Course, error) {
	var conds []string
	var args []interface{}

	argsPosition := 1

	if filter.InstructorID != nil {
		conds = append(conds, fmt.Sprintf("c.instructor_id = $%d", argsPosition))
		args = append(args, *filter.InstructorID)
		argsPosition++
	}

	if filter.StudentID != nil {
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM enrollments e WHERE e.course_id = c.id AND e.student_id = $%d)", argsPosition))
		args = append(args, *filter.StudentID)
		argsPosition++
	}

	if filter.Title != nil {
		conds = append(conds, fmt.Sprintf("c.title = $%d", argsPosition))
		args = append(args, *filter.Title)
		argsPosition++
	}

	query := selectCourse

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	// stable ordering for pagination
	query += fmt.Sprintf(" ORDER BY c.created_at DESC, c.id ASC LIMIT $%d", argsPosition)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	var out []course.Course

	err := r.observe("courses.list", func() error {
		rows, e := r.pool.Query(ctx, query, args...)
		if e != nil {
			return e
		}
		defer rows.Close()

		out = make([]course.Course, 0, limit)

		for rows.Next() {
			c, e := scanCourse(rows)
			if e != nil {
				return e
			}
			out = append(out, c)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

// ListCursor pages the full catalogue keyed on (created_at, id). hasMore is
// true when another page exists after the returned one.
func (r *CoursesRepo) ListCursor(ctx context.Context, limit int, afterCreatedAt time.Time, afterID string) ([]course.Course, bool, error) {
	if limit <= 0 {
		limit = 20
	}

	query := selectCourse
	args := []interface{}{}

	if afterID != "" {
		query += ` WHERE (c.created_at, c.id) < ($1, $2)
			ORDER BY c.created_at DESC, c.id DESC LIMIT $3`
		args = append(args, afterCreatedAt, afterID, limit+1)
	} else {
		query += ` ORDER BY c.created_at DESC, c.id DESC LIMIT $1`
		args = append(args, limit+1)
	}

	var out []course.Course

	err := r.observe("courses.list_cursor", func() error {
		rows, e := r.pool.Query(ctx, query, args...)
		if e != nil {
			return e
		}
		defer rows.Close()

		out = make([]course.Course, 0, limit)

		for rows.Next() {
			c, e := scanCourse(rows)
			if e != nil {
				return e
			}
			out = append(out, c)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, false, err
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}

	return out, hasMore, nil
}

func (r *CoursesRepo) Update(ctx context.Context, id string, req course.UpdateCourseRequest) (course.Course, error) {
	err := r.observe("courses.update", func() error {
		var updated string
		return r.pool.QueryRow(ctx,
			`UPDATE courses
				SET title = $2,
					description = $3,
					price = $4,
					updated_at = NOW()
			WHERE id = $1
			RETURNING id`,
			id, req.Title, req.Description, req.Price,
		).Scan(&updated)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, err
	}

	return r.GetByID(ctx, id)
}

func (r *CoursesRepo) Delete(ctx context.Context, id string) error {
	return r.observe("courses.delete", func() error {
		tag, e := r.pool.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id)
		if e != nil {
			return e
		}
		if tag.RowsAffected() == 0 {
			return course.ErrNotFound
		}
		return nil
	})
}

// Enroll adds studentID to the course roster inside one transaction. The
// course row is locked first so a concurrent enroll cannot race the duplicate
// check, and the (course_id, student_id) unique constraint backstops it.
func (r *CoursesRepo) Enroll(ctx context.Context, courseID, studentID string) (c course.Course, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() { _ = tx.Rollback(ctx) }()

	var dummy string

	err = r.observe("courses.enroll.lock", func() error {
		return tx.QueryRow(ctx, `SELECT id FROM courses WHERE id = $1 FOR UPDATE`, courseID).Scan(&dummy)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = course.ErrNotFound
		}
		return
	}

	var exists bool

	err = r.observe("courses.enroll.duplicate_check", func() error {
		return tx.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM enrollments
			WHERE course_id = $1 AND student_id = $2
		)`, courseID, studentID).Scan(&exists)
	})

	if err != nil {
		return
	}

	if exists {
		err = course.ErrAlreadyEnrolled
		return
	}

	err = r.observe("courses.enroll.insert", func() error {
		_, e := tx.Exec(ctx, `
			INSERT INTO enrollments (course_id, student_id, created_at)
			VALUES ($1,$2,$3)
		`, courseID, studentID, time.Now().UTC())
		return e
	})

	if err != nil {
		switch {
		case IsUniqueViolation(err):
			err = course.ErrAlreadyEnrolled
		case IsForeignKeyViolation(err):
			// the course row is locked, so the only dangling reference left
			// is the student
			err = course.ErrStudentNotFound
		}
		return
	}

	err = tx.Commit(ctx)

	if err != nil {
		return
	}

	return r.GetByID(ctx, courseID)
}
