package course

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wenliu-dev/coursehub/internal/domain/user"
)

var (
	ErrNotFound        = errors.New("course not found")
	ErrAlreadyEnrolled = errors.New("already enrolled in course")

	// ErrStudentNotFound surfaces when an enrollment references a user row
	// that no longer exists (tokens are stateless and can outlive the account).
	ErrStudentNotFound = errors.New("student not found")
)

type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Instructor  user.Ref  `json:"instructor"`
	Students    []string  `json:"students"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// filters for listing; nil means "not filtered"
type ListFilter struct {
	InstructorID *string
	StudentID    *string
	Title        *string
	Limit        int
}

type CreateCourseRequest struct {
	// instructor comes from the verified identity, never from the body
	InstructorID string  `json:"-"`
	Title        string  `json:"title" binding:"required,min=3,max=120"`
	Description  string  `json:"description" binding:"required,max=2000"`
	Price        float64 `json:"price" binding:"min=0"`
}

type UpdateCourseRequest struct {
	Title       string  `json:"title" binding:"required,min=3,max=120"`
	Description string  `json:"description" binding:"required,max=2000"`
	Price       float64 `json:"price" binding:"min=0"`
}

func NewFromCreateRequest(req CreateCourseRequest) Course {
	now := time.Now().UTC()
	return Course{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Instructor:  user.Ref{ID: req.InstructorID},
		Students:    []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
