package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wenliu-dev/coursehub/internal/actorctx"
	"github.com/wenliu-dev/coursehub/internal/authz"
	"github.com/wenliu-dev/coursehub/internal/cache"
	"github.com/wenliu-dev/coursehub/internal/config"
	"github.com/wenliu-dev/coursehub/internal/domain/course"
	"github.com/wenliu-dev/coursehub/internal/domain/user"
	"github.com/wenliu-dev/coursehub/internal/http/middlewares"
	"github.com/wenliu-dev/coursehub/internal/notify"
	"github.com/wenliu-dev/coursehub/internal/observability"
	"github.com/wenliu-dev/coursehub/internal/utils"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	listCacheTTL     = 30 * time.Second
)

type CoursesStore interface {
	Create(ctx context.Context, req course.CreateCourseRequest) (course.Course, error)
	GetByID(ctx context.Context, id string) (course.Course, error)
	List(ctx context.Context, filter course.ListFilter) ([]course.Course, error)
	ListCursor(ctx context.Context, limit int, afterCreatedAt time.Time, afterID string) ([]course.Course, bool, error)
	Update(ctx context.Context, id string, req course.UpdateCourseRequest) (course.Course, error)
	Delete(ctx context.Context, id string) error
	Enroll(ctx context.Context, courseID, studentID string) (course.Course, error)
}

type CoursesHandler struct {
	repo     CoursesStore
	cache    *cache.Client // nil disables caching
	prom     *observability.Prom
	notifier notify.Notifier
	log      *slog.Logger
}

func NewCoursesHandler(repo CoursesStore, cacheClient *cache.Client, prom *observability.Prom, notifier notify.Notifier, log *slog.Logger) *CoursesHandler {
	return &CoursesHandler{
		repo:     repo,
		cache:    cacheClient,
		prom:     prom,
		notifier: notifier,
		log:      log,
	}
}

type listCoursesResponse struct {
	Items      []course.Course `json:"items"`
	Count      int             `json:"count"`
	NextCursor *string         `json:"nextCursor,omitempty"`
}

// ListCourses returns the paginated catalogue. The first page is served from
// redis when possible; deeper pages always hit the store.
func (h *CoursesHandler) ListCourses(ctx *gin.Context) {
	limit := parseLimit(ctx.Query("limit"))
	cursor := ctx.Query("cursor")

	var afterCreatedAt time.Time
	var afterID string

	if cursor != "" {
		decoded, err := utils.DecodeCourseCursor(cursor)
		if err != nil {
			RespondBadRequest(ctx, "Invalid cursor", nil)
			return
		}
		afterCreatedAt = decoded.CreatedAt
		afterID = decoded.ID
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	cacheKey := utils.BuildCourseListCacheKey(limit, cursor)

	if h.cache != nil && cursor == "" {
		var cached listCoursesResponse
		hit, err := h.cache.GetJSON(cctx, cacheKey, &cached)
		switch {
		case err != nil:
			h.prom.ObserveCache("courses_list", "error")
		case hit:
			h.prom.ObserveCache("courses_list", "hit")
			RespondJSONWithETag(ctx, http.StatusOK, cached)
			return
		default:
			h.prom.ObserveCache("courses_list", "miss")
		}
	}

	items, hasMore, err := h.repo.ListCursor(cctx, limit, afterCreatedAt, afterID)

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "course list failed", "err", err)
		RespondInternal(ctx, "Could not list courses")
		return
	}

	resp := listCoursesResponse{
		Items: items,
		Count: len(items),
	}

	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		next, err := utils.EncodeCourseCursor(last.CreatedAt, last.ID)
		if err == nil {
			resp.NextCursor = &next
		}
	}

	if h.cache != nil && cursor == "" {
		if err := h.cache.SetJSON(cctx, cacheKey, resp, listCacheTTL); err != nil {
			h.prom.ObserveCache("courses_list", "error")
		}
	}

	RespondJSONWithETag(ctx, http.StatusOK, resp)
}

func (h *CoursesHandler) GetCourseByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "course id must be a valid UUID", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	c, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			RespondNotFound(ctx, "Course not found")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "course fetch failed", "err", err)
		RespondInternal(ctx, "Could not fetch course")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, c)
}

// The three collection lookups below intentionally return an empty list for
// an unknown id or title instead of a 404.

func (h *CoursesHandler) ListByInstructor(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "instructor id must be a valid UUID", nil)
		return
	}

	h.listFiltered(ctx, course.ListFilter{InstructorID: &id})
}

func (h *CoursesHandler) ListByStudent(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "student id must be a valid UUID", nil)
		return
	}

	h.listFiltered(ctx, course.ListFilter{StudentID: &id})
}

func (h *CoursesHandler) FindByName(ctx *gin.Context) {
	name := ctx.Param("name")

	h.listFiltered(ctx, course.ListFilter{Title: &name})
}

func (h *CoursesHandler) listFiltered(ctx *gin.Context, filter course.ListFilter) {
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	filter.Limit = maxListLimit

	items, err := h.repo.List(cctx, filter)

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "course list failed", "err", err)
		RespondInternal(ctx, "Could not list courses")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *CoursesHandler) CreateCourse(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)
	role, _ := middlewares.RoleFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	if !authz.CanPublishCourse(user.Role(role)) {
		RespondForbidden(ctx, "Only instructors can publish new courses. Please log in with an instructor account.")
		return
	}

	var req course.CreateCourseRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// ownership comes from the verified identity
	req.InstructorID = userID

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	c, err := h.repo.Create(actorctx.WithUserID(cctx, userID), req)

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "course create failed", "err", err)
		RespondInternal(ctx, "Could not create course")
		return
	}

	h.invalidateListCache(cctx)

	ctx.JSON(http.StatusCreated, c)
}

func (h *CoursesHandler) Enroll(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "course id must be a valid UUID", nil)
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	c, err := h.repo.Enroll(actorctx.WithUserID(cctx, userID), id, userID)

	if err != nil {
		switch {
		case errors.Is(err, course.ErrNotFound):
			RespondNotFound(ctx, "Course not found")
		case errors.Is(err, course.ErrAlreadyEnrolled):
			RespondConflict(ctx, "already_enrolled", "You are already enrolled in this course.")
		case errors.Is(err, course.ErrStudentNotFound):
			RespondUnAuthorized(ctx, "unauthorized", "Account no longer exists.")
		default:
			h.log.ErrorContext(ctx.Request.Context(), "enroll failed", "err", err)
			RespondInternal(ctx, "Could not enroll in course")
		}
		return
	}

	h.invalidateListCache(cctx)

	// confirmation is best-effort; a down provider never fails the enroll
	if h.notifier != nil {
		email, _ := middlewares.EmailFromContext(ctx)

		err := h.notifier.SendEnrollmentConfirmation(actorctx.WithUserID(ctx.Request.Context(), userID), notify.EnrollmentConfirmationInput{
			Email:    email,
			CourseID: c.ID,
			Title:    c.Title,
		})

		if err != nil {
			h.log.WarnContext(ctx.Request.Context(), "enrollment confirmation failed", "err", err, "course_id", c.ID)
		}
	}

	ctx.JSON(http.StatusOK, c)
}

func (h *CoursesHandler) UpdateCourse(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "course id must be a valid UUID", nil)
		return
	}

	var req course.UpdateCourseRequest

	if !BindJSON(ctx, &req) {
		return
	}

	userID, role, ok := requireIdentity(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	existing, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			RespondNotFound(ctx, "Course not found")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "course fetch failed", "err", err)
		RespondInternal(ctx, "Could not update course")
		return
	}

	if !authz.CanMutateCourse(user.Role(role), userID, existing.Instructor.ID) {
		RespondForbidden(ctx, "Only the course instructor or an admin can edit this course.")
		return
	}

	updated, err := h.repo.Update(actorctx.WithUserID(cctx, userID), id, req)

	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			RespondNotFound(ctx, "Course not found")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "course update failed", "err", err)
		RespondInternal(ctx, "Could not update course")
		return
	}

	h.invalidateListCache(cctx)

	ctx.JSON(http.StatusOK, updated)
}

func (h *CoursesHandler) DeleteCourse(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "course id must be a valid UUID", nil)
		return
	}

	userID, role, ok := requireIdentity(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	existing, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			RespondNotFound(ctx, "Course not found")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "course fetch failed", "err", err)
		RespondInternal(ctx, "Could not delete course")
		return
	}

	if !authz.CanMutateCourse(user.Role(role), userID, existing.Instructor.ID) {
		RespondForbidden(ctx, "Only the course instructor or an admin can delete this course.")
		return
	}

	err = h.repo.Delete(actorctx.WithUserID(cctx, userID), id)

	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			RespondNotFound(ctx, "Course not found")
			return
		}
		h.log.ErrorContext(ctx.Request.Context(), "course delete failed", "err", err)
		RespondInternal(ctx, "Could not delete course")
		return
	}

	h.invalidateListCache(cctx)

	ctx.Status(http.StatusNoContent)
}

func requireIdentity(ctx *gin.Context) (userID, role string, ok bool) {
	userID, idOk := middlewares.UserIDFromContext(ctx)
	role, _ = middlewares.RoleFromContext(ctx)

	if !idOk || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return "", "", false
	}

	return userID, role, true
}

// invalidateListCache drops the default first page. Other limits age out by
// TTL.
func (h *CoursesHandler) invalidateListCache(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, utils.FirstPageCacheKey(defaultListLimit)); err != nil {
		h.prom.ObserveCache("courses_list", "error")
	}
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultListLimit
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
