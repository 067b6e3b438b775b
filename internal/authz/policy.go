package authz

import "github.com/wenliu-dev/coursehub/internal/domain/user"

// CanMutateCourse decides whether the requester may update or delete a course.
// Owner or admin, nothing else.
func CanMutateCourse(requesterRole user.Role, requesterID, instructorID string) bool {
	if requesterRole == user.RoleAdmin {
		return true
	}
	return requesterID != "" && requesterID == instructorID
}

// CanPublishCourse decides whether the requester may create courses.
// Students cannot publish.
func CanPublishCourse(requesterRole user.Role) bool {
	return requesterRole == user.RoleInstructor || requesterRole == user.RoleAdmin
}
