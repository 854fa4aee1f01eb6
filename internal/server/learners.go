package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cwkhub/internal/domain"
	"cwkhub/internal/engine"
	"cwkhub/internal/repo"
)

func registerLearners(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "enroll",
		Method:        http.MethodPost,
		Path:          "/enrollments",
		Summary:       "Enrol a learner in a class",
		Tags:          []string{"learners"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body EnrollRequest `json:"body"`
	}) (*struct {
		Body domain.ClassEnrollment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		en, err := e.Enroll(ctx, engine.EnrollOptions{
			LearnerID: input.Body.LearnerID,
			ClassID:   input.Body.ClassID,
			ActorID:   actorID,
			Force:     input.Body.Force,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ClassEnrollment `json:"body"`
		}{Body: en}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-enrollments",
		Method:      http.MethodGet,
		Path:        "/enrollments",
		Summary:     "List enrolments",
		Tags:        []string{"learners"},
	}, func(ctx context.Context, input *struct {
		LearnerID string `query:"learner_id"`
		ClassID   string `query:"class_id"`
		TermID    string `query:"term_id"`
		Status    string `query:"status" enum:"active,dropped,completed"`
	}) (*struct {
		Body []domain.ClassEnrollment `json:"body"`
	}, error) {
		items, err := e.ListEnrollments(ctx, repo.EnrollmentFilters{
			LearnerID: input.LearnerID,
			ClassID:   input.ClassID,
			TermID:    input.TermID,
			Status:    input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ClassEnrollment `json:"body"`
		}{Body: orEmpty(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-enrollment-conflict",
		Method:      http.MethodPost,
		Path:        "/enrollments/conflict",
		Summary:     "Name the class that would clash with a new enrolment",
		Tags:        []string{"learners"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body EnrollmentConflictRequest `json:"body"`
	}) (*struct {
		Body EnrollmentConflictResponse `json:"body"`
	}, error) {
		name, conflict, err := e.CheckEnrollmentConflict(ctx, input.Body.LearnerID, input.Body.ClassID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EnrollmentConflictResponse `json:"body"`
		}{Body: EnrollmentConflictResponse{Conflict: conflict, ClassName: name}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-enrollment",
		Method:      http.MethodPatch,
		Path:        "/enrollments/{id}",
		Summary:     "Change enrolment status",
		Tags:        []string{"learners"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body UpdateEnrollmentRequest `json:"body"`
	}) (*struct {
		Body domain.ClassEnrollment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		en, err := e.SetEnrollmentStatus(ctx, input.ID, input.Body.Status, actorID, input.Body.Force)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ClassEnrollment `json:"body"`
		}{Body: en}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-enrollment",
		Method:        http.MethodDelete,
		Path:          "/enrollments/{id}",
		Summary:       "Remove an enrolment",
		Tags:          []string{"learners"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveEnrollment(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-attendance",
		Method:      http.MethodPost,
		Path:        "/attendance",
		Summary:     "Record a learner's attendance for a session",
		Tags:        []string{"learners"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		Body RecordAttendanceRequest `json:"body"`
	}) (*struct {
		Body domain.AttendanceRecord `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.RecordAttendance(ctx, engine.AttendanceOptions{
			SessionID: input.Body.SessionID,
			LearnerID: input.Body.LearnerID,
			Status:    input.Body.Status,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AttendanceRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "learner-attendance",
		Method:      http.MethodGet,
		Path:        "/learners/{id}/attendance",
		Summary:     "Attendance percentage for a learner in a class",
		Tags:        []string{"learners"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		ClassID string `query:"class_id" required:"true"`
	}) (*struct {
		Body engine.AttendanceSummary `json:"body"`
	}, error) {
		sum, err := e.AttendancePercentage(ctx, input.ID, input.ClassID)
		if err != nil {
			return nil, handleError(err)
		}
		sum.Records = orEmpty(sum.Records)
		return &struct {
			Body engine.AttendanceSummary `json:"body"`
		}{Body: sum}, nil
	})
}
