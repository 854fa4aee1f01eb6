package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cwkhub/internal/domain"
	"cwkhub/internal/engine"
	"cwkhub/internal/repo"
	"cwkhub/internal/scheduling"
)

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerScheduling(api huma.API, e engine.Engine, m *Metrics) {
	huma.Register(api, huma.Operation{
		OperationID: "check-availability",
		Method:      http.MethodPost,
		Path:        "/availability/check",
		Summary:     "Check whether an educator is free for a slot",
		Tags:        []string{"scheduling"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body AvailabilityRequest `json:"body"`
	}) (*struct {
		Body scheduling.Availability `json:"body"`
	}, error) {
		av, err := e.CheckAvailability(ctx, scheduling.SlotQuery{
			EducatorID:      input.Body.EducatorID,
			Date:            input.Body.Date,
			StartTime:       input.Body.StartTime,
			EndTime:         input.Body.EndTime,
			ExcludeInviteID: input.Body.ExcludeInviteID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		m.observe(av)
		return &struct {
			Body scheduling.Availability `json:"body"`
		}{Body: av}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-invite",
		Method:        http.MethodPost,
		Path:          "/invites",
		Summary:       "Propose a coaching invite",
		Tags:          []string{"scheduling"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateInviteRequest `json:"body"`
	}) (*struct {
		Body domain.CoachingInvite `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.CreateInvite(ctx, engine.InviteCreateOptions{
			EducatorID:  input.Body.EducatorID,
			CreatedByID: actorID,
			Date:        input.Body.Date,
			StartTime:   input.Body.StartTime,
			EndTime:     input.Body.EndTime,
			Title:       input.Body.Title,
			Notes:       input.Body.Notes,
		})
		if err != nil {
			observeRejection(m, err)
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CoachingInvite `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invites",
		Method:      http.MethodGet,
		Path:        "/invites",
		Summary:     "List coaching invites",
		Tags:        []string{"scheduling"},
	}, func(ctx context.Context, input *struct {
		EducatorID string `query:"educator_id"`
		Date       string `query:"date"`
		Status     string `query:"status" enum:"pending,accepted,declined"`
	}) (*struct {
		Body []domain.CoachingInvite `json:"body"`
	}, error) {
		items, err := e.ListInvites(ctx, repo.InviteFilters{
			EducatorID: input.EducatorID,
			Date:       input.Date,
			Status:     input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.CoachingInvite `json:"body"`
		}{Body: orEmpty(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reschedule-invite",
		Method:      http.MethodPatch,
		Path:        "/invites/{id}",
		Summary:     "Move a coaching invite to a new slot",
		Tags:        []string{"scheduling"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body RescheduleInviteRequest `json:"body"`
	}) (*struct {
		Body domain.CoachingInvite `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.RescheduleInvite(ctx, engine.InviteRescheduleOptions{
			ID:        input.ID,
			Date:      input.Body.Date,
			StartTime: input.Body.StartTime,
			EndTime:   input.Body.EndTime,
			ActorID:   actorID,
		})
		if err != nil {
			observeRejection(m, err)
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CoachingInvite `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "respond-invite",
		Method:      http.MethodPost,
		Path:        "/invites/{id}/respond",
		Summary:     "Accept or decline a pending invite",
		Tags:        []string{"scheduling"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body RespondInviteRequest `json:"body"`
	}) (*struct {
		Body domain.CoachingInvite `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.RespondInvite(ctx, input.ID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CoachingInvite `json:"body"`
		}{Body: inv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-term",
		Method:        http.MethodPost,
		Path:          "/terms",
		Summary:       "Create term",
		Tags:          []string{"scheduling"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTermRequest `json:"body"`
	}) (*struct {
		Body domain.Term `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTerm(ctx, engine.TermCreateOptions{
			ID:        input.Body.ID,
			Name:      input.Body.Name,
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Term `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-terms",
		Method:      http.MethodGet,
		Path:        "/terms",
		Summary:     "List terms",
		Tags:        []string{"scheduling"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Term `json:"body"`
	}, error) {
		items, err := e.Repo.ListTerms(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Term `json:"body"`
		}{Body: orEmpty(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-class",
		Method:        http.MethodPost,
		Path:          "/classes",
		Summary:       "Create class",
		Tags:          []string{"scheduling"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateClassRequest `json:"body"`
	}) (*struct {
		Body domain.Class `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateClass(ctx, engine.ClassCreateOptions{
			ID:            input.Body.ID,
			Name:          input.Body.Name,
			TermID:        input.Body.TermID,
			LearningTrack: input.Body.LearningTrack,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Class `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-classes",
		Method:      http.MethodGet,
		Path:        "/classes",
		Summary:     "List classes",
		Tags:        []string{"scheduling"},
	}, func(ctx context.Context, input *struct {
		TermID string `query:"term_id"`
	}) (*struct {
		Body []domain.Class `json:"body"`
	}, error) {
		items, err := e.Repo.ListClasses(ctx, input.TermID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Class `json:"body"`
		}{Body: orEmpty(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Schedule a class session",
		Tags:          []string{"scheduling"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateSessionRequest `json:"body"`
	}) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateSession(ctx, engine.SessionCreateOptions{
			ClassID:              input.Body.ClassID,
			Date:                 input.Body.Date,
			StartTime:            input.Body.StartTime,
			EndTime:              input.Body.EndTime,
			LeadEducatorID:       input.Body.LeadEducatorID,
			AssistantEducatorIDs: input.Body.AssistantEducatorIDs,
			DurationHours:        input.Body.DurationHours,
			ActorID:              actorID,
			Force:                input.Body.Force,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List sessions",
		Tags:        []string{"scheduling"},
	}, func(ctx context.Context, input *struct {
		TermID     string `query:"term_id"`
		ClassID    string `query:"class_id"`
		Date       string `query:"date"`
		EducatorID string `query:"educator_id" doc:"Matches lead or assistant"`
	}) (*struct {
		Body []domain.Session `json:"body"`
	}, error) {
		items, err := e.ListSessions(ctx, repo.SessionFilters{
			TermID:     input.TermID,
			ClassID:    input.ClassID,
			Date:       input.Date,
			EducatorID: input.EducatorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Session `json:"body"`
		}{Body: orEmpty(items)}, nil
	})
}

func observeRejection(m *Metrics, err error) {
	var ue *engine.UnavailableError
	if errors.As(err, &ue) {
		m.observe(ue.Availability)
	}
}
