package core

import (
	"errors"
	"net/http"
)

// Problem captures the information returned in an RFC 7807 error response.
type Problem struct {
	Type     string
	Title    string
	Status   int
	Detail   string
	Instance string
	Extras   map[string]any
}

// NormalizeProblem ensures the provided problem includes canonical defaults.
func NormalizeProblem(problem *Problem) *Problem {
	if problem == nil {
		problem = &Problem{}
	}
	if problem.Status == 0 {
		problem.Status = http.StatusInternalServerError
	}
	if problem.Title == "" {
		problem.Title = http.StatusText(problem.Status)
	}
	if problem.Type == "" {
		problem.Type = "about:blank"
	}
	return problem
}

// BuildProblemBody assembles the serialized representation of the problem.
// Extras ride along as top-level members unless they collide with a reserved
// RFC 7807 key.
func BuildProblemBody(problem *Problem) map[string]any {
	body := map[string]any{
		"status": problem.Status,
		"title":  problem.Title,
		"type":   problem.Type,
	}
	if problem.Detail != "" {
		body["detail"] = problem.Detail
	}
	if problem.Instance != "" {
		body["instance"] = problem.Instance
	}
	for key, value := range problem.Extras {
		if !isReservedProblemKey(key) {
			body[key] = value
		}
	}
	return body
}

func isReservedProblemKey(key string) bool {
	switch key {
	case "status", "title", "detail", "type", "instance":
		return true
	default:
		return false
	}
}

// ProblemFromError maps an engine error to a problem with a suitable HTTP
// status. Error codes carried in a core.Error drive the mapping; everything
// else reports as an internal error.
func ProblemFromError(err error) *Problem {
	problem := &Problem{Detail: err.Error()}
	var coreErr *Error
	if errors.As(err, &coreErr) {
		problem.Extras = map[string]any{"code": coreErr.Code}
		switch coreErr.Code {
		case ErrCodeValidation:
			problem.Status = http.StatusUnprocessableEntity
		case ErrCodeNotFound:
			problem.Status = http.StatusNotFound
		case ErrCodeBadRequest:
			problem.Status = http.StatusBadRequest
		default:
			problem.Status = http.StatusInternalServerError
		}
	}
	return NormalizeProblem(problem)
}
