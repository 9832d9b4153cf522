package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meshflow/meshflow/engine/core"
	"github.com/meshflow/meshflow/engine/executor"
	"github.com/meshflow/meshflow/engine/sample"
	"github.com/meshflow/meshflow/engine/schema"
	"github.com/meshflow/meshflow/engine/workflow"
	"github.com/meshflow/meshflow/pkg/version"
)

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)
	api := r.Group("/api/v0")
	api.POST("/executions", s.handleExecute)
	api.GET("/executions", s.handleHistory)
	api.POST("/workflows/validate", s.handleValidate)
	api.POST("/schemas/sample", s.handleSample)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"status":  "healthy",
			"version": version.Get().Version,
			"mode":    s.cfg.Runtime.Mode,
		},
		"message": "Success",
	})
}

// executionRequest is the body of POST /api/v0/executions. The workflow
// document rides along raw so it decodes through the same path as file
// loading.
type executionRequest struct {
	Workflow json.RawMessage `json:"workflow"`
	Input    core.Output     `json:"input,omitempty"`
	Mode     string          `json:"mode,omitempty"`
	Seed     *int64          `json:"seed,omitempty"`
}

func (s *Server) handleExecute(c *gin.Context) {
	req := &executionRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		RespondProblem(c, &core.Problem{Status: http.StatusBadRequest, Detail: "invalid request body: " + err.Error()})
		return
	}
	if len(req.Workflow) == 0 {
		RespondProblem(c, &core.Problem{Status: http.StatusBadRequest, Detail: "workflow document is required"})
		return
	}
	wf, err := workflow.LoadBytes(req.Workflow)
	if err != nil {
		RespondProblem(c, &core.Problem{Status: http.StatusBadRequest, Detail: err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := wf.Validate(ctx); err != nil {
		RespondProblem(c, &core.Problem{Status: http.StatusUnprocessableEntity, Detail: err.Error()})
		return
	}
	if err := wf.ValidateTypes(ctx, s.registry.Has); err != nil {
		RespondProblem(c, &core.Problem{Status: http.StatusUnprocessableEntity, Detail: err.Error()})
		return
	}
	opts, err := s.runOptions(req)
	if err != nil {
		RespondProblem(c, &core.Problem{Status: http.StatusBadRequest, Detail: err.Error()})
		return
	}
	result, err := s.executor.Execute(ctx, wf, req.Input, opts...)
	if err != nil {
		respondExecutionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result, "message": "Success"})
}

func (s *Server) runOptions(req *executionRequest) ([]executor.Option, error) {
	var opts []executor.Option
	switch req.Mode {
	case "":
	case "live":
		opts = append(opts, executor.WithMode(executor.ModeLive))
	case "dry-run":
		opts = append(opts, executor.WithMode(executor.ModeDryRun))
	default:
		return nil, fmt.Errorf("unknown execution mode %q", req.Mode)
	}
	if req.Seed != nil {
		opts = append(opts, executor.WithSampleSeed(*req.Seed))
	}
	return opts, nil
}

func respondExecutionError(c *gin.Context, err error) {
	var abort *executor.WorkflowAbortError
	if errors.As(err, &abort) {
		RespondProblem(c, &core.Problem{
			Status: http.StatusInternalServerError,
			Title:  "Workflow Execution Failed",
			Detail: err.Error(),
			Extras: map[string]any{
				"executionId": string(abort.ExecutionID),
				"nodeId":      abort.NodeID,
			},
		})
		return
	}
	RespondProblem(c, &core.Problem{Status: http.StatusUnprocessableEntity, Detail: err.Error()})
}

func (s *Server) handleHistory(c *gin.Context) {
	records := s.executor.History().Records()
	c.JSON(http.StatusOK, gin.H{"data": records, "message": "Success"})
}

func (s *Server) handleValidate(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		RespondProblem(c, &core.Problem{Status: http.StatusBadRequest, Detail: "failed to read request body: " + err.Error()})
		return
	}
	if len(data) == 0 {
		RespondProblem(c, &core.Problem{Status: http.StatusBadRequest, Detail: "workflow document is required"})
		return
	}
	wf, err := workflow.LoadBytes(data)
	if err != nil {
		RespondProblem(c, &core.Problem{Status: http.StatusBadRequest, Detail: err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := wf.Validate(ctx); err != nil {
		RespondProblem(c, &core.Problem{Status: http.StatusUnprocessableEntity, Detail: err.Error()})
		return
	}
	if err := wf.ValidateTypes(ctx, s.registry.Has); err != nil {
		RespondProblem(c, &core.Problem{Status: http.StatusUnprocessableEntity, Detail: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"valid":      true,
			"workflowId": wf.ID,
			"nodes":      len(wf.Nodes),
		},
		"message": "Success",
	})
}

// sampleRequest is the body of POST /api/v0/schemas/sample.
type sampleRequest struct {
	Schema schema.Schema `json:"schema"`
	Seed   *int64        `json:"seed,omitempty"`
}

func (s *Server) handleSample(c *gin.Context) {
	req := &sampleRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		RespondProblem(c, &core.Problem{Status: http.StatusBadRequest, Detail: "invalid request body: " + err.Error()})
		return
	}
	if req.Schema == nil {
		RespondProblem(c, &core.Problem{Status: http.StatusBadRequest, Detail: "schema is required"})
		return
	}
	var gen *sample.Generator
	if req.Seed != nil {
		gen = sample.NewGenerator(sample.WithSeed(*req.Seed))
	} else {
		gen = sample.NewGenerator()
	}
	value, err := gen.FromSchema(req.Schema)
	if err != nil {
		RespondProblem(c, &core.Problem{Status: http.StatusUnprocessableEntity, Detail: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"sample": value}, "message": "Success"})
}
