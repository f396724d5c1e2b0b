package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/ports"
	json "github.com/eleven-am/warden/internal/xjson"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleSaveWorkflow(c echo.Context) error {
	var workflow domain.Workflow
	if err := c.Bind(&workflow); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_body", Detail: err.Error()})
	}
	if err := s.manager.SaveWorkflow(c.Request().Context(), &workflow); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, workflow)
}

func (s *Server) handleGetWorkflow(c echo.Context) error {
	workflow, err := s.manager.GetWorkflow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, workflow)
}

func (s *Server) handleSavePolicy(c echo.Context) error {
	var policy domain.Policy
	if err := c.Bind(&policy); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_body", Detail: err.Error()})
	}
	if err := s.manager.SavePolicy(c.Request().Context(), &policy); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, policy)
}

func (s *Server) handleSaveTool(c echo.Context) error {
	var tool domain.Tool
	if err := c.Bind(&tool); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_body", Detail: err.Error()})
	}
	if err := s.manager.SaveTool(c.Request().Context(), &tool); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, tool)
}

func (s *Server) handleSaveContract(c echo.Context) error {
	var contract domain.AgentContract
	if err := c.Bind(&contract); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_body", Detail: err.Error()})
	}
	if err := s.manager.SaveAgentContract(c.Request().Context(), &contract); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, contract)
}

func (s *Server) handleStartRun(c echo.Context) error {
	var req ports.StartRunRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_body", Detail: err.Error()})
	}
	run, err := s.manager.StartRun(c.Request().Context(), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, run)
}

func (s *Server) handleGetRun(c echo.Context) error {
	run, err := s.manager.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) handleResumeRun(c echo.Context) error {
	var approval map[string]interface{}
	if err := c.Bind(&approval); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_body", Detail: err.Error()})
	}
	run, err := s.manager.ResumeRun(c.Request().Context(), c.Param("id"), approval)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) handleCancelRun(c echo.Context) error {
	run, err := s.manager.CancelRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) handleListSteps(c echo.Context) error {
	steps, err := s.manager.ListRunSteps(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, steps)
}

func (s *Server) handleGetChain(c echo.Context) error {
	runID := c.Param("id")
	chain, err := s.manager.BuildChain(c.Request().Context(), runID)
	if err != nil {
		return s.writeError(c, err)
	}

	if c.QueryParam("format") == "text" {
		rendered, err := s.manager.RenderChain(c.Request().Context(), runID)
		if err != nil {
			return s.writeError(c, err)
		}
		return c.String(http.StatusOK, rendered)
	}
	return c.JSON(http.StatusOK, chain)
}

// handleStreamEvents replays the run's persisted events, then streams live
// ones over SSE until the client disconnects.
func (s *Server) handleStreamEvents(c echo.Context) error {
	runID := c.Param("id")
	ctx := c.Request().Context()

	if _, err := s.manager.GetRun(ctx, runID); err != nil {
		return s.writeError(c, err)
	}

	live, cancel := s.manager.SubscribeRunEvents(runID)
	defer cancel()

	// Subscribe before replaying so nothing lands in the gap. Duplicates
	// across the boundary are possible; consumers key on event id.
	history, err := s.manager.ListRunEvents(ctx, runID)
	if err != nil {
		return s.writeError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	for _, event := range history {
		if err := writeSSE(c, &event); err != nil {
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-live:
			if !ok {
				return nil
			}
			if err := writeSSE(c, &event); err != nil {
				return nil
			}
		}
	}
}

func writeSSE(c echo.Context, event *domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event.Kind, data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

func (s *Server) writeError(c echo.Context, err error) error {
	switch {
	case domain.IsNotFound(err):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Detail: err.Error()})
	case domain.IsPolicyDenied(err):
		return c.JSON(http.StatusForbidden, errorResponse{Error: "policy_denied", Detail: err.Error()})
	case domain.IsInvalidInput(err), domain.IsBadRequest(err):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Detail: err.Error()})
	case domain.IsBudgetExceeded(err):
		return c.JSON(http.StatusPaymentRequired, errorResponse{Error: "budget_exceeded", Detail: err.Error()})
	default:
		s.logger.Error("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err.Error())
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal", Detail: err.Error()})
	}
}
