package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	swaperr "github.com/ggonzalez94/swapd/internal/errors"
	"github.com/ggonzalez94/swapd/internal/journal"
	"github.com/ggonzalez94/swapd/internal/swap"
	"github.com/ggonzalez94/swapd/internal/trace"
	"github.com/ggonzalez94/swapd/internal/version"
)

// SwapRunner executes one swap request to a terminal state.
type SwapRunner interface {
	Execute(ctx context.Context, req swap.Request, rec *trace.Recorder) (*swap.Result, error)
}

// AttemptStore is the journal surface the read endpoints need. Nil when
// journaling is disabled.
type AttemptStore interface {
	Save(attempt journal.Attempt) error
	Get(attemptID string) (journal.Attempt, error)
	List(status string, limit int) ([]journal.Attempt, error)
}

// Handlers holds the dependencies of all API endpoints.
type Handlers struct {
	Swapper SwapRunner
	Journal AttemptStore
	Logger  *logrus.Logger
	DevMode bool
}

func (h *Handlers) log() logrus.FieldLogger {
	if h.Logger != nil {
		return h.Logger
	}
	return logrus.StandardLogger()
}

// Health reports liveness.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true, Version: version.Version})
}

// Swap runs the full orchestration for one request. Validation failures
// are 422, quote/signer-configuration failures are 400, execution-stage
// failures are 500; every failure body carries the partial trace.
func (h *Handlers) Swap(c echo.Context) error {
	var req SwapRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid json body", Code: http.StatusBadRequest})
	}

	attemptID := journal.NewAttemptID()
	rec := trace.NewWithLogger(h.log().WithField("attemptId", attemptID))

	result, err := h.Swapper.Execute(c.Request().Context(), swap.Request{
		Wallet:       req.Wallet,
		TokenFrom:    req.TokenFrom,
		TokenTo:      req.TokenTo,
		AmountWei:    req.AmountWei,
		SlippageBps:  req.SlippageBps,
		ExcludeDEXs:  req.ExcludeDEXs,
		UnsignedOnly: req.UnsignedOnly,
	}, rec)

	if err != nil {
		h.journalAttempt(attemptID, req, nil, rec, err)
		h.log().WithFields(logrus.Fields{
			"attemptId": attemptID,
			"kind":      errorKind(err),
		}).Warn("swap attempt failed")

		status := swaperr.HTTPStatus(err)
		resp := ErrorResponse{
			Error: err.Error(),
			Kind:  errorKind(err),
			Code:  status,
			Trace: rec.Entries(),
		}
		// Raw upstream payloads are only exposed in dev mode; the trace
		// already records them for the journal.
		if h.DevMode {
			if e, ok := swaperr.As(err); ok {
				resp.Details = e.Details
			}
		}
		return c.JSON(status, resp)
	}

	h.journalAttempt(attemptID, req, result, rec, nil)
	h.log().WithFields(logrus.Fields{
		"attemptId": attemptID,
		"mode":      result.Mode,
	}).Info("swap attempt completed")

	return c.JSON(http.StatusOK, SwapResponse{
		AttemptID:  attemptID,
		Mode:       result.Mode,
		DestAmount: result.DestAmount,
		TxData:     result.TxData,
		TxHash:     result.Hash,
		Block:      result.Block,
		TxStatus:   result.Status,
		Trace:      rec.Entries(),
	})
}

// Attempts lists journaled attempts, newest first. Optional status filter
// and limit (default 50, max 200).
func (h *Handlers) Attempts(c echo.Context) error {
	if h.Journal == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "journal disabled", Code: http.StatusNotFound})
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 200", Code: http.StatusBadRequest})
		}
		limit = n
	}
	status := c.QueryParam("status")
	if status != "" && status != journal.StatusSucceeded && status != journal.StatusFailed {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "status must be succeeded or failed", Code: http.StatusBadRequest})
	}

	items, err := h.Journal.List(status, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to list attempts", Code: http.StatusInternalServerError})
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Attempt fetches one journaled attempt by id.
func (h *Handlers) Attempt(c echo.Context) error {
	if h.Journal == nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "journal disabled", Code: http.StatusNotFound})
	}
	attempt, err := h.Journal.Get(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "attempt not found", Code: http.StatusNotFound})
	}
	return c.JSON(http.StatusOK, attempt)
}

func (h *Handlers) journalAttempt(attemptID string, req SwapRequest, result *swap.Result, rec *trace.Recorder, execErr error) {
	if h.Journal == nil {
		return
	}
	attempt := journal.Attempt{
		AttemptID:   attemptID,
		Wallet:      req.Wallet,
		SrcToken:    req.TokenFrom,
		DestToken:   req.TokenTo,
		SrcAmount:   req.AmountWei,
		Trace:       rec.Entries(),
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if execErr != nil {
		attempt.Status = journal.StatusFailed
		attempt.Error = execErr.Error()
		if req.UnsignedOnly {
			attempt.Mode = swap.ModeUnsigned
		} else {
			attempt.Mode = swap.ModeSigned
		}
	} else {
		attempt.Status = journal.StatusSucceeded
		attempt.Mode = result.Mode
		attempt.DestAmount = result.DestAmount
		attempt.TxHash = result.Hash
	}
	if err := h.Journal.Save(attempt); err != nil {
		// Journaling is best effort; a write failure never fails the swap.
		h.log().WithError(err).WithField("attemptId", attemptID).Warn("failed to journal attempt")
	}
}

func errorKind(err error) string {
	if e, ok := swaperr.As(err); ok {
		return string(e.Kind)
	}
	return string(swaperr.KindInternal)
}
