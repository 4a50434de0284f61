package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"scan-licences/internal/checkin"
	"scan-licences/internal/enrich"
	"scan-licences/internal/model"
)

// Submitter runs one scan through the check-in pipeline.
type Submitter interface {
	Submit(ctx context.Context, sessionID int64, rawURL string) checkin.Result
}

type ScanHandler struct{ pipeline Submitter }

func NewScanHandler(pipeline Submitter) *ScanHandler { return &ScanHandler{pipeline: pipeline} }

var outcomeStatus = map[checkin.Outcome]int{
	checkin.Recorded:           http.StatusCreated,
	checkin.Duplicate:          http.StatusConflict,
	checkin.InvalidInput:       http.StatusBadRequest,
	checkin.EnrichmentNotFound: http.StatusNotFound,
	checkin.PermissionDenied:   http.StatusForbidden,
	checkin.FKMissingMember:    http.StatusFailedDependency,
}

// POST /api/scan
func (h *ScanHandler) Scan(c *gin.Context) {
	var req model.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	res := h.pipeline.Submit(c.Request.Context(), req.SessionID, req.URL)

	status, ok := outcomeStatus[res.Outcome]
	if !ok {
		status = statusOf(res.Err)
	}
	out := model.ScanResponse{
		Outcome:   string(res.Outcome),
		LicenceNo: res.LicenceNo,
		Entry:     res.Entry,
		Message:   res.Message(),
	}
	if res.Profile != nil {
		out.Member = res.Profile.Member()
	}
	c.JSON(status, out)
}

// ProfileHandler serves the enrichment function to kiosks.
type ProfileHandler struct{ fn *enrich.Function }

func NewProfileHandler(fn *enrich.Function) *ProfileHandler { return &ProfileHandler{fn: fn} }

// POST /functions/profile
func (h *ProfileHandler) Lookup(c *gin.Context) {
	var req model.ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, model.ProfileResponse{Error: "invalid_url"})
		return
	}
	resp, err := h.fn.Lookup(c.Request.Context(), req.URL)
	var fe *enrich.FetchError
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, model.ProfileResponse{Error: "invalid_url", SourceURL: req.URL})
	case errors.As(err, &fe), errors.Is(err, model.ErrNetworkUnavailable):
		c.JSON(http.StatusBadGateway, model.ProfileResponse{Error: "fetch_failed", SourceURL: req.URL})
	case err != nil:
		c.JSON(http.StatusInternalServerError, model.ProfileResponse{Error: err.Error(), SourceURL: req.URL})
	case resp.LicenceNo == nil:
		c.JSON(http.StatusNotFound, model.ProfileResponse{Error: "not_found", SourceURL: resp.SourceURL})
	default:
		c.JSON(http.StatusOK, resp)
	}
}
