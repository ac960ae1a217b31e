package handler

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/chatvec/internal/pkg/errcode"
	"github.com/xxxsen/chatvec/internal/pkg/response"
	"github.com/xxxsen/chatvec/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query       string  `json:"query"`
	RequesterID string  `json:"requester_id"`
	Limit       int     `json:"limit"`
	ChatID      string  `json:"chat_id"`
	MinScore    float64 `json:"min_score"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	result, err := h.search.Search(c.Request.Context(), getUserID(c), service.SearchRequest{
		Query:       req.Query,
		RequesterID: req.RequesterID,
		Limit:       req.Limit,
		ChatID:      req.ChatID,
		MinScore:    req.MinScore,
	})
	if err != nil {
		// Interactive search surfaces provider/store failures directly, with
		// the classified verdict, never an empty result set.
		var clsErr *service.ClassifiedError
		if errors.As(err, &clsErr) {
			response.Error(c, errcode.ErrSearchFailed, fmt.Sprintf("search unavailable: %s", clsErr.Cls.Type))
			return
		}
		handleError(c, err)
		return
	}
	response.Success(c, result)
}
