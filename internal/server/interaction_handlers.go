package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dimsum-app/backend/internal/corpus"
	"github.com/dimsum-app/backend/internal/interactions"
	"github.com/gin-gonic/gin"
)

type interactionUpsertPayload struct {
	ContentID    string `json:"content_id"`
	IsLiked      *bool  `json:"is_liked"`
	IsBookmarked *bool  `json:"is_bookmarked"`
}

func (h *httpHandler) handleInteractionUpsert(c *gin.Context) {
	id, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request interactionUpsertPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ContentID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.IsLiked == nil && request.IsBookmarked == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	record, err := h.interactions.Upsert(c.Request.Context(), id.UserID, request.ContentID, interactions.UpsertRequest{
		IsLiked:      request.IsLiked,
		IsBookmarked: request.IsBookmarked,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, flagsPayload(record))
}

// handleInteractionGet serves both shapes of the read endpoint: a single
// pair lookup when content_id is present, otherwise a paginated list
// filtered by type.
func (h *httpHandler) handleInteractionGet(c *gin.Context) {
	id, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if contentID := strings.TrimSpace(c.Query("content_id")); contentID != "" {
		flags, err := h.interactions.Query(c.Request.Context(), id.UserID, contentID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, flags)
		return
	}

	filter, err := interactions.ParseListFilter(c.Query("type"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), 20)

	result, err := h.interactions.List(c.Request.Context(), id.UserID, filter, page, limit, c.Query("search"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	items := make([]listItemPayload, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, listItemPayload{
			Flags: flagsPayload(item.Record),
			Entry: entryPayload(item.Entry),
		})
	}
	c.JSON(http.StatusOK, listResponsePayload{
		Items:      items,
		Page:       result.Page,
		Limit:      result.Limit,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	})
}

type viewRequestPayload struct {
	ContentID string `json:"content_id"`
}

func (h *httpHandler) handleContentView(c *gin.Context) {
	var request viewRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.ContentID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	userID := ""
	if id, ok := currentIdentity(c); ok {
		userID = id.UserID
	}

	result, err := h.interactions.RecordView(c.Request.Context(), request.ContentID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"view_num":      result.ViewNum,
		"marked_viewed": result.MarkedViewed,
	})
}

type listItemPayload struct {
	Flags interactions.Flags `json:"flags"`
	Entry entryJSON          `json:"entry"`
}

type listResponsePayload struct {
	Items      []listItemPayload `json:"items"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	Total      int64             `json:"total"`
	TotalPages int               `json:"total_pages"`
}

type entryJSON struct {
	UniqueID    string `json:"unique_id"`
	Data        string `json:"data"`
	Note        string `json:"note"`
	Category    string `json:"category"`
	Tags        string `json:"tags"`
	LikedNum    int64  `json:"liked_num"`
	BookmarkNum int64  `json:"bookmark_num"`
	ViewNum     int64  `json:"view_num"`
}

func entryPayload(entry corpus.Entry) entryJSON {
	return entryJSON{
		UniqueID:    entry.UniqueID,
		Data:        entry.Data,
		Note:        entry.Note,
		Category:    entry.Category,
		Tags:        entry.Tags,
		LikedNum:    entry.LikedNum,
		BookmarkNum: entry.BookmarkNum,
		ViewNum:     entry.ViewNum,
	}
}

func flagsPayload(record interactions.Record) interactions.Flags {
	createdAt := record.CreatedAt
	updatedAt := record.UpdatedAt
	return interactions.Flags{
		IsLiked:      record.IsLiked,
		IsBookmarked: record.IsBookmarked,
		IsViewed:     record.IsViewed,
		CreatedAt:    &createdAt,
		UpdatedAt:    &updatedAt,
	}
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
