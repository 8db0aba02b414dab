package handlers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/ASHISH26940/storyspark-api/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

type CreateChildRequest struct {
	Name         string   `json:"name" binding:"required,min=1,max=100"`
	Age          *int     `json:"age" binding:"omitempty,min=0,max=12"`
	Interests    []string `json:"interests" binding:"omitempty,max=20,dive,max=50"`
	FavoriteShow string   `json:"favorite_show" binding:"max=100"`
}

type ChildResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Age          *int      `json:"age"`
	Interests    []string  `json:"interests"`
	FavoriteShow string    `json:"favorite_show,omitempty"`
	CreatedAt    string    `json:"created_at"`
}

func newChildResponse(child *db.Child) ChildResponse {
	resp := ChildResponse{
		ID:           child.ID,
		Name:         child.Name,
		Interests:    []string(child.Interests),
		FavoriteShow: child.FavoriteShow.String,
		CreatedAt:    formatTime(child.CreatedAt),
	}
	if resp.Interests == nil {
		resp.Interests = []string{}
	}
	if child.Age.Valid {
		age := int(child.Age.Int64)
		resp.Age = &age
	}
	return resp
}

func (h *Handlers) ListChildren(c *gin.Context) {
	parentID, ok := currentParent(c)
	if !ok {
		return
	}
	children, err := h.Store.ListChildrenForParent(c.Request.Context(), parentID)
	if err != nil {
		log.Errorf("ListChildren: Error retrieving children for parent %s: %v", parentID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve children", nil)
		return
	}
	out := make([]ChildResponse, 0, len(children))
	for i := range children {
		out = append(out, newChildResponse(&children[i]))
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Children retrieved successfully", out)
}

func (h *Handlers) CreateChild(c *gin.Context) {
	var req CreateChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("CreateChild: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	parentID, ok := currentParent(c)
	if !ok {
		return
	}

	child := &db.Child{
		ParentID:  parentID,
		Name:      strings.TrimSpace(req.Name),
		Interests: pq.StringArray(req.Interests),
	}
	if req.Age != nil {
		child.Age = sql.NullInt64{Int64: int64(*req.Age), Valid: true}
	}
	if show := strings.TrimSpace(req.FavoriteShow); show != "" {
		child.FavoriteShow = sql.NullString{String: show, Valid: true}
	}

	created, err := h.Store.CreateChild(c.Request.Context(), child)
	if err != nil {
		log.Errorf("CreateChild: Error creating child for parent %s: %v", parentID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create child profile", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusCreated, "Child profile created successfully", newChildResponse(created))
}
