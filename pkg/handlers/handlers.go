package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/config"
	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/ASHISH26940/storyspark-api/pkg/events"
	"github.com/ASHISH26940/storyspark-api/pkg/middleware"
	"github.com/ASHISH26940/storyspark-api/pkg/services"
	"github.com/ASHISH26940/storyspark-api/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Store is the data access the API needs. Lookups return nil, nil when the
// row does not exist.
type Store interface {
	CreateParent(ctx context.Context, parent *db.Parent) (*db.Parent, error)
	FindParentByEmail(ctx context.Context, email string) (*db.Parent, error)

	ListCharacters(ctx context.Context) ([]db.Character, error)
	GetCharacter(ctx context.Context, id uuid.UUID) (*db.Character, error)
	ListScenarios(ctx context.Context) ([]db.Scenario, error)
	GetScenarioByType(ctx context.Context, scenarioType string) (*db.Scenario, error)

	CreateChild(ctx context.Context, child *db.Child) (*db.Child, error)
	ListChildrenForParent(ctx context.Context, parentID uuid.UUID) ([]db.Child, error)
	FindChildForParent(ctx context.Context, id, parentID uuid.UUID) (*db.Child, error)

	CreateClip(ctx context.Context, clip *db.Clip) (*db.Clip, error)
	FindClipForParent(ctx context.Context, id, parentID uuid.UUID) (*db.Clip, error)
	ListClipsForParent(ctx context.Context, parentID uuid.UUID, childID *uuid.UUID) ([]db.Clip, error)
	FindClipAsset(ctx context.Context, clipID uuid.UUID) (*db.ClipAsset, error)
}

// Approver applies a parent's decision to a READY clip.
type Approver interface {
	Approve(ctx context.Context, clipID, parentID uuid.UUID, approved bool, note string) (*db.Clip, *db.Approval, error)
}

// Waker starts background work without waiting for the next poll.
type Waker interface {
	Notify()
}

// AudioFiles guards which paths may be served.
type AudioFiles interface {
	Contains(path string) bool
}

type Subscriber interface {
	Subscribe(ctx context.Context, clipID uuid.UUID) (<-chan events.ClipEvent, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handlers struct {
	Config   *config.Config
	Store    Store
	Tokens   *services.TokenService
	Pipeline Approver
	Worker   Waker
	Files    AudioFiles
	Events   Subscriber // nil when Redis is not configured
	DB       Pinger
	Now      func() time.Time
}

// NewHandlers creates a new instance of Handlers
func NewHandlers(cfg *config.Config, store Store, tokens *services.TokenService, pipeline Approver, worker Waker, files AudioFiles) *Handlers {
	return &Handlers{
		Config:   cfg,
		Store:    store,
		Tokens:   tokens,
		Pipeline: pipeline,
		Worker:   worker,
		Files:    files,
		Now:      time.Now,
	}
}

// currentParent returns the authenticated parent's id or writes a 500, since
// the auth middleware guarantees the claims on protected routes.
func currentParent(c *gin.Context) (uuid.UUID, bool) {
	claims, ok := middleware.GetParentClaimsFromContext(c)
	if !ok {
		log.Error("Parent claims not found in context for protected route.")
		utils.ResponseWithError(c, http.StatusInternalServerError, "Authentication error: Parent claims not found", nil)
		return uuid.Nil, false
	}
	return claims.ParentID, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid "+name+" format", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
