package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sociohiro-backend/internal/graph"
	"sociohiro-backend/internal/store"
	"sociohiro-backend/middleware"
	"sociohiro-backend/utils"
)

// InstagramAPI is the slice of the Graph API client the dashboard proxies.
type InstagramAPI interface {
	GetPages(ctx context.Context) ([]graph.Page, error)
	GetInstagramBusinessAccount(ctx context.Context, pageID string) (string, error)
	GetInstagramAccountInfo(ctx context.Context, accountID string) (*graph.AccountInfo, error)
	GetMedia(ctx context.Context, accountID string, limit int) ([]graph.Media, error)
	CreatePost(ctx context.Context, accountID string, in graph.PostInput) (*graph.Publication, error)
	CreateStory(ctx context.Context, accountID string, in graph.StoryInput) (string, error)
	PublishContainer(ctx context.Context, accountID, containerID string) (string, error)
	GetPostInsights(ctx context.Context, mediaID string, metrics []string) ([]graph.Insight, error)
	GetAccountInsights(ctx context.Context, accountID string, metrics []string) ([]graph.Insight, error)
	GetComments(ctx context.Context, mediaID string) ([]graph.Comment, error)
	ReplyToComment(ctx context.Context, commentID, message string) (map[string]interface{}, error)
	GetMentions(ctx context.Context, accountID string) ([]graph.Media, error)
}

// ClientFactory builds a Graph API client for a linked account.
type ClientFactory func(ctx context.Context, accountID string) (InstagramAPI, error)

// PublishDispatcher schedules a background retry of a failed publish step.
type PublishDispatcher interface {
	DispatchPublish(ctx context.Context, accountID, containerID string) error
}

type instagramHandlers struct {
	clients   ClientFactory
	publishes PublishDispatcher
}

func SetupInstagramRoutes(api *gin.RouterGroup, clients ClientFactory, publishes PublishDispatcher) {
	h := &instagramHandlers{clients: clients, publishes: publishes}
	ig := api.Group("/instagram")

	ig.GET("/pages", h.handle(h.pages))
	ig.GET("/pages/:id/business-account", h.handle(h.businessAccount))
	ig.GET("/account", h.handle(h.account))
	ig.GET("/media", h.handle(h.media))
	ig.GET("/media/:id/insights", h.handle(h.postInsights))
	ig.GET("/media/:id/comments", h.handle(h.comments))
	ig.GET("/insights", h.handle(h.accountInsights))
	ig.GET("/mentions", h.handle(h.mentions))
	ig.POST("/posts", h.handle(h.createPost))
	ig.POST("/stories", h.handle(h.createStory))
	ig.POST("/containers/:id/publish", h.handle(h.publish))
	ig.POST("/comments/:id/replies", h.handle(h.reply))
}

// handle resolves the account's client before calling fn.
func (h *instagramHandlers) handle(fn func(c *gin.Context, client InstagramAPI, accountID string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := middleware.GetAccountID(c)
		client, err := h.clients(c.Request.Context(), accountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondWithUnprocessable(c, "not_linked", "No Instagram business account is linked")
				return
			}
			middleware.Log(c).Error("failed to build graph client", "account_id", accountID, "error", err)
			utils.RespondWithInternalError(c, "Failed to load Instagram credentials", nil)
			return
		}
		fn(c, client, accountID)
	}
}

func metricsQuery(c *gin.Context) []string {
	raw := c.Query("metrics")
	if raw == "" {
		return nil
	}
	var out []string
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func (h *instagramHandlers) pages(c *gin.Context, client InstagramAPI, _ string) {
	pages, err := client.GetPages(c.Request.Context())
	if err != nil {
		utils.RespondWithGraphError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pages": pages})
}

func (h *instagramHandlers) businessAccount(c *gin.Context, client InstagramAPI, _ string) {
	pageID := c.Param("id")
	igID, err := client.GetInstagramBusinessAccount(c.Request.Context(), pageID)
	if err != nil {
		utils.RespondWithGraphError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page_id": pageID, "instagram_business_account_id": igID})
}

func (h *instagramHandlers) account(c *gin.Context, client InstagramAPI, accountID string) {
	info, err := client.GetInstagramAccountInfo(c.Request.Context(), accountID)
	if err != nil {
		utils.RespondWithGraphError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *instagramHandlers) media(c *gin.Context, client InstagramAPI, accountID string) {
	limit := graph.DefaultMediaLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			utils.RespondWithBadRequest(c, "limit must be between 1 and 100", nil)
			return
		}
		limit = n
	}
	media, err := client.GetMedia(c.Request.Context(), accountID, limit)
	if err != nil {
		utils.RespondWithGraphError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": media, "count": len(media)})
}

func (h *instagramHandlers) postInsights(c *gin.Context, client InstagramAPI, _ string) {
	insights, err := client.GetPostInsights(c.Request.Context(), c.Param("id"), metricsQuery(c))
	if err != nil {
		utils.RespondWithGraphError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": insights})
}

func (h *instagramHandlers) accountInsights(c *gin.Context, client InstagramAPI, accountID string) {
	insights, err := client.GetAccountInsights(c.Request.Context(), accountID, metricsQuery(c))
	if err != nil {
		utils.RespondWithGraphError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"insights": insights})
}

func (h *instagramHandlers) comments(c *gin.Context, client InstagramAPI, _ string) {
	comments, err := client.GetComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondWithGraphError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *instagramHandlers) mentions(c *gin.Context, client InstagramAPI, accountID string) {
	mentions, err := client.GetMentions(c.Request.Context(), accountID)
	if err != nil {
		utils.RespondWithGraphError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mentions": mentions})
}

type replyRequest struct {
	Message string `json:"message" binding:"required,max=2200"`
}

func (h *instagramHandlers) reply(c *gin.Context, client InstagramAPI, _ string) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
		return
	}
	res, err := client.ReplyToComment(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		utils.RespondWithGraphError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *instagramHandlers) createPost(c *gin.Context, client InstagramAPI, accountID string) {
	var in graph.PostInput
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
		return
	}

	pub, err := client.CreatePost(c.Request.Context(), accountID, in)
	if err != nil {
		var partial *graph.PartialPublishError
		if errors.As(err, &partial) {
			h.publishLater(c, accountID, partial.ContainerID, partial.Err)
			return
		}
		utils.RespondWithGraphError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pub)
}

func (h *instagramHandlers) createStory(c *gin.Context, client InstagramAPI, accountID string) {
	var in graph.StoryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	containerID, err := client.CreateStory(ctx, accountID, in)
	if err != nil {
		utils.RespondWithGraphError(c, err)
		return
	}
	mediaID, err := client.PublishContainer(ctx, accountID, containerID)
	if err != nil {
		h.publishLater(c, accountID, containerID, err)
		return
	}
	c.JSON(http.StatusCreated, graph.Publication{
		ContainerID: containerID,
		MediaID:     mediaID,
		State:       graph.StatePublished,
	})
}

func (h *instagramHandlers) publish(c *gin.Context, client InstagramAPI, accountID string) {
	containerID := c.Param("id")
	mediaID, err := client.PublishContainer(c.Request.Context(), accountID, containerID)
	if err != nil {
		utils.RespondWithGraphError(c, err)
		return
	}
	c.JSON(http.StatusCreated, graph.Publication{
		ContainerID: containerID,
		MediaID:     mediaID,
		State:       graph.StatePublished,
	})
}

// publishLater answers a failed publish step. Retryable failures are handed
// to the worker and reported as accepted; the container is kept either way.
func (h *instagramHandlers) publishLater(c *gin.Context, accountID, containerID string, cause error) {
	log := middleware.Log(c)
	log.Warn("publish step failed", "account_id", accountID, "container_id", containerID, "error", cause)

	if !graph.IsRetryable(cause) {
		utils.RespondWithError(c, utils.GraphErrorStatus(graph.ReasonOf(cause)), "publish_failed", cause.Error(),
			gin.H{"container_id": containerID, "state": graph.StatePublishFailed})
		return
	}

	scheduled := true
	if err := h.publishes.DispatchPublish(c.Request.Context(), accountID, containerID); err != nil {
		log.Error("failed to schedule publish retry", "container_id", containerID, "error", err)
		scheduled = false
	}
	c.JSON(http.StatusAccepted, gin.H{
		"container_id":    containerID,
		"state":           graph.StatePublishFailed,
		"retry_scheduled": scheduled,
		"message":         cause.Error(),
	})
}
