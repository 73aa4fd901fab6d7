package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"sociohiro-backend/internal/automation"
	"sociohiro-backend/internal/store"
	"sociohiro-backend/middleware"
	"sociohiro-backend/models"
	"sociohiro-backend/services"
	"sociohiro-backend/utils"
)

// AutomationStore is the persistence the automation API needs.
type AutomationStore interface {
	CreateRule(ctx context.Context, rule *models.AutomationRule) error
	GetRule(ctx context.Context, accountID string, id primitive.ObjectID) (*models.AutomationRule, error)
	ListRules(ctx context.Context, accountID string) ([]models.AutomationRule, error)
	UpdateRule(ctx context.Context, rule *models.AutomationRule) error
	SetRuleActive(ctx context.Context, accountID string, id primitive.ObjectID, active bool) error
	DeleteRule(ctx context.Context, accountID string, id primitive.ObjectID) error
	RuleLogs(ctx context.Context, accountID string, ruleID primitive.ObjectID, limit int) ([]models.ExecutionLog, error)
	AccountLogs(ctx context.Context, accountID string, since time.Time, limit int) ([]models.ExecutionLog, error)
}

const (
	defaultLogLimit = 50
	exportLogLimit  = 500
)

func SetupAutomationRoutes(api *gin.RouterGroup, rules AutomationStore) {
	automations := api.Group("/automations")

	automations.GET("", handleListRules(rules))
	automations.POST("", handleCreateRule(rules))
	automations.GET("/compatibility", handleCompatibility())
	automations.GET("/logs/export", handleExportLogs(rules))
	automations.GET("/:id", handleGetRule(rules))
	automations.PUT("/:id", handleUpdateRule(rules))
	automations.DELETE("/:id", handleDeleteRule(rules))
	automations.PATCH("/:id/toggle", handleToggleRule(rules))
	automations.GET("/:id/logs", handleRuleLogs(rules))
}

func ruleID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid automation ID format", nil)
		return primitive.NilObjectID, false
	}
	return id, true
}

// respondRuleError maps validation and lookup failures to HTTP responses.
func respondRuleError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.RespondWithNotFound(c, "Automation not found")
	case errors.Is(err, automation.ErrIncompatibleAction):
		utils.RespondWithError(c, http.StatusBadRequest, "incompatible_action", err.Error(), nil)
	case isValidationError(err):
		utils.RespondWithError(c, http.StatusBadRequest, "invalid_rule", err.Error(), nil)
	default:
		middleware.Log(c).Error("automation request failed", "action", action, "error", err)
		utils.RespondWithInternalError(c, "Failed to "+action, nil)
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		automation.ErrInvalidTrigger,
		automation.ErrInvalidAction,
		automation.ErrMissingResponse,
		automation.ErrInvalidTimeWindow,
		automation.ErrInvalidDays,
		automation.ErrInvalidLimits,
		automation.ErrInvalidRange,
		automation.ErrInvalidTimezone,
		automation.ErrMissingContent,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func handleListRules(rules AutomationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		list, err := rules.ListRules(ctx, middleware.GetAccountID(c))
		if err != nil {
			respondRuleError(c, err, "list automations")
			return
		}
		if list == nil {
			list = []models.AutomationRule{}
		}
		c.JSON(http.StatusOK, gin.H{"automations": list, "total": len(list)})
	}
}

func handleCreateRule(rules AutomationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		rule, err := automation.NewRule(middleware.GetAccountID(c), req, time.Now().UTC())
		if err != nil {
			respondRuleError(c, err, "create automation")
			return
		}
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()
		if err := rules.CreateRule(ctx, rule); err != nil {
			respondRuleError(c, err, "create automation")
			return
		}

		middleware.Log(c).Info("automation created", "rule_id", rule.ID.Hex(), "trigger", rule.TriggerType, "action", rule.ActionType)
		c.JSON(http.StatusCreated, rule)
	}
}

func handleGetRule(rules AutomationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ruleID(c)
		if !ok {
			return
		}
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		rule, err := rules.GetRule(ctx, middleware.GetAccountID(c), id)
		if err != nil {
			respondRuleError(c, err, "fetch automation")
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

func handleUpdateRule(rules AutomationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ruleID(c)
		if !ok {
			return
		}
		var req models.RuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()
		rule, err := rules.GetRule(ctx, middleware.GetAccountID(c), id)
		if err != nil {
			respondRuleError(c, err, "update automation")
			return
		}

		automation.ApplyRequest(rule, req, time.Now().UTC())
		if err := automation.Validate(rule); err != nil {
			respondRuleError(c, err, "update automation")
			return
		}
		if err := rules.UpdateRule(ctx, rule); err != nil {
			respondRuleError(c, err, "update automation")
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

func handleDeleteRule(rules AutomationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ruleID(c)
		if !ok {
			return
		}
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()
		if err := rules.DeleteRule(ctx, middleware.GetAccountID(c), id); err != nil {
			respondRuleError(c, err, "delete automation")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Automation deleted successfully"})
	}
}

func handleToggleRule(rules AutomationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ruleID(c)
		if !ok {
			return
		}
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()
		accountID := middleware.GetAccountID(c)

		rule, err := rules.GetRule(ctx, accountID, id)
		if err != nil {
			respondRuleError(c, err, "toggle automation")
			return
		}
		active := !rule.IsActive
		if err := rules.SetRuleActive(ctx, accountID, id, active); err != nil {
			respondRuleError(c, err, "toggle automation")
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id.Hex(), "is_active": active})
	}
}

func handleRuleLogs(rules AutomationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ruleID(c)
		if !ok {
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLogLimit)))
		if limit <= 0 {
			limit = defaultLogLimit
		}

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()

		logs, err := rules.RuleLogs(ctx, middleware.GetAccountID(c), id, limit)
		if err != nil {
			respondRuleError(c, err, "fetch execution logs")
			return
		}
		if logs == nil {
			logs = []models.ExecutionLog{}
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs, "total": len(logs)})
	}
}

func handleExportLogs(rules AutomationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
		if err != nil || days <= 0 {
			utils.RespondWithBadRequest(c, "days must be a positive integer", nil)
			return
		}
		loc := time.UTC
		if tz := c.Query("tz"); tz != "" {
			if loc, err = time.LoadLocation(tz); err != nil {
				utils.RespondWithBadRequest(c, "Unknown timezone", gin.H{"tz": tz})
				return
			}
		}

		since := time.Now().UTC().AddDate(0, 0, -days)
		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()

		logs, err := rules.AccountLogs(ctx, middleware.GetAccountID(c), since, exportLogLimit)
		if err != nil {
			respondRuleError(c, err, "export execution logs")
			return
		}

		data, err := services.ExportExecutionLogs(logs, loc)
		if err != nil {
			respondRuleError(c, err, "export execution logs")
			return
		}

		filename := fmt.Sprintf("automation-logs-%s.xlsx", time.Now().UTC().Format("20060102"))
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	}
}

func handleCompatibility() gin.HandlerFunc {
	return func(c *gin.Context) {
		if action := c.Query("action"); action != "" {
			a := models.ActionType(action)
			if !automation.ValidAction(a) {
				utils.RespondWithBadRequest(c, "Unknown action type", gin.H{"action": action})
				return
			}
			c.JSON(http.StatusOK, gin.H{"action": a, "triggers": automation.TriggersFor(a)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"matrix": automation.CompatibilityMatrix()})
	}
}
