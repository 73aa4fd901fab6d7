package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"sociohiro-backend/internal/store"
	"sociohiro-backend/models"
)

type memoryRules struct {
	mu    sync.Mutex
	rules map[primitive.ObjectID]*models.AutomationRule
	logs  []models.ExecutionLog
}

func newMemoryRules() *memoryRules {
	return &memoryRules{rules: make(map[primitive.ObjectID]*models.AutomationRule)}
}

func (m *memoryRules) CreateRule(_ context.Context, rule *models.AutomationRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.ID = primitive.NewObjectID()
	cp := *rule
	m.rules[rule.ID] = &cp
	return nil
}

func (m *memoryRules) GetRule(_ context.Context, accountID string, id primitive.ObjectID) (*models.AutomationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.AccountID != accountID {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRules) ListRules(_ context.Context, accountID string) ([]models.AutomationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AutomationRule
	for _, r := range m.rules {
		if r.AccountID == accountID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memoryRules) UpdateRule(_ context.Context, rule *models.AutomationRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[rule.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *rule
	m.rules[rule.ID] = &cp
	return nil
}

func (m *memoryRules) SetRuleActive(_ context.Context, accountID string, id primitive.ObjectID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.AccountID != accountID {
		return store.ErrNotFound
	}
	r.IsActive = active
	return nil
}

func (m *memoryRules) DeleteRule(_ context.Context, accountID string, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok || r.AccountID != accountID {
		return store.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memoryRules) RuleLogs(_ context.Context, accountID string, ruleID primitive.ObjectID, limit int) ([]models.ExecutionLog, error) {
	var out []models.ExecutionLog
	for _, l := range m.logs {
		if l.AccountID == accountID && l.RuleID == ruleID && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryRules) AccountLogs(_ context.Context, accountID string, since time.Time, limit int) ([]models.ExecutionLog, error) {
	var out []models.ExecutionLog
	for _, l := range m.logs {
		if l.AccountID == accountID && !l.ExecutedAt.Before(since) && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func newAutomationRouter(rules AutomationStore, accountID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api", func(c *gin.Context) {
		c.Set("account_id", accountID)
		c.Next()
	})
	SetupAutomationRoutes(api, rules)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateRule(t *testing.T) {
	rules := newMemoryRules()
	router := newAutomationRouter(rules, "acct1")

	w := doJSON(t, router, http.MethodPost, "/api/automations",
		`{"name":"Price DM","trigger_type":"comment","action_type":"send_dm","response_message":"DM us!","keywords":["price"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var got models.AutomationRule
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID.IsZero() || got.AccountID != "acct1" || !got.IsActive || !got.ApplyToAllContent {
		t.Errorf("unexpected rule: %+v", got)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	router := newAutomationRouter(newMemoryRules(), "acct1")

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"incompatible", `{"name":"x","trigger_type":"dm","action_type":"reply_comment","response_message":"hi"}`, "incompatible_action"},
		{"missing message", `{"name":"x","trigger_type":"comment","action_type":"send_dm"}`, "invalid_rule"},
		{"bad window", `{"name":"x","trigger_type":"comment","action_type":"like_comment","conditions":{"time_window":{"start":"25:00","end":"10:00"}}}`, "invalid_rule"},
		{"missing name", `{"trigger_type":"comment","action_type":"like_comment"}`, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/automations", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			var resp struct {
				ErrorCode string `json:"error_code"`
			}
			json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.ErrorCode != tt.wantCode {
				t.Errorf("error_code = %q, want %q", resp.ErrorCode, tt.wantCode)
			}
		})
	}
}

func TestRuleIsolationAndToggle(t *testing.T) {
	rules := newMemoryRules()
	rule := &models.AutomationRule{AccountID: "acct1", Name: "r", TriggerType: models.TriggerComment, ActionType: models.ActionLikeComment, IsActive: true, ApplyToAllContent: true}
	rules.CreateRule(context.Background(), rule)
	path := "/api/automations/" + rule.ID.Hex()

	other := newAutomationRouter(rules, "acct2")
	if w := doJSON(t, other, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("other account GET status = %d, want 404", w.Code)
	}
	if w := doJSON(t, other, http.MethodDelete, path, ""); w.Code != http.StatusNotFound {
		t.Errorf("other account DELETE status = %d, want 404", w.Code)
	}

	owner := newAutomationRouter(rules, "acct1")
	w := doJSON(t, owner, http.MethodPatch, path+"/toggle", "")
	if w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", w.Code)
	}
	if rules.rules[rule.ID].IsActive {
		t.Error("rule should be inactive after toggle")
	}

	if w := doJSON(t, owner, http.MethodGet, "/api/automations/not-an-id", ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", w.Code)
	}
}

func TestUpdateRuleRevalidates(t *testing.T) {
	rules := newMemoryRules()
	rule := &models.AutomationRule{AccountID: "acct1", Name: "r", TriggerType: models.TriggerComment, ActionType: models.ActionLikeComment, IsActive: true, ApplyToAllContent: true}
	rules.CreateRule(context.Background(), rule)
	router := newAutomationRouter(rules, "acct1")
	path := "/api/automations/" + rule.ID.Hex()

	w := doJSON(t, router, http.MethodPut, path, `{"name":"r","trigger_type":"follow","action_type":"like_comment"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if rules.rules[rule.ID].TriggerType != models.TriggerComment {
		t.Error("invalid update must not be stored")
	}

	w = doJSON(t, router, http.MethodPut, path, `{"name":"renamed","trigger_type":"follow","action_type":"send_dm","response_message":"thanks"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := rules.rules[rule.ID]; got.Name != "renamed" || got.TriggerType != models.TriggerFollow {
		t.Errorf("update not stored: %+v", got)
	}
}

func TestCompatibilityEndpoint(t *testing.T) {
	router := newAutomationRouter(newMemoryRules(), "acct1")

	w := doJSON(t, router, http.MethodGet, "/api/automations/compatibility?action=send_story_reply", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Triggers []string `json:"triggers"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Triggers) != 1 || resp.Triggers[0] != "mention" {
		t.Errorf("triggers = %v, want [mention]", resp.Triggers)
	}

	if w := doJSON(t, router, http.MethodGet, "/api/automations/compatibility?action=dance", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown action status = %d, want 400", w.Code)
	}
}

func TestExportLogs(t *testing.T) {
	rules := newMemoryRules()
	rules.logs = []models.ExecutionLog{
		{AccountID: "acct1", RuleName: "Price DM", Success: true, ExecutedAt: time.Now().UTC()},
		{AccountID: "acct2", RuleName: "Other", Success: true, ExecutedAt: time.Now().UTC()},
	}
	router := newAutomationRouter(rules, "acct1")

	w := doJSON(t, router, http.MethodGet, "/api/automations/logs/export?days=7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".xlsx") {
		t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
	}

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows("Executions")
	if len(rows) != 2 {
		t.Errorf("got %d rows, want header + 1 row for acct1", len(rows))
	}
}
