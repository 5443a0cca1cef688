package policy

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apollo-com-ph/apollo-claude/internal/api"
)

// APIHandler exposes the engine over the local status server.
type APIHandler struct {
	engine *Engine
}

// NewAPIHandler creates handlers bound to engine.
func NewAPIHandler(engine *Engine) *APIHandler {
	return &APIHandler{engine: engine}
}

// HandleRules returns every active layer with hit counts.
func (h *APIHandler) HandleRules(c *gin.Context) {
	snap := h.engine.Snapshot()
	api.Success(c, gin.H{
		"version":    snap.Version,
		"builtin":    snap.Builtin,
		"user_deny":  snap.UserDeny,
		"user_allow": snap.UserAllow,
		"total":      len(snap.Builtin) + len(snap.UserDeny) + len(snap.UserAllow),
	})
}

// HandleBuiltinRules returns only the embedded deny set.
func (h *APIHandler) HandleBuiltinRules(c *gin.Context) {
	snap := h.engine.Snapshot()
	api.Success(c, gin.H{
		"total": len(snap.Builtin),
		"rules": snap.Builtin,
	})
}

// HandleUserRules returns only the user document layers.
func (h *APIHandler) HandleUserRules(c *gin.Context) {
	snap := h.engine.Snapshot()
	api.Success(c, gin.H{
		"version": snap.Version,
		"deny":    snap.UserDeny,
		"allow":   snap.UserAllow,
		"total":   len(snap.UserDeny) + len(snap.UserAllow),
	})
}

// CheckRequest is the body of POST /v1/check.
type CheckRequest struct {
	Command string `json:"command" binding:"required"`
}

// HandleCheck screens a command without running anything and returns the
// full decision, segments included. This is the dry-run surface for rule
// authors.
func (h *APIHandler) HandleCheck(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, http.StatusBadRequest, "command is required")
		return
	}

	decision := h.engine.Evaluate(req.Command)
	api.Success(c, gin.H{
		"command":  req.Command,
		"decision": decision,
		"segments": SplitSegments(req.Command),
	})
}

// HandleLint lints a rule document posted as the raw request body.
func (h *APIHandler) HandleLint(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		api.Error(c, http.StatusBadRequest, "Failed to read body")
		return
	}

	doc, err := ParseDocument(body)
	if err != nil {
		api.Success(c, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	result := NewLinter().LintDocument(doc)
	api.Success(c, gin.H{
		"valid":    result.Errors == 0,
		"errors":   result.Errors,
		"warnings": result.Warns,
		"issues":   result.Issues,
	})
}

// HandleReload re-reads the user document from disk.
func (h *APIHandler) HandleReload(c *gin.Context) {
	h.engine.Reload()
	builtin, deny, allow := h.engine.RuleCount()
	api.Success(c, gin.H{
		"status":     "reloaded",
		"builtin":    builtin,
		"user_deny":  deny,
		"user_allow": allow,
	})
}
