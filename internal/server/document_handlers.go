package server

import (
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/docvault/internal/access"
	"github.com/MarcoPoloResearchLab/docvault/internal/catalog"
	"github.com/MarcoPoloResearchLab/docvault/internal/ledger"
	"github.com/MarcoPoloResearchLab/docvault/internal/licensing"
	"github.com/gin-gonic/gin"
)

type documentPayload struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Price        int64    `json:"price"`
	AuthorName   string   `json:"author"`
	DocType      string   `json:"type"`
	Tags         []string `json:"tags"`
	AISummary    string   `json:"ai_summary,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	Rating       float64  `json:"rating"`
	Owned        bool     `json:"owned"`
	BoundDevice  string   `json:"bound_device,omitempty"`
}

func newDocumentPayload(document catalog.Document, account ledger.Account) documentPayload {
	bound, _ := document.Binding.Device()
	return documentPayload{
		ID:           document.ID,
		Title:        document.Title,
		Description:  document.Description,
		Price:        document.Price,
		AuthorName:   document.AuthorName,
		DocType:      string(document.DocType),
		Tags:         append([]string{}, document.Tags...),
		AISummary:    document.AISummary,
		ThumbnailURL: document.ThumbnailURL,
		Rating:       document.Rating,
		Owned:        account.Owns(document.ID),
		BoundDevice:  bound.String(),
	}
}

type documentListPayload struct {
	Documents []documentPayload `json:"documents"`
}

func (h *httpHandler) handleListDocuments(c *gin.Context) {
	current, ok := h.currentSession(c)
	if !ok {
		return
	}
	filter := catalog.Filter{Query: c.Query("q")}
	if rawType := strings.TrimSpace(c.Query("type")); rawType != "" && !strings.EqualFold(rawType, "ALL") {
		docType, err := catalog.ParseDocType(rawType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest, "message": err.Error()})
			return
		}
		filter.DocType = docType
	}
	h.writeDocumentList(c, "documents.list", current.Account, filter)
}

func (h *httpHandler) handleLibrary(c *gin.Context) {
	current, ok := h.currentSession(c)
	if !ok {
		return
	}
	filter := catalog.Filter{IDs: append([]string{}, current.Account.Library...)}
	h.writeDocumentList(c, "library.list", current.Account, filter)
}

func (h *httpHandler) writeDocumentList(c *gin.Context, operation string, account ledger.Account, filter catalog.Filter) {
	response := documentListPayload{Documents: []documentPayload{}}
	for document, err := range h.catalog.List(c.Request.Context(), filter) {
		if err != nil {
			h.writeError(c, operation, err)
			return
		}
		response.Documents = append(response.Documents, newDocumentPayload(document, account))
	}
	c.JSON(http.StatusOK, response)
}

type publishRequestPayload struct {
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description"`
	DocType      string   `json:"doc_type" binding:"required"`
	Content      string   `json:"content"`
	Tags         []string `json:"tags"`
	Price        *int64   `json:"price"`
	AISummary    string   `json:"ai_summary"`
	ThumbnailURL string   `json:"thumbnail_url"`
}

type publishResponsePayload struct {
	Document documentPayload `json:"document"`
	Account  accountPayload  `json:"account"`
}

func (h *httpHandler) handlePublish(c *gin.Context) {
	sessionID := c.GetString(sessionIDContextKey)
	var request publishRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
		return
	}
	docType, err := catalog.ParseDocType(request.DocType)
	if err != nil {
		h.writeError(c, "documents.publish", err)
		return
	}

	draft := licensing.Draft{
		Title:        request.Title,
		Description:  request.Description,
		DocType:      docType,
		Tags:         request.Tags,
		AISummary:    strings.TrimSpace(request.AISummary),
		ThumbnailURL: strings.TrimSpace(request.ThumbnailURL),
	}
	if request.Price != nil {
		draft.Price = *request.Price
	}
	if request.Price == nil || len(draft.Tags) == 0 || draft.AISummary == "" {
		content := request.Content
		if strings.TrimSpace(content) == "" {
			content = request.Description
		}
		suggestion := h.assist.Analyze(c.Request.Context(), request.Title, content)
		if request.Price == nil {
			draft.Price = suggestion.Price
		}
		if len(draft.Tags) == 0 {
			draft.Tags = suggestion.Tags
		}
		if draft.AISummary == "" {
			draft.AISummary = suggestion.Summary
		}
	}

	var published catalog.Document
	account, err := h.sessions.Update(c.Request.Context(), sessionID, func(account ledger.Account) (ledger.Account, error) {
		result, err := h.engine.Publish(c.Request.Context(), account, draft)
		published = result.Document
		return result.Account, err
	})
	if err != nil {
		h.writeError(c, "documents.publish", err)
		return
	}

	h.publishLibraryChange(sessionID, RealtimeEventDocumentPublish, published.ID)
	c.JSON(http.StatusCreated, publishResponsePayload{
		Document: newDocumentPayload(published, account),
		Account:  newAccountPayload(account),
	})
}

type quoteResponsePayload struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Price      int64  `json:"price"`
	DeviceID   string `json:"device_id"`
	Message    string `json:"message"`
}

func (h *httpHandler) handleQuote(c *gin.Context) {
	current, ok := h.currentSession(c)
	if !ok {
		return
	}
	notice, err := h.engine.Quote(c.Request.Context(), current.Account, c.Param("id"))
	if err != nil {
		h.writeError(c, "documents.quote", err)
		return
	}
	c.JSON(http.StatusOK, quoteResponsePayload{
		DocumentID: notice.DocumentID,
		Title:      notice.Title,
		Price:      notice.Price,
		DeviceID:   notice.Device.String(),
		Message:    notice.Message(),
	})
}

type purchaseRequestPayload struct {
	Consent *bool `json:"consent" binding:"required"`
}

type purchaseResponsePayload struct {
	Outcome  string           `json:"outcome"`
	Account  accountPayload   `json:"account"`
	Document *documentPayload `json:"document,omitempty"`
}

func (h *httpHandler) handlePurchase(c *gin.Context) {
	sessionID := c.GetString(sessionIDContextKey)
	var request purchaseRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
		return
	}
	documentID := c.Param("id")

	var result licensing.PurchaseResult
	account, err := h.sessions.Update(c.Request.Context(), sessionID, func(account ledger.Account) (ledger.Account, error) {
		var err error
		result, err = h.engine.Purchase(c.Request.Context(), account, documentID, licensing.Consented(*request.Consent))
		return result.Account, err
	})
	if err != nil {
		h.writeError(c, "documents.purchase", err)
		return
	}

	response := purchaseResponsePayload{
		Outcome: string(result.Outcome),
		Account: newAccountPayload(account),
	}
	if result.Outcome == licensing.OutcomeCompleted {
		document := newDocumentPayload(result.Document, account)
		response.Document = &document
		h.publishLibraryChange(sessionID, RealtimeEventLibraryChanged, documentID)
	}
	c.JSON(http.StatusOK, response)
}

type grantResponsePayload struct {
	DocumentID string `json:"document_id"`
	Action     string `json:"action"`
	Token      string `json:"token"`
	ExpiresAt  string `json:"expires_at"`
}

func newGrantPayload(grant access.Grant) grantResponsePayload {
	return grantResponsePayload{
		DocumentID: grant.DocumentID,
		Action:     string(grant.Action),
		Token:      grant.Token,
		ExpiresAt:  grant.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func (h *httpHandler) handleOpen(c *gin.Context) {
	current, ok := h.currentSession(c)
	if !ok {
		return
	}
	grant, err := h.gate.Open(c.Request.Context(), current.Account, c.Param("id"))
	if err != nil {
		h.writeError(c, "documents.open", err)
		return
	}
	c.JSON(http.StatusOK, newGrantPayload(grant))
}

func (h *httpHandler) handleExport(c *gin.Context) {
	current, ok := h.currentSession(c)
	if !ok {
		return
	}
	grant, err := h.gate.Export(c.Request.Context(), current.Account, c.Param("id"))
	if err != nil {
		h.writeError(c, "documents.export", err)
		return
	}
	c.JSON(http.StatusOK, newGrantPayload(grant))
}

// handleDownload redeems an export grant for the stamped copy of the document.
func (h *httpHandler) handleDownload(c *gin.Context) {
	current, ok := h.currentSession(c)
	if !ok {
		return
	}
	exported, err := h.gate.Redeem(c.Request.Context(), current.Account, c.Param("id"), c.Query("grant"))
	if err != nil {
		h.writeError(c, "documents.download", err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": exported.FileName}))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(exported.Content))
}

func (h *httpHandler) handleStudyTip(c *gin.Context) {
	document, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "documents.tip", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_id": document.ID, "tip": h.assist.StudyTip(c.Request.Context(), document.Title)})
}
