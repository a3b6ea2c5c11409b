package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/companyurl"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/conversation"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/store"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

type conversationResponse struct {
	ID          string                 `json:"id"`
	Type        store.RecordType       `json:"type"`
	Title       string                 `json:"title"`
	Company     string                 `json:"company"`
	SocialEntry string                 `json:"social_entry"`
	Context     string                 `json:"context"`
	Messages    []conversation.Message `json:"messages"`
	CreatedAt   string                 `json:"created_at"`
}

func toConversationResponse(record store.Record) conversationResponse {
	return conversationResponse{
		ID:          record.ID,
		Type:        record.Type,
		Title:       record.Title,
		Company:     record.Company,
		SocialEntry: record.SocialEntry,
		Context:     record.Context,
		Messages:    conversation.Sanitize(record.Messages, record.ID, record.CreatedAt),
		CreatedAt:   record.CreatedAt.UTC().Format(timestampLayout),
	}
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context(), store.Query{Type: store.TypeResults})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, conversation.Group(records))
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, toConversationResponse(record))
}

type putConversationRequest struct {
	Type        store.RecordType `json:"type"`
	Title       *string          `json:"title"`
	Company     *string          `json:"company"`
	SocialEntry *string          `json:"social_entry"`
	Context     *string          `json:"context"`
	Messages    json.RawMessage  `json:"messages"`
}

// putConversation saves a client copy of a row. The stored creation time
// never changes and the more complete message list wins.
func (s *Server) putConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req putConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Type != "" && req.Type != store.TypeResults && req.Type != store.TypeContext {
		http.Error(w, "invalid type", http.StatusBadRequest)
		return
	}

	now := s.now().UTC()
	record, err := s.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		record = store.Record{ID: id, Type: store.TypeResults, CreatedAt: now}
	case err != nil:
		s.writeError(w, r, err)
		return
	}
	if req.Type != "" {
		record.Type = req.Type
	}
	applyString(&record.Title, req.Title)
	applyString(&record.Company, req.Company)
	applyString(&record.SocialEntry, req.SocialEntry)
	applyString(&record.Context, req.Context)

	if len(req.Messages) > 0 {
		existing := conversation.Sanitize(record.Messages, id, record.CreatedAt)
		incoming := conversation.Sanitize(req.Messages, id, now)
		encoded, err := json.Marshal(conversation.PickMostCompleteMessages(existing, incoming))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		record.Messages = encoded
	}

	saved, err := s.store.Upsert(r.Context(), record)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, toConversationResponse(saved))
}

func applyString(target *string, value *string) {
	if value != nil {
		*target = strings.TrimSpace(*value)
	}
}

type createConversationRequest struct {
	Type        store.RecordType `json:"type"`
	Title       string           `json:"title"`
	Company     string           `json:"company"`
	SocialEntry string           `json:"social_entry"`
	Context     string           `json:"context"`
}

// createConversation ingests a social entry as a new row. An entry already
// stored with the same type is returned instead of duplicated.
func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	recordType := req.Type
	if recordType == "" {
		recordType = store.TypeResults
	}
	if recordType != store.TypeResults && recordType != store.TypeContext {
		http.Error(w, "invalid type", http.StatusBadRequest)
		return
	}
	socialEntry := strings.TrimSpace(req.SocialEntry)
	contextText := strings.TrimSpace(req.Context)
	if socialEntry == "" && contextText == "" {
		http.Error(w, "social_entry or context is required", http.StatusBadRequest)
		return
	}

	if socialEntry != "" {
		existing, err := s.store.List(r.Context(), store.Query{Type: recordType, SocialEntry: socialEntry, Limit: 1})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(existing) > 0 {
			writeJSON(w, toConversationResponse(existing[0]))
			return
		}
	}

	company := strings.TrimSpace(req.Company)
	if company == "" {
		company, _ = companyurl.Canonicalize(socialEntry)
	}
	record := store.Record{
		ID:          s.newID(),
		Type:        recordType,
		Title:       deriveTitle(req.Title, company, socialEntry, contextText),
		Company:     company,
		SocialEntry: socialEntry,
		Context:     contextText,
		Messages:    json.RawMessage("[]"),
		CreatedAt:   s.now().UTC(),
	}
	saved, err := s.store.Upsert(r.Context(), record)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info().Str("conversation_id", saved.ID).Str("type", string(saved.Type)).Str("company", saved.Company).Msg("conversation created")
	writeJSONStatus(w, toConversationResponse(saved), http.StatusCreated)
}

const derivedTitleLimit = 80

// deriveTitle names an ingested row that arrived without a title: the company
// host when there is one, else the first line of the entry or context.
func deriveTitle(title, company, socialEntry, contextText string) string {
	if trimmed := strings.TrimSpace(title); trimmed != "" {
		return trimmed
	}
	if host, ok := companyurl.Host(company); ok {
		return host
	}
	for _, text := range []string{socialEntry, contextText} {
		for _, line := range strings.Split(text, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				if runes := []rune(trimmed); len(runes) > derivedTitleLimit {
					return string(runes[:derivedTitleLimit]) + "…"
				}
				return trimmed
			}
		}
	}
	return ""
}

// deleteConversation removes a row and, for results rows, every context row
// of the same company.
func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if record.Type != store.TypeContext {
		if company, ok := companyurl.Resolve(record.Company, record.SocialEntry); ok {
			if err := s.store.DeleteContexts(r.Context(), companyurl.Variants(company)); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
