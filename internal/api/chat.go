package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/chat"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/companyurl"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/conversation"
	"github.com/Keyring-Network/keyring-gavryn/company-chat/internal/export"
)

type chatRequest struct {
	Message  string          `json:"message"`
	Messages json.RawMessage `json:"messages"`
}

func (s *Server) chatTurn(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	result, err := s.chat.Chat(r.Context(), chat.TurnRequest{
		ConversationID: chi.URLParam(r, "id"),
		Message:        req.Message,
		Messages:       req.Messages,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, result)
}

type exportResponse struct {
	URL string `json:"url"`
}

func (s *Server) exportConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.ExportConfigured(); err != nil {
		s.writeError(w, r, err)
		return
	}
	record, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	company, _ := companyurl.Resolve(record.Company, record.SocialEntry)
	messages := conversation.Sanitize(record.Messages, record.ID, record.CreatedAt)
	title := strings.TrimSpace(record.Title)
	if title == "" {
		title = company
	}
	if title == "" {
		title = "Conversation " + record.ID
	}

	url, err := s.exporter.Export(r.Context(), title, export.Transcript(record.Title, company, messages))
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", record.ID).Msg("export failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, exportResponse{URL: url})
}
