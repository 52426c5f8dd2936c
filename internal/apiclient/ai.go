// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apiclient

import (
	"context"
	"net/http"

	"github.com/taibuivan/bizmap/internal/platform/apperr"
)

// PathChat is the AI assistant endpoint.
const PathChat = "/api/ai/chat/"

// ChatMessage is one turn of conversation context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body sent to the AI endpoint.
type ChatRequest struct {
	Message             string        `json:"message"`
	Language            string        `json:"language"`
	ConversationID      string        `json:"conversation_id,omitempty"`
	ConversationContext []ChatMessage `json:"conversation_context,omitempty"`
	UserProfile         *ChatProfile  `json:"user_profile,omitempty"`
	IntentAnalysis      bool          `json:"intent_analysis"`
	VoiceInput          bool          `json:"voice_input"`
	ResponseType        string        `json:"response_type"`
}

// ChatProfile personalises the answer.
type ChatProfile struct {
	Name     string `json:"name,omitempty"`
	Province string `json:"province,omitempty"`
	District string `json:"district,omitempty"`
}

// BusinessHit is a business suggested alongside an answer.
type BusinessHit struct {
	ID       string  `json:"business_id"`
	Name     string  `json:"name,omitempty"`
	Category string  `json:"category,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Address  string  `json:"address,omitempty"`
	Distance float64 `json:"distance,omitempty"`
	Rating   float64 `json:"rating,omitempty"`
}

// chatEnvelope is the raw answer. The backend nests the reply under data.ai_response,
// older deployments answer flat.
type chatEnvelope struct {
	Success        bool        `json:"success"`
	ConversationID string      `json:"conversation_id"`
	Response       string      `json:"response"`
	Message        string      `json:"message"`
	Data           *chatData   `json:"data"`
	AIResponse     *aiResponse `json:"ai_response"`
}

type chatData struct {
	AIResponse     *aiResponse   `json:"ai_response"`
	SearchResults  []BusinessHit `json:"search_results"`
	IntentAnalysis *struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	} `json:"intent_analysis"`
}

type aiResponse struct {
	Response          string   `json:"response"`
	Suggestions       []string `json:"suggestions"`
	ConversationState *struct {
		LastIntent string  `json:"last_intent"`
		Confidence float64 `json:"confidence"`
	} `json:"conversation_state"`
}

// ChatReply is the flattened answer.
type ChatReply struct {
	ConversationID string
	Text           string
	Suggestions    []string
	Businesses     []BusinessHit
	Intent         string
	Confidence     float64
}

// Chat sends one message to the AI assistant.
func (client *Client) Chat(ctx context.Context, request ChatRequest) (*ChatReply, error) {
	var envelope chatEnvelope
	if err := client.do(ctx, apperr.OpChat, http.MethodPost, PathChat, request, &envelope); err != nil {
		return nil, err
	}

	reply := &ChatReply{ConversationID: envelope.ConversationID}

	ai := envelope.AIResponse
	if envelope.Data != nil {
		if envelope.Data.AIResponse != nil {
			ai = envelope.Data.AIResponse
		}
		reply.Businesses = envelope.Data.SearchResults
		if ia := envelope.Data.IntentAnalysis; ia != nil {
			reply.Intent, reply.Confidence = ia.Intent, ia.Confidence
		}
	}

	if ai != nil {
		reply.Text = ai.Response
		reply.Suggestions = ai.Suggestions
		if cs := ai.ConversationState; cs != nil && cs.LastIntent != "" {
			reply.Intent, reply.Confidence = cs.LastIntent, cs.Confidence
		}
	}

	if reply.Text == "" {
		reply.Text = envelope.Response
	}
	if reply.Text == "" {
		reply.Text = envelope.Message
	}
	if reply.Text == "" {
		return nil, apperr.Server(http.StatusBadGateway, "The assistant returned an empty answer.")
	}

	return reply, nil
}
