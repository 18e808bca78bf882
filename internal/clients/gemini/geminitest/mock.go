// Package geminitest provides a scripted gemini.Client for tests.
package geminitest

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/course-assistant-backend/internal/clients/gemini"
)

// Result is one queued answer of a Mock: text or an error.
type Result struct {
	Text  string
	Error error
}

type CompleteCall struct {
	History           []gemini.Message
	SystemInstruction string
	ContextParts      []gemini.Part
}

type ExtractCall struct {
	Data     []byte
	MIMEType string
}

// Mock is a gemini.Client that returns queued results and records its inputs.
type Mock struct {
	mu              sync.Mutex
	completeResults []Result
	extractResults  []Result

	CompleteCalls []CompleteCall
	ExtractCalls  []ExtractCall
}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) EnqueueComplete(results ...Result) *Mock {
	m.mu.Lock()
	m.completeResults = append(m.completeResults, results...)
	m.mu.Unlock()
	return m
}

func (m *Mock) EnqueueExtract(results ...Result) *Mock {
	m.mu.Lock()
	m.extractResults = append(m.extractResults, results...)
	m.mu.Unlock()
	return m
}

func (m *Mock) Complete(_ context.Context, history []gemini.Message, systemInstruction string, contextParts []gemini.Part) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalls = append(m.CompleteCalls, CompleteCall{
		History:           append([]gemini.Message(nil), history...),
		SystemInstruction: systemInstruction,
		ContextParts:      append([]gemini.Part(nil), contextParts...),
	})
	if len(m.completeResults) == 0 {
		return "", errors.New("no mocked completion results available")
	}
	r := m.completeResults[0]
	m.completeResults = m.completeResults[1:]
	return r.Text, r.Error
}

func (m *Mock) ExtractDocument(_ context.Context, data []byte, mimeType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExtractCalls = append(m.ExtractCalls, ExtractCall{Data: data, MIMEType: mimeType})
	if len(m.extractResults) == 0 {
		return "", errors.New("no mocked extraction results available")
	}
	r := m.extractResults[0]
	m.extractResults = m.extractResults[1:]
	return r.Text, r.Error
}

var _ gemini.Client = (*Mock)(nil)
