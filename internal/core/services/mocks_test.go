package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"telegram-forwarder/internal/domain"
	"telegram-forwarder/internal/ports"
)

// MockChatSource - мок-реализация ports.ChatSource для тестирования
type MockChatSource struct {
	mock.Mock
}

func (m *MockChatSource) ResolveChat(ctx context.Context, msg *domain.Message) (domain.Entity, error) {
	args := m.Called(ctx, msg)
	return args.Get(0), args.Error(1)
}

func (m *MockChatSource) ResolveSender(ctx context.Context, msg *domain.Message) (domain.Entity, error) {
	args := m.Called(ctx, msg)
	return args.Get(0), args.Error(1)
}

func (m *MockChatSource) Download(ctx context.Context, att *domain.Attachment, path string) error {
	args := m.Called(ctx, att, path)
	return args.Error(0)
}

// MockSink - мок-реализация ports.Sink, запоминающая доставки
type MockSink struct {
	mock.Mock
	name  string
	order *[]string
	got   []*ports.Delivery
}

func newMockSink(name string, order *[]string) *MockSink {
	return &MockSink{name: name, order: order}
}

func (m *MockSink) Name() string { return m.name }

func (m *MockSink) Write(ctx context.Context, d *ports.Delivery) error {
	if m.order != nil {
		*m.order = append(*m.order, m.name)
	}
	m.got = append(m.got, d)
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockSink) Close() error { return nil }

// MockTranslator - мок-реализация ports.Translator
type MockTranslator struct {
	mock.Mock
}

func (m *MockTranslator) Translate(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}
