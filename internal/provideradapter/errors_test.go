package provideradapter

import (
	"errors"
	"testing"

	"github.com/corvidlabs/streamchat/internal/adapters/circuitbreaker"
	"github.com/corvidlabs/streamchat/internal/domain"
)

func TestMapOpenAIErrorCircuitOpen(t *testing.T) {
	got := mapOpenAIError(circuitbreaker.ErrCircuitOpen)
	var de *domain.Error
	if !errors.As(got, &de) {
		t.Fatalf("expected *domain.Error, got %T", got)
	}
	if de.Kind != domain.KindProviderUnavailable {
		t.Fatalf("expected KindProviderUnavailable, got %v", de.Kind)
	}
}

func TestMapAnthropicErrorCircuitOpen(t *testing.T) {
	got := mapAnthropicError(circuitbreaker.ErrCircuitOpen)
	var de *domain.Error
	if !errors.As(got, &de) {
		t.Fatalf("expected *domain.Error, got %T", got)
	}
	if de.Kind != domain.KindProviderUnavailable {
		t.Fatalf("expected KindProviderUnavailable, got %v", de.Kind)
	}
}
