package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaults(t *testing.T) {
	ClearErrorHooks()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuildInheritsWrappedCategory(t *testing.T) {
	ClearErrorHooks()

	inner := New(NewStd("no device")).Category(CategoryResource).Build()
	outer := New(fmt.Errorf("start capture: %w", inner)).Component("audiosession").Build()

	assert.Equal(t, CategoryResource, outer.Category)
	assert.True(t, IsCategory(outer, CategoryResource))
	assert.True(t, Is(outer, inner))
}

func TestNilWrappedErrorDoesNotPanic(t *testing.T) {
	ClearErrorHooks()

	ee := New(nil).Category(CategoryState).Build()
	assert.Equal(t, "state", ee.Error())
	assert.NoError(t, ee.Unwrap())
}

func TestContextIsCopied(t *testing.T) {
	ClearErrorHooks()

	ee := New(NewStd("x")).Context("uid", "a1").Build()
	ctx := ee.GetContext()
	ctx["uid"] = "mutated"

	assert.Equal(t, "a1", ee.GetContext()["uid"])
}

func TestIsNotFound(t *testing.T) {
	ClearErrorHooks()

	err := New(NewStd("missing")).Category(CategoryNotFound).Build()
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsNotFound(NewStd("plain")))
}

func TestErrorHooks(t *testing.T) {
	ClearErrorHooks()
	t.Cleanup(ClearErrorHooks)

	var seen []ErrorCategory
	AddErrorHook(func(ee *EnhancedError) {
		seen = append(seen, ee.Category)
	})

	_ = New(NewStd("a")).Category(CategoryAudio).Build()
	_ = New(NewStd("b")).Category(CategoryState).Build()

	require.Len(t, seen, 2)
	assert.Equal(t, []ErrorCategory{CategoryAudio, CategoryState}, seen)
}

func TestPriorityFallsBackToMedium(t *testing.T) {
	ClearErrorHooks()

	ee := New(NewStd("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.GetPriority())

	ee = New(NewStd("x")).Priority(PriorityCritical).Build()
	assert.Equal(t, PriorityCritical, ee.GetPriority())
}

func TestSentinelsWithSameCategoryStayDistinct(t *testing.T) {
	ClearErrorHooks()

	errEmpty := New(NewStd("empty")).Category(CategoryNotFound).Build()
	errRange := New(NewStd("out of range")).Category(CategoryNotFound).Build()

	assert.True(t, Is(fmt.Errorf("query: %w", errRange), errRange))
	assert.False(t, Is(errRange, errEmpty))

	template := &EnhancedError{Category: CategoryNotFound}
	assert.True(t, Is(errRange, template))
}

func TestEffectivePriorityDefaultsByCategory(t *testing.T) {
	ClearErrorHooks()

	assert.Equal(t, PriorityLow, New(NewStd("bad input")).Category(CategoryValidation).Build().EffectivePriority())
	assert.Equal(t, PriorityHigh, New(NewStd("no device")).Category(CategoryAudioSource).Build().EffectivePriority())
	assert.Equal(t, PriorityMedium, New(NewStd("odd")).Build().EffectivePriority())

	ee := New(NewStd("bad input")).Category(CategoryValidation).Priority(PriorityCritical).Build()
	assert.Equal(t, PriorityCritical, ee.EffectivePriority())
	assert.Empty(t, New(NewStd("x")).Build().GetPriority())
}
