package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAndGetLevel(t *testing.T) {
	orig := GetLevel()
	defer SetLevel(orig)

	SetLevel(WarnLevel)
	assert.Equal(t, WarnLevel, GetLevel())
}

func TestAssertTrueReturnsValue(t *testing.T) {
	assert.True(t, AssertTrue(true))
	assert.Panics(t, func() { AssertFalse(true) })
}

func TestAssertEqualPassesOnMatch(t *testing.T) {
	assert.True(t, AssertEqual(1, 1))
}
